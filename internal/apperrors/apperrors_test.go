package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeForbidden, CodeOf(Forbidden("nope")))
	require.Equal(t, CodeExpired, CodeOf(Expired("too late")))
	require.Equal(t, CodeInternal, CodeOf(errors.New("db down")))
	require.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("conversation not found"))
	require.Equal(t, CodeNotFound, CodeOf(err))
}

func TestMessageOfMasksInternalErrors(t *testing.T) {
	require.Equal(t, "internal error", MessageOf(errors.New("pq: connection refused")))
	require.Equal(t, "nope", MessageOf(Forbidden("nope")))
}

func TestSentinelComparison(t *testing.T) {
	sentinel := NotFound("message not found")
	require.True(t, errors.Is(fmt.Errorf("wrap: %w", sentinel), sentinel))
	require.False(t, errors.Is(NotFound("conversation not found"), sentinel))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("bad signature")
	err := Wrap(CodeUnauthenticated, "invalid token", cause)
	require.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "bad signature")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Unauthenticated("no token"): http.StatusUnauthorized,
		Forbidden("not yours"):      http.StatusForbidden,
		NotFound("gone"):            http.StatusNotFound,
		Validation("empty"):         http.StatusBadRequest,
		Expired("too late"):         http.StatusUnprocessableEntity,
		Conflict("duplicate"):       http.StatusConflict,
		errors.New("infra"):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
