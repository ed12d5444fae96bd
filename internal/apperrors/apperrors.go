package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, wire-visible error classification.
type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeExpired         Code = "EXPIRED"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

// Error carries a code alongside a human-readable message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches two coded errors with the same code and message, so package-level
// sentinel errors work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }
func Forbidden(msg string) error       { return New(CodeForbidden, msg) }
func NotFound(msg string) error        { return New(CodeNotFound, msg) }
func Validation(msg string) error      { return New(CodeValidation, msg) }
func Expired(msg string) error         { return New(CodeExpired, msg) }
func Conflict(msg string) error        { return New(CodeConflict, msg) }
func Internal(msg string) error        { return New(CodeInternal, msg) }

// CodeOf extracts the code from an error chain, defaulting to INTERNAL for
// plain errors (storage failures and the like).
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message for an error. Infrastructure
// errors are masked behind a generic message so internals never leak.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps an error code to the REST status the sibling endpoints use.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeExpired:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
