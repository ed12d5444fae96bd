package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"birthday-chat-service/internal/apperrors"
)

// TokenVerifier validates a bearer token and resolves it to a user id.
// Token issuance belongs to the auth service; this side only checks
// signature and expiry.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

// Claims is the token payload the auth service issues.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HMAC-signed tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// ValidateToken verifies signature and expiry and returns the user id.
func (v *JWTVerifier) ValidateToken(_ context.Context, token string) (int64, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid token", err)
	}
	if !parsed.Valid || claims.UserID == 0 {
		return 0, apperrors.Unauthenticated("invalid token")
	}
	return claims.UserID, nil
}
