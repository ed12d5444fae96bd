package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"birthday-chat-service/internal/auth"
)

// AuthMiddleware validates the Authorization bearer token and stores the
// authenticated user id on the request context.
func AuthMiddleware(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := verifier.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// UserID extracts the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) int64 {
	if val, ok := c.Get("userID"); ok {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}
