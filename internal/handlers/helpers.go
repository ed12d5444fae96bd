package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"birthday-chat-service/internal/apperrors"
)

const requestIDContextKey = "request_id"

func respondError(c *gin.Context, err error) {
	c.Header("X-Request-ID", requestIDFromContext(c))
	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"error": apperrors.MessageOf(err),
		"code":  string(apperrors.CodeOf(err)),
	})
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperrors.Validation("invalid "+name))
		return 0, false
	}
	return id, true
}
