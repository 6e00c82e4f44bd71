package handlers

import (
	"github.com/gin-gonic/gin"

	"chat-gateway/internal/middleware"
	"chat-gateway/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext returns the authenticated caller, if any. Identities
// come only from AuthMiddleware, never from client supplied headers.
func userIDFromContext(c *gin.Context) *int64 {
	val, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return nil
	}
	if userID, ok := val.(int); ok && userID != 0 {
		value := int64(userID)
		return &value
	}
	return nil
}
