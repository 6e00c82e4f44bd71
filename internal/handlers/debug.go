package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
			Level:  "INFO",
			Text:   "audit test",
			Action: c.Query("action"),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
