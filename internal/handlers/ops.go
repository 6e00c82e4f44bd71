package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StatusReporter describes a component without a ping, e.g. the publisher.
type StatusReporter func() string

// OpsHandler serves health and metrics endpoints.
type OpsHandler struct {
	db       Pinger
	statuses map[string]StatusReporter
}

func NewOpsHandler(db Pinger, statuses map[string]StatusReporter) *OpsHandler {
	return &OpsHandler{db: db, statuses: statuses}
}

// Health pings the database. Other components are reported but never fail
// the check.
func (h *OpsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{}
	for name, report := range h.statuses {
		body[name] = report()
	}

	if err := h.db.PingContext(ctx); err != nil {
		body["status"] = "unavailable"
		body["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ok"
	body["database"] = "ok"
	c.JSON(http.StatusOK, body)
}

// RegisterOpsRoutes wires health and Prometheus endpoints.
func RegisterOpsRoutes(router *gin.Engine, h *OpsHandler) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
