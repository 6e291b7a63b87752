package http

import (
	"net/http"
	"time"

	"streamwatch/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker   *monitoring.HealthChecker
	startedAt time.Time
}

func NewHealthHandler(checker *monitoring.HealthChecker, startedAt time.Time) *HealthHandler {
	return &HealthHandler{checker: checker, startedAt: startedAt}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health reports liveness only.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
