package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"juris-rag/internal/app"
)

type HealthReporter interface {
	Health(ctx context.Context) app.HealthReport
}

type HealthHandler struct {
	reporter  HealthReporter
	name      string
	env       string
	startedAt time.Time
}

func NewHealthHandler(reporter HealthReporter, name, env string, startedAt time.Time) *HealthHandler {
	return &HealthHandler{reporter: reporter, name: name, env: env, startedAt: startedAt}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	report := h.reporter.Health(ctx)
	statusCode := http.StatusOK
	if report.Status != app.StatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":        h.name,
		"env":        h.env,
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
		"status":     report.Status,
		"components": report.Components,
		"checked_at": report.CheckedAt,
	})
}
