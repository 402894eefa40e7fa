package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheckFunc 의존 백엔드 상태 확인 (Redis ping, DB ping 등)
type HealthCheckFunc func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheckFunc
}

func NewHealthHandler(checks map[string]HealthCheckFunc) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck 서버와 백엔드 상태. 하나라도 실패하면 503
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	backends := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			backends[name] = err.Error()
			continue
		}
		backends[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"service":  "quiz-match",
		"backends": backends,
	})
}
