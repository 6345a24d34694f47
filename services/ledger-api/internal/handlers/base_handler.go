package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type BaseHandler struct {
	logger *zap.Logger
	checks map[string]HealthCheck
}

func NewBaseHandler(logger *zap.Logger, checks map[string]HealthCheck) *BaseHandler {
	return &BaseHandler{logger: logger, checks: checks}
}

func (b *BaseHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", b.GetHealth)
}

func (b *BaseHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(b.checks))
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			b.logger.Warn("health check failed", zap.String(pkg.TraceId, c.GetString(pkg.TraceId)), zap.String("dependency", name), zap.Error(err))
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
	})
}
