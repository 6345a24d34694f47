package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"go.uber.org/zap"
)

// RateLimit rejects requests with 429 once the caller exhausts its share of limiter.
// Callers are keyed by principal, falling back to the client IP.
func RateLimit(logger *zap.Logger, limiter *pkg.DistributedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(pkg.UserId)
		if subject == "" {
			subject = c.ClientIP()
		}
		if !limiter.Allow(c.Request.Context(), subject) {
			resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId),
				pkg.NewAppError(pkg.ErrRateLimitedCode, pkg.ErrRateLimitedCode.Message, pkg.ErrRateLimitExceeded))
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Next()
	}
}
