package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"go.uber.org/zap"
)

const maxPrincipalLength = 128

// Principal reads the caller identity set by the upstream gateway in X-User-Id.
// Requests without one are rejected with 401 before reaching a handler.
func Principal(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(pkg.HeaderUserId))
		if userID == "" || len(userID) > maxPrincipalLength {
			resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId),
				pkg.NewAppError(pkg.ErrUnauthorizedCode, pkg.ErrUnauthorizedCode.Message, nil))
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Set(pkg.UserId, userID)
		c.Request = c.Request.WithContext(pkg.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}
