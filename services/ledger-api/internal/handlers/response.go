package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/views"
	"go.uber.org/zap"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, views.APIResponse{TraceID: c.GetString(pkg.TraceId), Data: data})
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	resp := pkg.ToErrorResponse(logger, c.GetString(pkg.TraceId), err)
	c.AbortWithStatusJSON(resp.Status, resp)
}

func invalidInput(msg string, cause error) error {
	return pkg.NewAppError(pkg.ErrInvalidInputCode, msg, cause)
}

func accountIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidInput("account id must be a positive integer", err)
	}
	return id, nil
}

func transactionIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, invalidInput("transaction id must be a UUID", err)
	}
	return id, nil
}
