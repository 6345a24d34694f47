package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

type AccountHandler struct {
	logger  *zap.Logger
	service services.AccountService
}

func NewAccountHandler(logger *zap.Logger, svc services.AccountService) *AccountHandler {
	return &AccountHandler{logger: logger, service: svc}
}

// RegisterRoutes registers account routes on the provided group.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	accounts.POST("", h.CreateAccount)
	accounts.GET("/my", h.ListOwnAccounts)
	accounts.GET("/info/:accountNumber", h.GetAccountInfo)
	accounts.GET("/:accountId", h.GetOwnAccount)
	accounts.PUT("/:accountId/limit", h.SetTransferLimit)
	accounts.DELETE("/:accountId", h.DeleteAccount)
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req views.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	resp, err := h.service.CreateAccount(c.Request.Context(), c.GetString(pkg.UserId), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (h *AccountHandler) ListOwnAccounts(c *gin.Context) {
	resp, err := h.service.ListOwnAccounts(c.Request.Context(), c.GetString(pkg.UserId))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *AccountHandler) GetOwnAccount(c *gin.Context) {
	accountID, err := accountIDParam(c, "accountId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp, err := h.service.GetOwnAccount(c.Request.Context(), c.GetString(pkg.UserId), accountID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *AccountHandler) GetAccountInfo(c *gin.Context) {
	resp, err := h.service.GetAccountInfoByNumber(c.Request.Context(), c.Param("accountNumber"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *AccountHandler) SetTransferLimit(c *gin.Context) {
	accountID, err := accountIDParam(c, "accountId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req views.TransferLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	resp, err := h.service.SetTransferLimit(c.Request.Context(), c.GetString(pkg.UserId), accountID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	accountID, err := accountIDParam(c, "accountId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.service.DeleteAccount(c.Request.Context(), c.GetString(pkg.UserId), accountID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
