package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	logger  *zap.Logger
	service services.TransactionService
}

func NewTransactionHandler(logger *zap.Logger, svc services.TransactionService) *TransactionHandler {
	return &TransactionHandler{logger: logger, service: svc}
}

// RegisterRoutes registers transaction routes on the provided group.
// :id is an account id on deposit/withdraw/transfer and a transaction id elsewhere;
// gin allows a single wildcard name per segment.
func (h *TransactionHandler) RegisterRoutes(r *gin.RouterGroup) {
	trxs := r.Group("/transactions")
	trxs.POST("/:id/deposit", h.Deposit)
	trxs.POST("/:id/withdraw", h.Withdraw)
	trxs.POST("/:id/transfer", h.Transfer)
	trxs.GET("/account/:accountId", h.ListTransactions)
	trxs.GET("/:id", h.GetTransaction)
	trxs.POST("/:id/cancel", h.CancelTransaction)
	trxs.POST("/:id/reverse", h.ReverseTransaction)
}

func (h *TransactionHandler) Deposit(c *gin.Context) {
	accountID, err := accountIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req views.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	resp, err := h.service.Deposit(c.Request.Context(), c.GetString(pkg.UserId), accountID, c.GetHeader(pkg.HeaderIdempotencyKey), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (h *TransactionHandler) Withdraw(c *gin.Context) {
	accountID, err := accountIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req views.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	resp, err := h.service.Withdraw(c.Request.Context(), c.GetString(pkg.UserId), accountID, c.GetHeader(pkg.HeaderIdempotencyKey), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (h *TransactionHandler) Transfer(c *gin.Context) {
	accountID, err := accountIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req views.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, invalidInput("invalid request body", err))
		return
	}
	resp, err := h.service.Transfer(c.Request.Context(), c.GetString(pkg.UserId), accountID, c.GetHeader(pkg.HeaderIdempotencyKey), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	accountID, err := accountIDParam(c, "accountId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp, err := h.service.ListTransactions(c.Request.Context(), c.GetString(pkg.UserId), accountID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	trxID, err := transactionIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp, err := h.service.GetTransaction(c.Request.Context(), c.GetString(pkg.UserId), trxID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *TransactionHandler) CancelTransaction(c *gin.Context) {
	trxID, err := transactionIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp, err := h.service.CancelTransaction(c.Request.Context(), c.GetString(pkg.UserId), trxID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (h *TransactionHandler) ReverseTransaction(c *gin.Context) {
	trxID, err := transactionIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	resp, err := h.service.ReverseTransaction(c.Request.Context(), c.GetString(pkg.UserId), trxID, c.GetHeader(pkg.HeaderIdempotencyKey))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}
