package views

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/ledger"
)

type AmountRequest struct {
	Amount money.Amount `json:"amount"`
}

type TransferRequest struct {
	ReceiverAccountNumber string       `json:"receiverAccountNumber" binding:"required,max=32"`
	Amount                money.Amount `json:"amount"`
}

type TransactionResponse struct {
	TransactionID         uuid.UUID           `json:"transactionId"`
	Type                  pkg.TransactionType `json:"type"`
	SenderAccountNumber   string              `json:"senderAccountNumber"`
	ReceiverAccountNumber string              `json:"receiverAccountNumber"`
	Amount                money.Amount        `json:"amount"`
	Fee                   money.Amount        `json:"fee"`
	IsCancelled           bool                `json:"isCancelled"`
	ReversalOf            *uuid.UUID          `json:"reversalOf,omitempty"`
	CreatedAt             time.Time           `json:"createdAt"`
}

type TransactionSummaryResponse struct {
	TransactionID         uuid.UUID           `json:"transactionId"`
	Type                  pkg.TransactionType `json:"type"`
	SenderAccountNumber   string              `json:"senderAccountNumber"`
	ReceiverAccountNumber string              `json:"receiverAccountNumber"`
	Amount                money.Amount        `json:"amount"`
	CreatedAt             time.Time           `json:"createdAt"`
}

type TransactionDetailResponse struct {
	TransactionSummaryResponse
	Fee         money.Amount `json:"fee"`
	IsCancelled bool         `json:"isCancelled"`
	Cancellable bool         `json:"cancellable"`
	ReversalOf  *uuid.UUID   `json:"reversalOf,omitempty"`
}

type ReversalResponse struct {
	Original TransactionResponse `json:"original"`
	Reversal TransactionResponse `json:"reversal"`
}

func ToTransactionResponse(trx models.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:         trx.ID,
		Type:                  trx.Type,
		SenderAccountNumber:   trx.SenderAccountNumber,
		ReceiverAccountNumber: trx.ReceiverAccountNumber,
		Amount:                trx.Amount,
		Fee:                   trx.Fee,
		IsCancelled:           trx.IsCancelled,
		ReversalOf:            trx.ReversalOf,
		CreatedAt:             trx.CreatedAt,
	}
}

func ToSummaryResponses(summaries []ledger.TransactionSummary) []TransactionSummaryResponse {
	out := make([]TransactionSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toSummaryResponse(s))
	}
	return out
}

func ToDetailResponse(d ledger.TransactionDetail) TransactionDetailResponse {
	return TransactionDetailResponse{
		TransactionSummaryResponse: toSummaryResponse(d.TransactionSummary),
		Fee:                        d.Fee,
		IsCancelled:                d.IsCancelled,
		Cancellable:                d.Cancellable,
		ReversalOf:                 d.ReversalOf,
	}
}

func ToReversalResponse(r ledger.Reversal) ReversalResponse {
	return ReversalResponse{
		Original: ToTransactionResponse(r.Original),
		Reversal: ToTransactionResponse(r.Reversal),
	}
}

func toSummaryResponse(s ledger.TransactionSummary) TransactionSummaryResponse {
	return TransactionSummaryResponse{
		TransactionID:         s.ID,
		Type:                  s.Type,
		SenderAccountNumber:   s.SenderAccountNumber,
		ReceiverAccountNumber: s.ReceiverAccountNumber,
		Amount:                s.Amount,
		CreatedAt:             s.CreatedAt,
	}
}
