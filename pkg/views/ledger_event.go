package views

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

type LedgerEventType string

const (
	EventTransactionRecorded  LedgerEventType = "transaction.recorded"
	EventTransactionCancelled LedgerEventType = "transaction.cancelled"
)

// LedgerEvent is the Kafka payload published after a ledger commit.
type LedgerEvent struct {
	Event                 LedgerEventType     `json:"event"`
	TransactionID         uuid.UUID           `json:"transactionId"`
	Type                  pkg.TransactionType `json:"type"`
	SenderAccountNumber   string              `json:"senderAccountNumber"`
	ReceiverAccountNumber string              `json:"receiverAccountNumber"`
	Amount                money.Amount        `json:"amount"`
	Fee                   money.Amount        `json:"fee"`
	IsCancelled           bool                `json:"isCancelled"`
	ReversalOf            *uuid.UUID          `json:"reversalOf,omitempty"`
	IdempotencyKey        string              `json:"idempotencyKey,omitempty"`
	TraceID               string              `json:"traceId,omitempty"`
	CreatedAt             time.Time           `json:"createdAt"`
	PublishedAt           time.Time           `json:"publishedAt"`
}

// NewLedgerEvent builds the event for trx.
func NewLedgerEvent(event LedgerEventType, trx models.Transaction, traceID string, now time.Time) LedgerEvent {
	return LedgerEvent{
		Event:                 event,
		TransactionID:         trx.ID,
		Type:                  trx.Type,
		SenderAccountNumber:   trx.SenderAccountNumber,
		ReceiverAccountNumber: trx.ReceiverAccountNumber,
		Amount:                trx.Amount,
		Fee:                   trx.Fee,
		IsCancelled:           trx.IsCancelled,
		ReversalOf:            trx.ReversalOf,
		IdempotencyKey:        trx.IdempotencyKey,
		TraceID:               traceID,
		CreatedAt:             trx.CreatedAt,
		PublishedAt:           now.UTC(),
	}
}
