package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

// Transaction maps to table `transactions`.
// Every field except IsCancelled is written once.
type Transaction struct {
	ID                    uuid.UUID
	Type                  pkg.TransactionType
	SenderAccountID       int64
	SenderAccountNumber   string
	ReceiverAccountID     int64
	ReceiverAccountNumber string
	Amount                money.Amount
	Fee                   money.Amount
	IsCancelled           bool
	ReversalOf            *uuid.UUID
	IdempotencyKey        string
	CreatedAt             time.Time
}

// Involves reports whether accountID is the sender or the receiver.
func (t Transaction) Involves(accountID int64) bool {
	return t.SenderAccountID == accountID || t.ReceiverAccountID == accountID
}
