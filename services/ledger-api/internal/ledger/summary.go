package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

// TransactionSummary is the list form of a transaction.
type TransactionSummary struct {
	ID                    uuid.UUID
	Type                  pkg.TransactionType
	SenderAccountNumber   string
	ReceiverAccountNumber string
	Amount                money.Amount
	CreatedAt             time.Time
}

// TransactionDetail adds the fee and the cancellation state.
type TransactionDetail struct {
	TransactionSummary
	Fee         money.Amount
	IsCancelled bool
	Cancellable bool
	ReversalOf  *uuid.UUID
}

// Reversal pairs a cancelled original with the record that compensated it.
type Reversal struct {
	Original models.Transaction
	Reversal models.Transaction
}

func summaryOf(trx models.Transaction) TransactionSummary {
	return TransactionSummary{
		ID:                    trx.ID,
		Type:                  trx.Type,
		SenderAccountNumber:   trx.SenderAccountNumber,
		ReceiverAccountNumber: trx.ReceiverAccountNumber,
		Amount:                trx.Amount,
		CreatedAt:             trx.CreatedAt,
	}
}

func detailOf(trx models.Transaction, cancellable bool) TransactionDetail {
	return TransactionDetail{
		TransactionSummary: summaryOf(trx),
		Fee:                trx.Fee,
		IsCancelled:        trx.IsCancelled,
		Cancellable:        cancellable,
		ReversalOf:         trx.ReversalOf,
	}
}
