package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/repositories"
)

// DefaultCancellationWindow is how long after creation a transaction may be cancelled.
const DefaultCancellationWindow = time.Hour

// Entry describes a record to append.
type Entry struct {
	Type           pkg.TransactionType
	Sender         models.Account
	Receiver       models.Account
	Amount         money.Amount
	Fee            money.Amount
	IdempotencyKey string
	ReversalOf     *uuid.UUID
}

// TransactionRecorder appends immutable transaction records and owns the cancellation rule.
type TransactionRecorder struct {
	window time.Duration
	clock  func() time.Time
}

func NewTransactionRecorder(window time.Duration, clock func() time.Time) *TransactionRecorder {
	if window <= 0 {
		window = DefaultCancellationWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &TransactionRecorder{window: window, clock: clock}
}

// Record appends entry through store, stamping it with a fresh id and the current time.
func (r *TransactionRecorder) Record(ctx context.Context, store repositories.TransactionStore, entry Entry) (models.Transaction, error) {
	trx := models.Transaction{
		ID:                    uuid.New(),
		Type:                  entry.Type,
		SenderAccountID:       entry.Sender.ID,
		SenderAccountNumber:   entry.Sender.AccountNumber,
		ReceiverAccountID:     entry.Receiver.ID,
		ReceiverAccountNumber: entry.Receiver.AccountNumber,
		Amount:                entry.Amount,
		Fee:                   entry.Fee,
		IsCancelled:           false,
		ReversalOf:            entry.ReversalOf,
		IdempotencyKey:        entry.IdempotencyKey,
		CreatedAt:             r.clock().UTC().Truncate(time.Microsecond), // TIMESTAMPTZ precision
	}
	if err := store.Save(ctx, trx); err != nil {
		return models.Transaction{}, StoreError(err, NotFound("transaction"))
	}
	return trx, nil
}

// IsCancellable reports whether trx is not cancelled and younger than the window at now.
func (r *TransactionRecorder) IsCancellable(trx models.Transaction, now time.Time) bool {
	return !trx.IsCancelled && now.Sub(trx.CreatedAt) < r.window
}

// Cancel flips the cancelled flag of trx. Balances are left untouched.
func (r *TransactionRecorder) Cancel(ctx context.Context, store repositories.TransactionStore, trx models.Transaction) (models.Transaction, error) {
	if trx.IsCancelled {
		return models.Transaction{}, NotCancellable("transaction is already cancelled")
	}
	if !r.IsCancellable(trx, r.clock()) {
		return models.Transaction{}, NotCancellable("cancellation window has expired")
	}
	if err := store.MarkCancelled(ctx, trx.ID); err != nil {
		return models.Transaction{}, StoreError(err, NotCancellable("transaction is already cancelled"))
	}
	trx.IsCancelled = true
	return trx, nil
}

// Now is the recorder's clock.
func (r *TransactionRecorder) Now() time.Time { return r.clock() }
