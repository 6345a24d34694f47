package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

// AccountStore is the account side of a unit of work.
// Lookups return pkg.ErrRecordNotFound when nothing matches.
type AccountStore interface {
	FindByID(ctx context.Context, id int64) (models.Account, error)
	// FindByIDForUpdate reads the account and holds its row until the unit of work ends.
	FindByIDForUpdate(ctx context.Context, id int64) (models.Account, error)
	FindByNumber(ctx context.Context, accountNumber string) (models.Account, error)
	FindByOwnerAndID(ctx context.Context, ownerID string, id int64) (models.Account, error)
	FindAllByOwner(ctx context.Context, ownerID string) ([]models.Account, error)
	// Save inserts when account.ID is zero (assigning the ID) and updates balance, limit and active flag otherwise.
	Save(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id int64) error
}

// TransactionStore is the append-only transaction log side of a unit of work.
type TransactionStore interface {
	Save(ctx context.Context, trx models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	// FindAllInvolving returns records where the account is sender or receiver, oldest first.
	FindAllInvolving(ctx context.Context, accountID int64) ([]models.Transaction, error)
	// MarkCancelled flips the only mutable field of a record.
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

// Tx exposes both stores inside one atomic unit of work.
type Tx interface {
	Accounts() AccountStore
	Transactions() TransactionStore
}

// UnitOfWork runs fn atomically: every write made through tx is committed together
// when fn returns nil and discarded otherwise.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
