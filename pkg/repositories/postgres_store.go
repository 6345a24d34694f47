package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"go.uber.org/zap"
)

// Transactor is satisfied by *database.DB.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// PostgresStore is a UnitOfWork backed by one pgx transaction per call.
type PostgresStore struct {
	db       Transactor
	accounts AccountRepository
	trxs     TransactionRepository
	logger   *zap.Logger
}

func NewPostgresStore(logger *zap.Logger, db Transactor) *PostgresStore {
	return &PostgresStore{
		db:       db,
		accounts: NewAccountRepository(),
		trxs:     NewTransactionRepository(),
		logger:   logger,
	}
}

func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &postgresTx{store: s, tx: tx})
	})
}

type postgresTx struct {
	store *PostgresStore
	tx    pgx.Tx
}

func (t *postgresTx) Accounts() AccountStore         { return postgresAccounts{t} }
func (t *postgresTx) Transactions() TransactionStore { return postgresTransactions{t} }

func (t *postgresTx) sqlError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return pkg.HandleSQLError(pkg.TraceIDFromContext(ctx), t.store.logger, err)
}

type postgresAccounts struct{ *postgresTx }

func (a postgresAccounts) FindByID(ctx context.Context, id int64) (models.Account, error) {
	account, err := a.store.accounts.FindById(ctx, a.tx, id, false)
	return account, a.sqlError(ctx, err)
}

func (a postgresAccounts) FindByIDForUpdate(ctx context.Context, id int64) (models.Account, error) {
	account, err := a.store.accounts.FindById(ctx, a.tx, id, true)
	return account, a.sqlError(ctx, err)
}

func (a postgresAccounts) FindByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	account, err := a.store.accounts.FindByNumber(ctx, a.tx, accountNumber)
	return account, a.sqlError(ctx, err)
}

func (a postgresAccounts) FindByOwnerAndID(ctx context.Context, ownerID string, id int64) (models.Account, error) {
	account, err := a.store.accounts.FindByOwnerAndId(ctx, a.tx, ownerID, id)
	return account, a.sqlError(ctx, err)
}

func (a postgresAccounts) FindAllByOwner(ctx context.Context, ownerID string) ([]models.Account, error) {
	accounts, err := a.store.accounts.FindAllByOwner(ctx, a.tx, ownerID)
	return accounts, a.sqlError(ctx, err)
}

func (a postgresAccounts) Save(ctx context.Context, account *models.Account) error {
	if account.ID == 0 {
		return a.sqlError(ctx, a.store.accounts.Create(ctx, a.tx, account))
	}
	n, err := a.store.accounts.Update(ctx, a.tx, *account)
	if err != nil {
		return a.sqlError(ctx, err)
	}
	if n == 0 {
		return pkg.ErrRecordNotFound
	}
	return nil
}

func (a postgresAccounts) Delete(ctx context.Context, id int64) error {
	n, err := a.store.accounts.Delete(ctx, a.tx, id)
	if err != nil {
		return a.sqlError(ctx, err)
	}
	if n == 0 {
		return pkg.ErrRecordNotFound
	}
	return nil
}

type postgresTransactions struct{ *postgresTx }

func (t postgresTransactions) Save(ctx context.Context, trx models.Transaction) error {
	return t.sqlError(ctx, t.store.trxs.Create(ctx, t.tx, trx))
}

func (t postgresTransactions) FindByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	trx, err := t.store.trxs.FindById(ctx, t.tx, id)
	return trx, t.sqlError(ctx, err)
}

func (t postgresTransactions) FindAllInvolving(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	trxs, err := t.store.trxs.FindAllByAccount(ctx, t.tx, accountID)
	return trxs, t.sqlError(ctx, err)
}

func (t postgresTransactions) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	n, err := t.store.trxs.MarkCancelled(ctx, t.tx, id)
	if err != nil {
		return t.sqlError(ctx, err)
	}
	if n == 0 {
		return pkg.ErrRecordNotFound
	}
	return nil
}
