package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

const accountColumns = `id, account_number, owner_id, balance, transfer_limit, is_active, created_at, updated_at`

// AccountRepository defines the SQL access for table accounts.
type AccountRepository interface {
	// Create inserts an account and sets the generated ID.
	Create(ctx context.Context, tx pgx.Tx, account *models.Account) error
	// Update writes the mutable columns of an account.
	Update(ctx context.Context, tx pgx.Tx, account models.Account) (int64, error)
	// Delete hard-deletes an account row.
	Delete(ctx context.Context, tx pgx.Tx, accountID int64) (int64, error)
	// FindById finds an account by ID, optionally taking a row lock.
	FindById(ctx context.Context, tx pgx.Tx, accountID int64, forUpdate bool) (models.Account, error)
	// FindByNumber finds an account by its public number.
	FindByNumber(ctx context.Context, tx pgx.Tx, accountNumber string) (models.Account, error)
	// FindByOwnerAndId finds an account only when ownerID owns it.
	FindByOwnerAndId(ctx context.Context, tx pgx.Tx, ownerID string, accountID int64) (models.Account, error)
	// FindAllByOwner lists accounts of an owner ordered by ID.
	FindAllByOwner(ctx context.Context, tx pgx.Tx, ownerID string) ([]models.Account, error)
}

type AccountRepositoryImpl struct {
}

func NewAccountRepository() AccountRepository {
	return &AccountRepositoryImpl{}
}

func (a AccountRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, account *models.Account) error {
	return tx.QueryRow(ctx, `INSERT INTO accounts (account_number, owner_id, balance, transfer_limit, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		account.AccountNumber, account.OwnerID, account.Balance, account.TransferLimit, account.IsActive, account.CreatedAt, account.UpdatedAt,
	).Scan(&account.ID)
}

func (a AccountRepositoryImpl) Update(ctx context.Context, tx pgx.Tx, account models.Account) (int64, error) {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET balance = $2, transfer_limit = $3, is_active = $4, updated_at = $5 WHERE id = $1`,
		account.ID, account.Balance, account.TransferLimit, account.IsActive, account.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a AccountRepositoryImpl) Delete(ctx context.Context, tx pgx.Tx, accountID int64) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (a AccountRepositoryImpl) FindById(ctx context.Context, tx pgx.Tx, accountID int64, forUpdate bool) (models.Account, error) {
	if accountID <= 0 {
		return models.Account{}, pgx.ErrNoRows
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanAccount(tx.QueryRow(ctx, query, accountID))
}

func (a AccountRepositoryImpl) FindByNumber(ctx context.Context, tx pgx.Tx, accountNumber string) (models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber))
}

func (a AccountRepositoryImpl) FindByOwnerAndId(ctx context.Context, tx pgx.Tx, ownerID string, accountID int64) (models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND owner_id = $2`, accountID, ownerID))
}

func (a AccountRepositoryImpl) FindAllByOwner(ctx context.Context, tx pgx.Tx, ownerID string) ([]models.Account, error) {
	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.AccountNumber, &account.OwnerID, &account.Balance, &account.TransferLimit,
		&account.IsActive, &account.CreatedAt, &account.UpdatedAt)
	return account, err
}
