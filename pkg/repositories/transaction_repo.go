package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

const transactionColumns = `id, type, sender_account_id, sender_account_number, receiver_account_id, receiver_account_number,
	amount, fee, is_cancelled, reversal_of, idempotency_key, created_at`

// TransactionRepository defines the SQL access for table transactions.
type TransactionRepository interface {
	// Create appends a transaction record.
	Create(ctx context.Context, tx pgx.Tx, trx models.Transaction) error
	// FindById finds a transaction by ID.
	FindById(ctx context.Context, tx pgx.Tx, trxID uuid.UUID) (models.Transaction, error)
	// FindAllByAccount lists transactions sent or received by an account, oldest first.
	FindAllByAccount(ctx context.Context, tx pgx.Tx, accountID int64) ([]models.Transaction, error)
	// MarkCancelled sets is_cancelled, returning the number of rows changed.
	MarkCancelled(ctx context.Context, tx pgx.Tx, trxID uuid.UUID) (int64, error)
}

type TransactionRepositoryImpl struct {
}

func NewTransactionRepository() TransactionRepository {
	return &TransactionRepositoryImpl{}
}

func (t TransactionRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, trx models.Transaction) error {
	var reversalOf uuid.NullUUID
	if trx.ReversalOf != nil {
		reversalOf = uuid.NullUUID{UUID: *trx.ReversalOf, Valid: true}
	}
	var idempotencyKey *string
	if trx.IdempotencyKey != "" {
		idempotencyKey = &trx.IdempotencyKey
	}
	_, err := tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		trx.ID, string(trx.Type), trx.SenderAccountID, trx.SenderAccountNumber, trx.ReceiverAccountID, trx.ReceiverAccountNumber,
		trx.Amount, trx.Fee, trx.IsCancelled, reversalOf, idempotencyKey, trx.CreatedAt)
	return err
}

func (t TransactionRepositoryImpl) FindById(ctx context.Context, tx pgx.Tx, trxID uuid.UUID) (models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, trxID))
}

func (t TransactionRepositoryImpl) FindAllByAccount(ctx context.Context, tx pgx.Tx, accountID int64) ([]models.Transaction, error) {
	rows, err := tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE sender_account_id = $1 OR receiver_account_id = $1
		ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trxs := make([]models.Transaction, 0)
	for rows.Next() {
		trx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		trxs = append(trxs, trx)
	}
	return trxs, rows.Err()
}

func (t TransactionRepositoryImpl) MarkCancelled(ctx context.Context, tx pgx.Tx, trxID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `UPDATE transactions SET is_cancelled = TRUE WHERE id = $1 AND is_cancelled = FALSE`, trxID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		trx            models.Transaction
		trxType        string
		reversalOf     uuid.NullUUID
		idempotencyKey *string
	)
	err := row.Scan(&trx.ID, &trxType, &trx.SenderAccountID, &trx.SenderAccountNumber, &trx.ReceiverAccountID,
		&trx.ReceiverAccountNumber, &trx.Amount, &trx.Fee, &trx.IsCancelled, &reversalOf, &idempotencyKey, &trx.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	trx.Type = pkg.TransactionType(trxType)
	if reversalOf.Valid {
		id := reversalOf.UUID
		trx.ReversalOf = &id
	}
	if idempotencyKey != nil {
		trx.IdempotencyKey = *idempotencyKey
	}
	return trx, nil
}
