package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	pkgviews "github.com/nimeshabuddhika/resilient-ledger/pkg/views"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

// MaxIdempotencyKeyLength matches the transactions.idempotency_key column.
const MaxIdempotencyKeyLength = 128

// Ledger is the engine surface the transaction service drives.
type Ledger interface {
	Deposit(ctx context.Context, actor string, accountID int64, amount money.Amount) (models.Transaction, error)
	Withdraw(ctx context.Context, actor string, accountID int64, amount money.Amount) (models.Transaction, error)
	Transfer(ctx context.Context, actor string, accountID int64, receiverNumber string, amount money.Amount) (models.Transaction, error)
	ListTransactions(ctx context.Context, actor string, accountID int64) ([]ledger.TransactionSummary, error)
	GetTransactionDetail(ctx context.Context, actor string, trxID uuid.UUID) (ledger.TransactionDetail, error)
	CancelTransaction(ctx context.Context, actor string, trxID uuid.UUID) (models.Transaction, error)
	ReverseTransaction(ctx context.Context, actor string, trxID uuid.UUID) (ledger.Reversal, error)
}

type TransactionService interface {
	Deposit(ctx context.Context, userID string, accountID int64, idempotencyKey string, req views.AmountRequest) (views.TransactionResponse, error)
	Withdraw(ctx context.Context, userID string, accountID int64, idempotencyKey string, req views.AmountRequest) (views.TransactionResponse, error)
	Transfer(ctx context.Context, userID string, accountID int64, idempotencyKey string, req views.TransferRequest) (views.TransactionResponse, error)
	ListTransactions(ctx context.Context, userID string, accountID int64) ([]views.TransactionSummaryResponse, error)
	GetTransaction(ctx context.Context, userID string, trxID uuid.UUID) (views.TransactionDetailResponse, error)
	CancelTransaction(ctx context.Context, userID string, trxID uuid.UUID) (views.TransactionResponse, error)
	ReverseTransaction(ctx context.Context, userID string, trxID uuid.UUID, idempotencyKey string) (views.ReversalResponse, error)
}

type TransactionServiceImpl struct {
	logger      *zap.Logger
	ledger      Ledger
	idempotency IdempotencyStore
	ttl         time.Duration
	publisher   EventPublisher
	clock       func() time.Time
}

func NewTransactionService(logger *zap.Logger, l Ledger, idempotency IdempotencyStore, ttl time.Duration, publisher EventPublisher) TransactionService {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &TransactionServiceImpl{
		logger:      logger,
		ledger:      l,
		idempotency: idempotency,
		ttl:         ttl,
		publisher:   publisher,
		clock:       time.Now,
	}
}

func (s *TransactionServiceImpl) Deposit(ctx context.Context, userID string, accountID int64, idempotencyKey string, req views.AmountRequest) (views.TransactionResponse, error) {
	var trx models.Transaction
	err := s.once(ctx, userID, idempotencyKey, func(ctx context.Context) (err error) {
		trx, err = s.ledger.Deposit(ctx, userID, accountID, req.Amount)
		return err
	})
	if err != nil {
		return views.TransactionResponse{}, err
	}
	s.publish(ctx, pkgviews.EventTransactionRecorded, trx)
	return views.ToTransactionResponse(trx), nil
}

func (s *TransactionServiceImpl) Withdraw(ctx context.Context, userID string, accountID int64, idempotencyKey string, req views.AmountRequest) (views.TransactionResponse, error) {
	var trx models.Transaction
	err := s.once(ctx, userID, idempotencyKey, func(ctx context.Context) (err error) {
		trx, err = s.ledger.Withdraw(ctx, userID, accountID, req.Amount)
		return err
	})
	if err != nil {
		return views.TransactionResponse{}, err
	}
	s.publish(ctx, pkgviews.EventTransactionRecorded, trx)
	return views.ToTransactionResponse(trx), nil
}

func (s *TransactionServiceImpl) Transfer(ctx context.Context, userID string, accountID int64, idempotencyKey string, req views.TransferRequest) (views.TransactionResponse, error) {
	var trx models.Transaction
	err := s.once(ctx, userID, idempotencyKey, func(ctx context.Context) (err error) {
		trx, err = s.ledger.Transfer(ctx, userID, accountID, req.ReceiverAccountNumber, req.Amount)
		return err
	})
	if err != nil {
		return views.TransactionResponse{}, err
	}
	s.logger.Info("transfer committed",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.String(pkg.UserId, pkg.UserIDFromContext(ctx)),
		zap.String(pkg.TransactionId, trx.ID.String()),
		zap.Int64(pkg.AccountId, accountID),
		zap.String("amount", trx.Amount.String()),
		zap.String("fee", trx.Fee.String()))
	s.publish(ctx, pkgviews.EventTransactionRecorded, trx)
	return views.ToTransactionResponse(trx), nil
}

func (s *TransactionServiceImpl) ListTransactions(ctx context.Context, userID string, accountID int64) ([]views.TransactionSummaryResponse, error) {
	summaries, err := s.ledger.ListTransactions(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return views.ToSummaryResponses(summaries), nil
}

func (s *TransactionServiceImpl) GetTransaction(ctx context.Context, userID string, trxID uuid.UUID) (views.TransactionDetailResponse, error) {
	detail, err := s.ledger.GetTransactionDetail(ctx, userID, trxID)
	if err != nil {
		return views.TransactionDetailResponse{}, err
	}
	return views.ToDetailResponse(detail), nil
}

func (s *TransactionServiceImpl) CancelTransaction(ctx context.Context, userID string, trxID uuid.UUID) (views.TransactionResponse, error) {
	trx, err := s.ledger.CancelTransaction(ctx, userID, trxID)
	if err != nil {
		return views.TransactionResponse{}, err
	}
	s.logger.Info("transaction cancelled",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.String(pkg.TransactionId, trxID.String()))
	s.publish(ctx, pkgviews.EventTransactionCancelled, trx)
	return views.ToTransactionResponse(trx), nil
}

func (s *TransactionServiceImpl) ReverseTransaction(ctx context.Context, userID string, trxID uuid.UUID, idempotencyKey string) (views.ReversalResponse, error) {
	var result ledger.Reversal
	err := s.once(ctx, userID, idempotencyKey, func(ctx context.Context) (err error) {
		result, err = s.ledger.ReverseTransaction(ctx, userID, trxID)
		return err
	})
	if err != nil {
		return views.ReversalResponse{}, err
	}
	s.logger.Info("transaction reversed",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.String(pkg.TransactionId, trxID.String()),
		zap.String("reversal_id", result.Reversal.ID.String()))
	s.publish(ctx, pkgviews.EventTransactionCancelled, result.Original)
	s.publish(ctx, pkgviews.EventTransactionRecorded, result.Reversal)
	return views.ToReversalResponse(result), nil
}

// once runs fn at most once per (userID, key) inside the idempotency window.
// An empty key disables the check. The key is freed again when fn fails.
func (s *TransactionServiceImpl) once(ctx context.Context, userID, key string, fn func(ctx context.Context) error) error {
	if key == "" || s.idempotency == nil {
		return fn(ctx)
	}
	if len(key) > MaxIdempotencyKeyLength {
		return pkg.NewAppError(pkg.ErrInvalidInputCode,
			fmt.Sprintf("idempotency key longer than %d characters", MaxIdempotencyKeyLength), nil)
	}

	scoped := userID + ":" + key
	reserved, err := s.idempotency.Reserve(ctx, scoped, s.ttl)
	if err != nil {
		return pkg.NewAppError(pkg.ErrServerCode, "idempotency store unavailable", err)
	}
	if !reserved {
		return ledger.DuplicateRequest(key)
	}

	if err := fn(ledger.WithIdempotencyKey(ctx, key)); err != nil {
		// the request may be retried with the same key
		if relErr := s.idempotency.Release(context.WithoutCancel(ctx), scoped); relErr != nil {
			s.logger.Warn("failed to release idempotency key",
				zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
				zap.String(pkg.IdempotencyKey, key),
				zap.Error(relErr))
		}
		return err
	}
	return nil
}

func (s *TransactionServiceImpl) publish(ctx context.Context, event pkgviews.LedgerEventType, trx models.Transaction) {
	s.publisher.Publish(ctx, pkgviews.NewLedgerEvent(event, trx, pkg.TraceIDFromContext(ctx), s.clock()))
}
