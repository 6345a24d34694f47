package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/repositories"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/views"
	"go.uber.org/zap"
)

// DefaultAccountNumberAttempts bounds the generate-and-check loop of CreateAccount.
const DefaultAccountNumberAttempts = 10

type AccountService interface {
	CreateAccount(ctx context.Context, userID string, req views.CreateAccountRequest) (views.AccountResponse, error)
	GetOwnAccount(ctx context.Context, userID string, accountID int64) (views.AccountResponse, error)
	ListOwnAccounts(ctx context.Context, userID string) ([]views.AccountResponse, error)
	GetAccountInfoByNumber(ctx context.Context, accountNumber string) (views.AccountInfoResponse, error)
	SetTransferLimit(ctx context.Context, userID string, accountID int64, req views.TransferLimitRequest) (views.AccountResponse, error)
	DeleteAccount(ctx context.Context, userID string, accountID int64) error
}

type AccountServiceImpl struct {
	logger   *zap.Logger
	store    repositories.UnitOfWork
	locker   *ledger.AccountLocker
	attempts int
	numbers  func() string
	clock    func() time.Time
}

// NewAccountService shares locker with the ledger engine so limit changes and deletes
// never interleave with money movement on the same account.
func NewAccountService(logger *zap.Logger, store repositories.UnitOfWork, locker *ledger.AccountLocker, attempts int) AccountService {
	if attempts <= 0 {
		attempts = DefaultAccountNumberAttempts
	}
	return &AccountServiceImpl{
		logger:   logger,
		store:    store,
		locker:   locker,
		attempts: attempts,
		numbers:  randomAccountNumber,
		clock:    time.Now,
	}
}

// randomAccountNumber returns "1000" followed by eight random digits.
func randomAccountNumber() string {
	return fmt.Sprintf("1000%08d", rand.Intn(100_000_000))
}

func (s *AccountServiceImpl) CreateAccount(ctx context.Context, userID string, req views.CreateAccountRequest) (views.AccountResponse, error) {
	if err := validateLimit(req.TransferLimit); err != nil {
		return views.AccountResponse{}, err
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		now := s.clock().UTC()
		account := models.Account{
			AccountNumber: s.numbers(),
			OwnerID:       userID,
			Balance:       money.Zero,
			TransferLimit: req.TransferLimit,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
			if _, err := tx.Accounts().FindByNumber(ctx, account.AccountNumber); err == nil {
				return pkg.ErrDuplicateRecord
			} else if !errors.Is(err, pkg.ErrRecordNotFound) {
				return err
			}
			return tx.Accounts().Save(ctx, &account)
		})
		if errors.Is(err, pkg.ErrDuplicateRecord) {
			s.logger.Debug("account number taken, retrying",
				zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return views.AccountResponse{}, ledger.StoreError(err, ledger.NotFound("account"))
		}
		s.logger.Info("account created",
			zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
			zap.String(pkg.UserId, userID),
			zap.Int64(pkg.AccountId, account.ID))
		return views.ToAccountResponse(account), nil
	}
	return views.AccountResponse{}, pkg.NewAppError(pkg.ErrAccountNumberConflictCode,
		pkg.ErrAccountNumberConflictCode.Message,
		fmt.Errorf("%d attempts exhausted", s.attempts))
}

func (s *AccountServiceImpl) GetOwnAccount(ctx context.Context, userID string, accountID int64) (views.AccountResponse, error) {
	var account models.Account
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		account, err = tx.Accounts().FindByOwnerAndID(ctx, userID, accountID)
		return err
	})
	if err != nil {
		return views.AccountResponse{}, ledger.StoreError(err, ledger.NotFound("account"))
	}
	return views.ToAccountResponse(account), nil
}

func (s *AccountServiceImpl) ListOwnAccounts(ctx context.Context, userID string) ([]views.AccountResponse, error) {
	var accounts []models.Account
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		accounts, err = tx.Accounts().FindAllByOwner(ctx, userID)
		return err
	})
	if err != nil {
		return nil, ledger.StoreError(err, ledger.NotFound("account"))
	}
	return views.ToAccountResponses(accounts), nil
}

func (s *AccountServiceImpl) GetAccountInfoByNumber(ctx context.Context, accountNumber string) (views.AccountInfoResponse, error) {
	var account models.Account
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		account, err = tx.Accounts().FindByNumber(ctx, accountNumber)
		return err
	})
	if err != nil {
		return views.AccountInfoResponse{}, ledger.StoreError(err, ledger.NotFound("account"))
	}
	if !account.IsActive {
		return views.AccountInfoResponse{}, ledger.Inactive("account")
	}
	return views.AccountInfoResponse{AccountNumber: account.AccountNumber, OwnerID: account.OwnerID}, nil
}

func (s *AccountServiceImpl) SetTransferLimit(ctx context.Context, userID string, accountID int64, req views.TransferLimitRequest) (views.AccountResponse, error) {
	if err := validateLimit(req.TransferLimit); err != nil {
		return views.AccountResponse{}, err
	}
	release, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return views.AccountResponse{}, err
	}
	defer release()

	var account models.Account
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		var err error
		if account, err = tx.Accounts().FindByOwnerAndID(ctx, userID, accountID); err != nil {
			return err
		}
		account.TransferLimit = req.TransferLimit
		account.UpdatedAt = s.clock().UTC()
		return tx.Accounts().Save(ctx, &account)
	})
	if err != nil {
		return views.AccountResponse{}, ledger.StoreError(err, ledger.NotFound("account"))
	}
	s.logger.Info("transfer limit updated",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.Int64(pkg.AccountId, accountID),
		zap.String("transfer_limit", req.TransferLimit.String()))
	return views.ToAccountResponse(account), nil
}

func (s *AccountServiceImpl) DeleteAccount(ctx context.Context, userID string, accountID int64) error {
	release, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		account, err := tx.Accounts().FindByOwnerAndID(ctx, userID, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return ledger.Inactive("account")
		}
		if !account.CanDelete() {
			return ledger.BalanceNotZero(account.Balance)
		}
		return tx.Accounts().Delete(ctx, accountID)
	})
	if err != nil {
		return ledger.StoreError(err, ledger.NotFound("account"))
	}
	s.logger.Info("account deleted",
		zap.String(pkg.TraceId, pkg.TraceIDFromContext(ctx)),
		zap.Int64(pkg.AccountId, accountID))
	return nil
}

func validateLimit(limit money.Amount) error {
	if !limit.IsPositive() {
		return pkg.NewAppError(pkg.ErrInvalidInputCode,
			fmt.Sprintf("transfer limit must be greater than zero, got %s", limit), ledger.ErrInvalidAmount)
	}
	return nil
}
