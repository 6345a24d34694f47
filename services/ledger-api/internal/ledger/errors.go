package ledger

import (
	"errors"
	"fmt"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

// Sentinels for errors.Is. Domain failures are pkg.AppErrors wrapping one of these.
var (
	ErrNotFound              = errors.New("not found")
	ErrReceiverNotFound      = fmt.Errorf("receiver account %w", ErrNotFound)
	ErrAccessDenied          = errors.New("access denied")
	ErrAccountInactive       = errors.New("account inactive")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrTransferLimitExceeded = errors.New("transfer limit exceeded")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrNotCancellable        = errors.New("not cancellable")
	ErrSameAccount           = errors.New("same account")
	ErrBusy                  = errors.New("account busy")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrBalanceNotZero        = errors.New("balance not zero")
)

// NotFound builds a not-found error for the named resource.
func NotFound(what string) error {
	return pkg.NewAppError(pkg.ErrRecordNotFoundCode, what+" not found", ErrNotFound)
}

func ReceiverNotFound() error {
	return pkg.NewAppError(pkg.ErrRecordNotFoundCode, "receiver account not found", ErrReceiverNotFound)
}

func AccessDenied() error {
	return pkg.NewAppError(pkg.ErrAccessDeniedCode, "caller does not own this resource", ErrAccessDenied)
}

// Inactive names the side ("account", "sender", "receiver") that failed.
func Inactive(side string) error {
	return pkg.NewAppError(pkg.ErrAccountInactiveCode, side+" account is inactive", ErrAccountInactive)
}

func InsufficientFunds(balance, required money.Amount) error {
	return pkg.NewAppError(pkg.ErrInsufficientFundsCode,
		fmt.Sprintf("insufficient balance: %s available, %s required", balance, required), ErrInsufficientFunds)
}

func LimitExceeded(limit, amount money.Amount) error {
	return pkg.NewAppError(pkg.ErrTransferLimitCode,
		fmt.Sprintf("amount %s exceeds transfer limit %s", amount, limit), ErrTransferLimitExceeded)
}

func InvalidAmount(amount money.Amount) error {
	return pkg.NewAppError(pkg.ErrInvalidAmountCode,
		fmt.Sprintf("amount must be greater than zero, got %s", amount), ErrInvalidAmount)
}

func NotCancellable(reason string) error {
	return pkg.NewAppError(pkg.ErrNotCancellableCode, reason, ErrNotCancellable)
}

func SameAccount() error {
	return pkg.NewAppError(pkg.ErrSameAccountCode, pkg.ErrSameAccountCode.Message, ErrSameAccount)
}

func Busy(cause error) error {
	return pkg.NewAppError(pkg.ErrBusyCode, pkg.ErrBusyCode.Message, fmt.Errorf("%w: %v", ErrBusy, cause))
}

// DuplicateRequest is returned when an idempotency key was already used inside its window.
func DuplicateRequest(key string) error {
	return pkg.NewAppError(pkg.ErrIdempotencyConflictCode,
		fmt.Sprintf("request with idempotency key %q was already processed", key), ErrDuplicateRequest)
}

// BalanceNotZero is returned when deleting an account that still holds money.
func BalanceNotZero(balance money.Amount) error {
	return pkg.NewAppError(pkg.ErrBalanceNotZeroCode,
		fmt.Sprintf("account balance must be zero to delete, got %s", balance), ErrBalanceNotZero)
}

// StoreError maps a store failure: pkg.ErrRecordNotFound becomes ifMissing,
// AppErrors pass through, anything else is an internal error.
func StoreError(err error, ifMissing error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pkg.ErrRecordNotFound) {
		return ifMissing
	}
	var appErr pkg.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return pkg.NewAppError(pkg.ErrServerCode, "ledger store failure", err)
}
