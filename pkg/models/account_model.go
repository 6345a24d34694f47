package models

import (
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

// Account maps to table `accounts`
type Account struct {
	ID            int64
	AccountNumber string
	OwnerID       string
	Balance       money.Amount
	TransferLimit money.Amount
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanDelete reports whether the balance is exactly zero.
func (a Account) CanDelete() bool {
	return a.Balance.IsZero()
}
