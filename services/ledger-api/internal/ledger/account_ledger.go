package ledger

import (
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

// AccountLedger is the mutable view of one account inside a unit of work.
// Its balance never goes below zero.
type AccountLedger struct {
	account models.Account
}

func NewAccountLedger(account models.Account) *AccountLedger {
	return &AccountLedger{account: account}
}

// Debit removes amount, failing without change when the balance cannot cover it.
func (l *AccountLedger) Debit(amount money.Amount) error {
	if !amount.IsPositive() {
		return InvalidAmount(amount)
	}
	if l.account.Balance.LessThan(amount) {
		return InsufficientFunds(l.account.Balance, amount)
	}
	l.account.Balance = l.account.Balance.Sub(amount)
	return nil
}

// Credit adds amount.
func (l *AccountLedger) Credit(amount money.Amount) error {
	if !amount.IsPositive() {
		return InvalidAmount(amount)
	}
	l.account.Balance = l.account.Balance.Add(amount)
	return nil
}

func (l *AccountLedger) ID() int64 { return l.account.ID }
func (l *AccountLedger) IsActive() bool { return l.account.IsActive }
func (l *AccountLedger) Limit() money.Amount { return l.account.TransferLimit }
func (l *AccountLedger) Balance() money.Amount { return l.account.Balance }
func (l *AccountLedger) Account() models.Account { return l.account }
