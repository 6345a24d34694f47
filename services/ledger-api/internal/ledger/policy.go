package ledger

import (
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

// LimitPolicy decides whether an account may send amount in one operation.
type LimitPolicy interface {
	Validate(account *AccountLedger, amount money.Amount) error
}

// PerAccountLimit enforces the account's own transfer limit. Equal to the limit is allowed.
type PerAccountLimit struct{}

func (PerAccountLimit) Validate(account *AccountLedger, amount money.Amount) error {
	if amount.GreaterThan(account.Limit()) {
		return LimitExceeded(account.Limit(), amount)
	}
	return nil
}
