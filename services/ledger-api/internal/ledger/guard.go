package ledger

import (
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
)

// AccessGuard checks that the caller principal may act on accounts and transactions.
type AccessGuard struct{}

// AuthorizeOwn allows only the account owner.
func (AccessGuard) AuthorizeOwn(actor string, account models.Account) error {
	if actor == "" || account.OwnerID != actor {
		return AccessDenied()
	}
	return nil
}

// AuthorizeParticipant allows the owner of either side of trx.
// sender and receiver are nil when that account no longer exists.
func (AccessGuard) AuthorizeParticipant(actor string, trx models.Transaction, sender, receiver *models.Account) error {
	if actor == "" {
		return AccessDenied()
	}
	if sender != nil && sender.ID == trx.SenderAccountID && sender.OwnerID == actor {
		return nil
	}
	if receiver != nil && receiver.ID == trx.ReceiverAccountID && receiver.OwnerID == actor {
		return nil
	}
	return AccessDenied()
}
