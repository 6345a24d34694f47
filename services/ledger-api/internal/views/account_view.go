package views

import (
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
)

type CreateAccountRequest struct {
	TransferLimit money.Amount `json:"transferLimit"`
}

type TransferLimitRequest struct {
	TransferLimit money.Amount `json:"transferLimit"`
}

type AccountResponse struct {
	AccountID     int64        `json:"accountId"`
	AccountNumber string       `json:"accountNumber"`
	OwnerID       string       `json:"ownerId"`
	Balance       money.Amount `json:"balance"`
	TransferLimit money.Amount `json:"transferLimit"`
	IsActive      bool         `json:"isActive"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// AccountInfoResponse is what any caller may learn about someone else's account.
type AccountInfoResponse struct {
	AccountNumber string `json:"accountNumber"`
	OwnerID       string `json:"ownerId"`
}

func ToAccountResponse(a models.Account) AccountResponse {
	return AccountResponse{
		AccountID:     a.ID,
		AccountNumber: a.AccountNumber,
		OwnerID:       a.OwnerID,
		Balance:       a.Balance,
		TransferLimit: a.TransferLimit,
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func ToAccountResponses(accounts []models.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, ToAccountResponse(a))
	}
	return out
}
