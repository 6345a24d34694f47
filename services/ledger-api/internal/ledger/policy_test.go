package ledger

import (
	"testing"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/models"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerWith(balance, limit string) *AccountLedger {
	return NewAccountLedger(models.Account{
		ID:            1,
		Balance:       money.MustParse(balance),
		TransferLimit: money.MustParse(limit),
		IsActive:      true,
	})
}

func TestAccountLedger_Debit(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		amount  string
		want    string
		wantErr error
	}{
		{name: "whole balance", balance: "100.00", amount: "100.00", want: "0.00"},
		{name: "partial", balance: "100.00", amount: "0.01", want: "99.99"},
		{name: "one cent over", balance: "100.00", amount: "100.01", want: "100.00", wantErr: ErrInsufficientFunds},
		{name: "zero", balance: "100.00", amount: "0", want: "100.00", wantErr: ErrInvalidAmount},
		{name: "negative", balance: "100.00", amount: "-5", want: "100.00", wantErr: ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledgerWith(tt.balance, "1000")
			err := l.Debit(money.MustParse(tt.amount))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, l.Balance().String())
		})
	}
}

func TestAccountLedger_Credit(t *testing.T) {
	l := ledgerWith("0", "1000")
	require.NoError(t, l.Credit(money.MustParse("0.10")))
	require.NoError(t, l.Credit(money.MustParse("0.20")))
	assert.Equal(t, "0.30", l.Balance().String())

	assert.ErrorIs(t, l.Credit(money.Zero), ErrInvalidAmount)
	assert.Equal(t, pkg.ErrInvalidAmountCode, pkg.CodeOf(l.Credit(money.MustParse("-1"))))
}

func TestPerAccountLimit(t *testing.T) {
	l := ledgerWith("5000", "1000")
	policy := PerAccountLimit{}

	assert.NoError(t, policy.Validate(l, money.MustParse("1000.00")))
	err := policy.Validate(l, money.MustParse("1000.01"))
	assert.ErrorIs(t, err, ErrTransferLimitExceeded)
	assert.Equal(t, pkg.ErrTransferLimitCode, pkg.CodeOf(err))
}

func TestFlatFee(t *testing.T) {
	fee := FlatFee{Fee: DefaultTransferFee}
	assert.Equal(t, "100.00", fee.FeeFor(pkg.TransactionTypeTransfer, money.FromInt(1)).String())
	assert.True(t, fee.FeeFor(pkg.TransactionTypeDeposit, money.FromInt(500)).IsZero())
	assert.True(t, fee.FeeFor(pkg.TransactionTypeWithdrawal, money.FromInt(500)).IsZero())
}

func TestPercentageFee(t *testing.T) {
	fee := PercentageFee{Rate: decimal.RequireFromString("0.015"), Minimum: money.MustParse("1.00")}

	assert.Equal(t, "15.00", fee.FeeFor(pkg.TransactionTypeTransfer, money.FromInt(1000)).String())
	assert.Equal(t, "1.00", fee.FeeFor(pkg.TransactionTypeTransfer, money.FromInt(10)).String(), "minimum applies")
	assert.Equal(t, "1.51", fee.FeeFor(pkg.TransactionTypeTransfer, money.MustParse("100.50")).String(), "1.5075 rounds to 1.51")
	assert.True(t, fee.FeeFor(pkg.TransactionTypeDeposit, money.FromInt(1000)).IsZero())
}

func TestTieredFee(t *testing.T) {
	tiers, err := ParseFeeTiers("10000:250, 1000:100")
	require.NoError(t, err)
	fee := TieredFee{Tiers: tiers}

	tests := []struct {
		amount string
		want   string
	}{
		{amount: "0.01", want: "100.00"},
		{amount: "1000.00", want: "100.00"},
		{amount: "1000.01", want: "250.00"},
		{amount: "10000.00", want: "250.00"},
		{amount: "50000.00", want: "250.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fee.FeeFor(pkg.TransactionTypeTransfer, money.MustParse(tt.amount)).String(), tt.amount)
	}
	assert.True(t, TieredFee{}.FeeFor(pkg.TransactionTypeTransfer, money.FromInt(5)).IsZero())
}

func TestParseFeeTiers_Invalid(t *testing.T) {
	for _, in := range []string{"", "1000", "abc:1", "1000:x", "0:10", "100:-1", "10:0.001"} {
		_, err := ParseFeeTiers(in)
		assert.Error(t, err, in)
	}
}

func TestNewFeePolicy(t *testing.T) {
	p, err := NewFeePolicy(FeeConfig{})
	require.NoError(t, err)
	assert.Equal(t, FlatFee{Fee: DefaultTransferFee}, p)

	p, err = NewFeePolicy(FeeConfig{Policy: "FLAT", Flat: "2.50"})
	require.NoError(t, err)
	assert.Equal(t, "2.50", p.FeeFor(pkg.TransactionTypeTransfer, money.FromInt(1)).String())

	p, err = NewFeePolicy(FeeConfig{Policy: FeePolicyPercentage, Rate: "0.01", Minimum: "0.50"})
	require.NoError(t, err)
	assert.Equal(t, "0.50", p.FeeFor(pkg.TransactionTypeTransfer, money.FromInt(1)).String())

	p, err = NewFeePolicy(FeeConfig{Policy: FeePolicyTiered, Tiers: "100:1"})
	require.NoError(t, err)
	assert.IsType(t, TieredFee{}, p)

	for _, cfg := range []FeeConfig{
		{Policy: "bogus"},
		{Flat: "-1"},
		{Flat: "1.001"},
		{Policy: FeePolicyPercentage, Rate: "1.5"},
		{Policy: FeePolicyPercentage, Rate: "x"},
		{Policy: FeePolicyTiered},
	} {
		_, err := NewFeePolicy(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestAccessGuard(t *testing.T) {
	guard := AccessGuard{}
	alice := models.Account{ID: 1, OwnerID: "alice"}
	bob := models.Account{ID: 2, OwnerID: "bob"}
	trx := models.Transaction{SenderAccountID: 1, ReceiverAccountID: 2}

	assert.NoError(t, guard.AuthorizeOwn("alice", alice))
	assert.ErrorIs(t, guard.AuthorizeOwn("bob", alice), ErrAccessDenied)
	assert.ErrorIs(t, guard.AuthorizeOwn("", models.Account{}), ErrAccessDenied)

	assert.NoError(t, guard.AuthorizeParticipant("alice", trx, &alice, &bob))
	assert.NoError(t, guard.AuthorizeParticipant("bob", trx, &alice, &bob))
	assert.NoError(t, guard.AuthorizeParticipant("bob", trx, nil, &bob), "sender deleted")
	assert.ErrorIs(t, guard.AuthorizeParticipant("carol", trx, &alice, &bob), ErrAccessDenied)
	assert.ErrorIs(t, guard.AuthorizeParticipant("alice", trx, nil, &bob), ErrAccessDenied)
}
