package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/shopspring/decimal"
)

// FeePolicy derives the fee charged on top of amount. Only transfers carry a fee.
type FeePolicy interface {
	FeeFor(trxType pkg.TransactionType, amount money.Amount) money.Amount
}

const (
	FeePolicyFlat       = "flat"
	FeePolicyPercentage = "percentage"
	FeePolicyTiered     = "tiered"
)

// DefaultTransferFee is the flat fee used when nothing else is configured.
var DefaultTransferFee = money.FromInt(100)

// FlatFee charges the same fee on every transfer.
type FlatFee struct {
	Fee money.Amount
}

func (f FlatFee) FeeFor(trxType pkg.TransactionType, _ money.Amount) money.Amount {
	if trxType != pkg.TransactionTypeTransfer {
		return money.Zero
	}
	return f.Fee
}

// PercentageFee charges Rate * amount, rounded to the minor unit, but never less than Minimum.
type PercentageFee struct {
	Rate    decimal.Decimal
	Minimum money.Amount
}

func (p PercentageFee) FeeFor(trxType pkg.TransactionType, amount money.Amount) money.Amount {
	if trxType != pkg.TransactionTypeTransfer {
		return money.Zero
	}
	fee := amount.Mul(p.Rate)
	if fee.LessThan(p.Minimum) {
		return p.Minimum
	}
	return fee
}

// FeeTier charges Fee for amounts up to and including UpTo.
type FeeTier struct {
	UpTo money.Amount
	Fee  money.Amount
}

// TieredFee picks the first tier whose UpTo covers the amount.
// Amounts above the last tier pay the last tier's fee.
type TieredFee struct {
	Tiers []FeeTier // ascending by UpTo
}

func (t TieredFee) FeeFor(trxType pkg.TransactionType, amount money.Amount) money.Amount {
	if trxType != pkg.TransactionTypeTransfer || len(t.Tiers) == 0 {
		return money.Zero
	}
	for _, tier := range t.Tiers {
		if amount.Cmp(tier.UpTo) <= 0 {
			return tier.Fee
		}
	}
	return t.Tiers[len(t.Tiers)-1].Fee
}

// ParseFeeTiers reads "1000:100,10000:250" into tiers sorted by threshold.
func ParseFeeTiers(s string) ([]FeeTier, error) {
	tiers := make([]FeeTier, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		upTo, fee, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("fee tier %q: want <upTo>:<fee>", part)
		}
		threshold, err := money.Parse(upTo)
		if err != nil {
			return nil, fmt.Errorf("fee tier %q: %w", part, err)
		}
		charge, err := money.Parse(fee)
		if err != nil {
			return nil, fmt.Errorf("fee tier %q: %w", part, err)
		}
		if !threshold.IsPositive() || charge.IsNegative() {
			return nil, fmt.Errorf("fee tier %q: threshold must be positive and fee non-negative", part)
		}
		tiers = append(tiers, FeeTier{UpTo: threshold, Fee: charge})
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("no fee tiers in %q", s)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].UpTo.LessThan(tiers[j].UpTo) })
	return tiers, nil
}

// FeeConfig is the configuration surface of NewFeePolicy.
type FeeConfig struct {
	Policy  string // flat | percentage | tiered, empty means flat
	Flat    string
	Rate    string
	Minimum string
	Tiers   string
}

// NewFeePolicy builds the policy named by cfg.Policy.
func NewFeePolicy(cfg FeeConfig) (FeePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", FeePolicyFlat:
		if cfg.Flat == "" {
			return FlatFee{Fee: DefaultTransferFee}, nil
		}
		fee, err := money.Parse(cfg.Flat)
		if err != nil {
			return nil, fmt.Errorf("transfer fee: %w", err)
		}
		if fee.IsNegative() {
			return nil, fmt.Errorf("transfer fee must not be negative, got %s", fee)
		}
		return FlatFee{Fee: fee}, nil
	case FeePolicyPercentage:
		rate, err := decimal.NewFromString(strings.TrimSpace(cfg.Rate))
		if err != nil {
			return nil, fmt.Errorf("fee rate %q: %w", cfg.Rate, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("fee rate must be within [0, 1], got %s", rate)
		}
		minimum := money.Zero
		if cfg.Minimum != "" {
			if minimum, err = money.Parse(cfg.Minimum); err != nil {
				return nil, fmt.Errorf("fee minimum: %w", err)
			}
		}
		return PercentageFee{Rate: rate, Minimum: minimum}, nil
	case FeePolicyTiered:
		tiers, err := ParseFeeTiers(cfg.Tiers)
		if err != nil {
			return nil, err
		}
		return TieredFee{Tiers: tiers}, nil
	default:
		return nil, fmt.Errorf("unknown fee policy %q", cfg.Policy)
	}
}
