package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
)

// DefaultRate is the platform share applied when no override is configured.
var DefaultRate = decimal.RequireFromString("0.15")

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// Split is the result of dividing a gross amount between platform and payee.
type Split struct {
	Gross       int64           `json:"gross_cents"`
	PlatformFee int64           `json:"platform_fee_cents"`
	PayeeNet    int64           `json:"payee_net_cents"`
	Rate        decimal.Decimal `json:"rate"`
}

// PlatformFee returns gross*rate rounded half up to the nearest minor unit.
func PlatformFee(gross int64, rate decimal.Decimal) int64 {
	if gross <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(gross).Mul(clamp(rate))
	// Round rounds half away from zero, which is half up for non-negative values.
	return fee.Round(0).IntPart()
}

// PayeeNet returns the remainder owed to the payee.
func PayeeNet(gross int64, rate decimal.Decimal) int64 {
	return gross - PlatformFee(gross, rate)
}

// Compute splits gross at rate. PlatformFee+PayeeNet always equals Gross.
func Compute(gross int64, rate decimal.Decimal) Split {
	r := clamp(rate)
	fee := PlatformFee(gross, r)
	return Split{
		Gross:       gross,
		PlatformFee: fee,
		PayeeNet:    gross - fee,
		Rate:        r,
	}
}

func clamp(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(zero) {
		return zero
	}
	if rate.GreaterThan(one) {
		return one
	}
	return rate
}

// RateBook resolves the fee rate for each order kind.
type RateBook struct {
	rates map[enums.OrderKind]decimal.Decimal
}

// NewRateBook builds a RateBook with DefaultRate for every kind.
func NewRateBook() RateBook {
	return RateBook{rates: map[enums.OrderKind]decimal.Decimal{
		enums.OrderKindBoost:          DefaultRate,
		enums.OrderKindPartPurchase:   DefaultRate,
		enums.OrderKindServicePayment: DefaultRate,
	}}
}

// NewRateBookFromConfig parses the configured decimal rates.
func NewRateBookFromConfig(cfg config.FeesConfig) (RateBook, error) {
	book := NewRateBook()
	overrides := map[enums.OrderKind]string{
		enums.OrderKindBoost:          cfg.BoostRate,
		enums.OrderKindPartPurchase:   cfg.PartPurchaseRate,
		enums.OrderKindServicePayment: cfg.ServicePaymentRate,
	}
	for kind, raw := range overrides {
		if raw == "" {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return RateBook{}, fmt.Errorf("parse %s fee rate %q: %w", kind, raw, err)
		}
		if rate.LessThan(zero) || rate.GreaterThan(one) {
			return RateBook{}, fmt.Errorf("%s fee rate %s outside [0,1]", kind, rate)
		}
		book.rates[kind] = rate
	}
	return book, nil
}

// WithRate returns a copy of the book with kind priced at rate.
func (b RateBook) WithRate(kind enums.OrderKind, rate decimal.Decimal) RateBook {
	next := make(map[enums.OrderKind]decimal.Decimal, len(b.rates)+1)
	for k, v := range b.rates {
		next[k] = v
	}
	next[kind] = clamp(rate)
	return RateBook{rates: next}
}

// RateFor returns the rate for kind, falling back to DefaultRate.
func (b RateBook) RateFor(kind enums.OrderKind) decimal.Decimal {
	if rate, ok := b.rates[kind]; ok {
		return rate
	}
	return DefaultRate
}

// SplitFor computes the split for gross using the rate configured for kind.
func (b RateBook) SplitFor(kind enums.OrderKind, gross int64) Split {
	return Compute(gross, b.RateFor(kind))
}
