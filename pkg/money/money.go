package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Round rounds an amount to the currency's minor unit using banker's
// rounding. All persisted money fields pass through this before storage so
// repeated recomputation never drifts.
func Round(amount decimal.Decimal, currency enums.Currency) decimal.Decimal {
	return amount.RoundBank(currency.MinorUnits())
}

// Percent applies a percentage (e.g. 2.5 for 2.5%) to a base amount and
// rounds the result to the currency's minor unit.
func Percent(base decimal.Decimal, percent decimal.Decimal, currency enums.Currency) decimal.Decimal {
	raw := base.Mul(percent).Div(decimal.NewFromInt(100))
	return Round(raw, currency)
}

// ToMinorUnits converts an amount to the integer minor-unit representation
// gateways bill in (e.g. 57.50 NGN -> 5750 kobo). The amount is rounded to
// the currency's precision first so no sub-minor-unit value is truncated.
func ToMinorUnits(amount decimal.Decimal, currency enums.Currency) int64 {
	scaled := Round(amount, currency).Shift(currency.MinorUnits())
	return scaled.IntPart()
}

// FromMinorUnits converts a gateway's integer minor-unit amount back into a
// decimal amount.
func FromMinorUnits(value int64, currency enums.Currency) decimal.Decimal {
	return decimal.NewFromInt(value).Shift(-currency.MinorUnits())
}

// Parse converts a decimal string (the wire format for money) into a
// Decimal, rejecting values that are not finite numbers.
func Parse(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid money amount %q: %w", value, err)
	}
	return amount, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func IsPositive(amount decimal.Decimal) bool {
	return amount.GreaterThan(decimal.Zero)
}

// IsNonNegative reports whether the amount is zero or greater.
func IsNonNegative(amount decimal.Decimal) bool {
	return !amount.IsNegative()
}
