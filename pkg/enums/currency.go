package enums

import "fmt"

// Currency represents supported monetary denominations.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyGBP Currency = "GBP"
)

var validCurrencies = []Currency{
	CurrencyNGN,
	CurrencyUSD,
	CurrencyGHS,
	CurrencyKES,
	CurrencyGBP,
}

// currencyMinorUnits is the number of fractional digits each currency's
// minor unit carries. Money math rounds to this precision.
var currencyMinorUnits = map[Currency]int32{
	CurrencyNGN: 2,
	CurrencyUSD: 2,
	CurrencyGHS: 2,
	CurrencyKES: 2,
	CurrencyGBP: 2,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// MinorUnits returns the fractional-digit precision for the currency.
// Unrecognized currencies default to two digits.
func (c Currency) MinorUnits() int32 {
	if units, ok := currencyMinorUnits[c]; ok {
		return units
	}
	return 2
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
