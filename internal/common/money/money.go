package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

// CurrencyInfo contains metadata about a currency
type CurrencyInfo struct {
	Code       Currency
	MinorUnits int32 // Number of decimal places
}

var currencies = map[Currency]CurrencyInfo{
	USD:   {Code: USD, MinorUnits: 2},
	EUR:   {Code: EUR, MinorUnits: 2},
	GBP:   {Code: GBP, MinorUnits: 2},
	JPY:   {Code: JPY, MinorUnits: 0},
	"AUD": {Code: "AUD", MinorUnits: 2},
	"CAD": {Code: "CAD", MinorUnits: 2},
	"CHF": {Code: "CHF", MinorUnits: 2},
	"NZD": {Code: "NZD", MinorUnits: 2},
	"SGD": {Code: "SGD", MinorUnits: 2},
	"HKD": {Code: "HKD", MinorUnits: 2},
	"AED": {Code: "AED", MinorUnits: 2},
	"SAR": {Code: "SAR", MinorUnits: 2},
	"INR": {Code: "INR", MinorUnits: 2},
	"KRW": {Code: "KRW", MinorUnits: 0},
	"KWD": {Code: "KWD", MinorUnits: 3},
	"BHD": {Code: "BHD", MinorUnits: 3},
	"OMR": {Code: "OMR", MinorUnits: 3},
	"JOD": {Code: "JOD", MinorUnits: 3},
}

var ErrInvalidAmount = errors.New("invalid amount")

// GetCurrencyInfo returns info about a currency. Unknown currencies default to
// two minor units, which is what the gateway assumes as well.
func GetCurrencyInfo(c Currency) (CurrencyInfo, bool) {
	info, ok := currencies[c]
	if !ok {
		return CurrencyInfo{Code: c, MinorUnits: 2}, false
	}
	return info, true
}

// Money represents a monetary amount in minor units (cents, pence, etc.)
type Money struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// New creates a new Money value from minor units
func New(amountMinor int64, currency Currency) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

// FromDecimal rounds d half-away-from-zero to the currency's minor units.
func FromDecimal(d decimal.Decimal, currency Currency) Money {
	info, _ := GetCurrencyInfo(currency)
	minor := d.Round(info.MinorUnits).Shift(info.MinorUnits)
	return Money{AmountMinor: minor.IntPart(), Currency: currency}
}

// Parse reads a decimal string such as "49.99" or "1,049.99". Grouping commas
// are tolerated because store totals are often pre-formatted.
func Parse(amount string, currency Currency) (Money, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(amount), ",", "")
	if cleaned == "" {
		return Money{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return FromDecimal(d, currency), nil
}

// Zero returns a zero amount for a currency
func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	info, _ := GetCurrencyInfo(m.Currency)
	return decimal.New(m.AmountMinor, -info.MinorUnits)
}

// StringFixed formats the major amount with exactly the currency's minor units,
// which is the representation the gateway expects on the wire.
func (m Money) StringFixed() string {
	info, _ := GetCurrencyInfo(m.Currency)
	return m.Decimal().StringFixed(info.MinorUnits)
}

// Compare returns -1, 0, or 1
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	switch {
	case m.AmountMinor < other.AmountMinor:
		return -1, nil
	case m.AmountMinor > other.AmountMinor:
		return 1, nil
	}
	return 0, nil
}

// Equal checks equality
func (m Money) Equal(other Money) bool {
	return m.AmountMinor == other.AmountMinor && m.Currency == other.Currency
}

// String returns e.g. "49.99 USD"
func (m Money) String() string {
	return m.StringFixed() + " " + string(m.Currency)
}
