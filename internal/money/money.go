package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of minor units in one major currency unit.
// All currencies accepted by the checkout use two decimal places.
const MinorUnitsPerMajor = 100

var hundred = decimal.NewFromInt(MinorUnitsPerMajor)

// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// ErrNegative is returned when an amount would become negative.
var ErrNegative = errors.New("money: negative amount")

// Money is a non-negative amount expressed in minor currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New builds a Money value from minor units.
func New(minor int64, currency string) Money {
	return Money{Amount: minor, Currency: NormalizeCurrency(currency)}
}

// FromMajor parses a major-unit amount such as "29.99" into Money, rounding half-up to the minor unit.
func FromMajor(major string, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(major))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", major, err)
	}
	if d.IsNegative() {
		return Money{}, ErrNegative
	}
	return New(MajorToMinor(d).IntPart(), currency), nil
}

// MustFromMajor is FromMajor for literals known to be valid.
func MustFromMajor(major string, currency string) Money {
	m, err := FromMajor(major, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// NormalizeCurrency upper-cases and trims an ISO currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// MajorToMinor converts a major-unit decimal into minor units, rounded half-up.
func MajorToMinor(major decimal.Decimal) decimal.Decimal {
	return major.Mul(hundred).Round(0)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

// MinorDecimal returns the amount in minor units as a decimal, for unrounded intermediate math.
func (m Money) MinorDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount)
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Sub subtracts o from m; the result must not be negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	if o.Amount > m.Amount {
		return Money{}, ErrNegative
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}, nil
}

// LessThan reports whether m is strictly below o. Currencies are assumed equal.
func (m Money) LessThan(o Money) bool {
	return m.Amount < o.Amount
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// String renders the amount as "29.99 EUR".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}
