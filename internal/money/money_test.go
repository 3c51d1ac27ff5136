package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajor(t *testing.T) {
	m, err := FromMajor("29.99", "eur")
	require.NoError(t, err)
	assert.Equal(t, int64(2999), m.Amount)
	assert.Equal(t, "EUR", m.Currency)

	m, err = FromMajor("4.995", "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(500), m.Amount, "half-up rounding to the minor unit")

	_, err = FromMajor("-1", "EUR")
	assert.ErrorIs(t, err, ErrNegative)

	_, err = FromMajor("abc", "EUR")
	assert.Error(t, err)
}

func TestMajorToMinorRoundsHalfUp(t *testing.T) {
	assert.Equal(t, "3999", MajorToMinor(decimal.RequireFromString("39.992")).String())
	assert.Equal(t, "4000", MajorToMinor(decimal.RequireFromString("39.995")).String())
}

func TestAddSub(t *testing.T) {
	a := New(2999, "EUR")
	b := New(499, "EUR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(3498), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), diff.Amount)

	_, err = b.Sub(a)
	assert.ErrorIs(t, err, ErrNegative)

	_, err = a.Add(New(1, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestString(t *testing.T) {
	assert.Equal(t, "49.99 EUR", New(4999, "eur").String())
	assert.Equal(t, "1.00 EUR", New(100, "EUR").String())
}
