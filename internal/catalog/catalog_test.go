package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "EUR", c.Currency())

	p, err := c.Package("1year")
	require.NoError(t, err)
	assert.Equal(t, int64(2999), p.UnitPrice.Amount)

	p, err = c.Package("2year")
	require.NoError(t, err)
	assert.Equal(t, int64(4999), p.UnitPrice.Amount)
	assert.True(t, p.Popular)

	features, err := c.Features([]string{"nude", "nude"})
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, int64(499), features[0].Price.Amount)

	assert.True(t, c.AllowsCountry("nl"))
	assert.False(t, c.AllowsCountry("US"))
	assert.Len(t, c.Packages(), 2)
}

func TestUnknownIDs(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	_, err = c.Package("lifetime")
	assert.ErrorIs(t, err, ErrUnknownPackage)

	_, err = c.Features([]string{"vip"})
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
currency: usd
packages:
  - id: monthly
    name: Monthly
    price: "9.5"
    billing_period: month
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USD", c.Currency())

	p, err := c.Package("monthly")
	require.NoError(t, err)
	assert.Equal(t, int64(950), p.UnitPrice.Amount)
	assert.True(t, c.AllowsCountry("anywhere"))
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	_, err := Parse([]byte("packages: []\ncurrency: EUR\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("currency: EUR\npackages:\n  - id: a\n    price: nope\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("currency: EUR\npackages:\n  - id: a\n    price: '1'\n  - id: a\n    price: '2'\n"))
	assert.Error(t, err)
}
