package plans

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTiers(t *testing.T) {
	c := Default()

	starter := c.ForTier("starter")
	assert.Equal(t, int64(10), starter.PerMinute)
	assert.Equal(t, int64(200), starter.PerHour)
	assert.Equal(t, int64(100), starter.MonthlyCredits)

	growth := c.ForTier(" Growth ")
	assert.Equal(t, int64(30), growth.PerMinute)
	assert.Equal(t, int64(500), growth.MonthlyCredits)

	fallback := c.ForTier("")
	assert.Equal(t, TierDefault, fallback.Tier)
	assert.Equal(t, int64(5), fallback.PerMinute)
	assert.Equal(t, int64(50), fallback.PerHour)

	_, ok := c.Lookup("platinum")
	assert.False(t, ok)
	_, ok = c.Lookup(TierDefault)
	assert.False(t, ok, "default is not a purchasable tier")
	assert.Equal(t, "USD", c.Currency())
}

func TestOverrides(t *testing.T) {
	c, err := NewCatalog(Options{
		RateLimits:    "starter:20/400, default:1/10",
		OveragePrices: "growth:0.12,pro:0.10",
		Currency:      "eur",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20), c.ForTier("starter").PerMinute)
	assert.Equal(t, int64(400), c.ForTier("starter").PerHour)
	assert.Equal(t, int64(100), c.ForTier("starter").MonthlyCredits, "credits survive rate override")
	assert.Equal(t, int64(1), c.ForTier("unknown").PerMinute)
	assert.True(t, c.ForTier("growth").OveragePrice.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, c.ForTier("starter").OveragePrice.IsZero())
	assert.Equal(t, "EUR", c.Currency())
}

func TestOverridesRejectGarbage(t *testing.T) {
	_, err := NewCatalog(Options{RateLimits: "starter:ten/200"})
	assert.Error(t, err)
	_, err = NewCatalog(Options{RateLimits: "starter:10"})
	assert.Error(t, err)
	_, err = NewCatalog(Options{OveragePrices: "growth:-1"})
	assert.Error(t, err)
	_, err = NewCatalog(Options{OveragePrices: "platinum:0.5"})
	assert.Error(t, err)
}
