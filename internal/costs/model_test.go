package costs

import (
	"testing"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestPriceBreakdown(t *testing.T) {
	m := newModel(t)

	buy := m.Price(market.OrderSideBuy, dec("40000"), dec("1"), Taker)
	assert.Equal(t, "40000", buy.Notional.String())
	assert.Equal(t, "40", buy.Fee.String(), "0.1% taker fee")
	assert.Equal(t, "10", buy.Spread.String(), "half of a 0.05% spread")
	assert.Equal(t, "0.0625", buy.SlippagePercent.String(), "0.05% base scaled by the 10k tier")
	assert.Equal(t, "25", buy.Slippage.String())
	assert.Equal(t, "75", buy.Total.String())
	assert.Equal(t, "40035", buy.EffectivePrice.String())

	sell := m.Price(market.OrderSideSell, dec("40000"), dec("1"), Taker)
	assert.Equal(t, "75", sell.Total.String())
	assert.Equal(t, "39965", sell.EffectivePrice.String())
}

func TestPriceSmallOrder(t *testing.T) {
	b := newModel(t).Price(market.OrderSideBuy, dec("100"), dec("10"), Maker)
	assert.Equal(t, "1", b.Fee.String())
	assert.Equal(t, "0.25", b.Spread.String())
	assert.Equal(t, "0.5", b.Slippage.String())
	assert.Equal(t, "1.75", b.Total.String())
}

func TestMakerTakerFees(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MakerFeePercent = dec("0.02")
	cfg.TakerFeePercent = dec("0.05")
	m, err := New(cfg)
	require.NoError(t, err)

	maker := m.Price(market.OrderSideBuy, dec("1000"), dec("1"), Maker)
	taker := m.Price(market.OrderSideBuy, dec("1000"), dec("1"), Taker)
	assert.Equal(t, "0.2", maker.Fee.String())
	assert.Equal(t, "0.5", taker.Fee.String())
}

func TestCostScaling(t *testing.T) {
	m := newModel(t)
	price := dec("100")

	small := m.Price(market.OrderSideBuy, price, dec("10"), Taker)
	large := m.Price(market.OrderSideBuy, price, dec("1000"), Taker)
	assert.True(t, large.Total.GreaterThanOrEqual(small.Total))

	notionals := []string{"1000", "10000", "50000", "100000", "500000"}
	var previous decimal.Decimal
	for i, n := range notionals {
		pct := m.SlippagePercent(dec(n))
		if i > 0 {
			assert.True(t, pct.GreaterThan(previous), "slippage %% should rise at %s", n)
		}
		previous = pct

		b := m.Price(market.OrderSideBuy, dec("1"), dec(n), Taker)
		assert.True(t, b.Slippage.Equal(dec(n).Mul(pct).Div(dec("100"))),
			"slippage amount is the scaled percentage of notional")
	}
	assert.Equal(t, "0.15", m.SlippagePercent(dec("1000000")).String())
}

func TestTiersAreSorted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlippageTiers = []SlippageTier{
		{Threshold: dec("100000"), Multiplier: dec("2")},
		{Threshold: dec("10000"), Multiplier: dec("1.25")},
	}
	m, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.1", m.SlippagePercent(dec("200000")).String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative maker fee", func(c *Config) { c.MakerFeePercent = dec("-0.1") }},
		{"taker fee above 100", func(c *Config) { c.TakerFeePercent = dec("100.5") }},
		{"negative spread", func(c *Config) { c.SpreadPercent = dec("-1") }},
		{"slippage above 100", func(c *Config) { c.BaseSlippagePercent = dec("101") }},
		{"zero tier multiplier", func(c *Config) { c.SlippageTiers[0].Multiplier = decimal.Zero }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, simerrors.ErrConfiguration)
		})
	}

	_, err := New(Config{})
	assert.NoError(t, err, "a zero-cost configuration is valid")
}

func TestMaxVolume(t *testing.T) {
	m := newModel(t)
	budget := dec("1000")
	price := dec("100")

	volume := m.MaxVolume(budget, price, Taker)
	require.True(t, volume.IsPositive())

	b := m.Price(market.OrderSideBuy, price, volume, Taker)
	spent := b.Notional.Add(b.Total)
	assert.True(t, spent.LessThanOrEqual(budget), "spent %s exceeds budget", spent)
	assert.True(t, spent.GreaterThan(dec("999.99")), "spent %s leaves too much unused", spent)
	assert.LessOrEqual(t, volume.Exponent(), int32(0))
	assert.GreaterOrEqual(t, volume.Exponent(), int32(-8))

	assert.True(t, m.MaxVolume(decimal.Zero, price, Taker).IsZero())
	assert.True(t, m.MaxVolume(budget, decimal.Zero, Taker).IsZero())
}

func TestMaxVolumeZeroCost(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "2.5", m.MaxVolume(dec("100"), dec("40"), Taker).String())
}
