package market_test

import (
	"errors"
	"testing"
	"time"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
}

func newValidator(opts ...market.Option) *market.Validator {
	return market.NewValidator(append([]market.Option{market.WithClock(fixedClock)}, opts...)...)
}

func failedCheck(t *testing.T, err error) market.Check {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, simerrors.ErrDataValidation)
	var barErr *market.BarError
	require.True(t, errors.As(err, &barErr), "expected BarError, got %v", err)
	return barErr.Check
}

func TestValidateBar(t *testing.T) {
	ts := testutils.BaseTime
	tests := []struct {
		name  string
		bar   market.Bar
		check market.Check
	}{
		{"zero open", testutils.NewBar("BTC-USD", ts, "0", "101", "99", "100", "1"), market.CheckPositivePrices},
		{"negative low", testutils.NewBar("BTC-USD", ts, "100", "101", "-1", "100", "1"), market.CheckPositivePrices},
		{"negative volume", testutils.NewBar("BTC-USD", ts, "100", "101", "99", "100", "-0.5"), market.CheckVolume},
		{"low above high", testutils.NewBar("BTC-USD", ts, "100", "99", "101", "100", "1"), market.CheckLowHigh},
		{"open above high", testutils.NewBar("BTC-USD", ts, "102", "101", "99", "100", "1"), market.CheckOpenInRange},
		{"close below low", testutils.NewBar("BTC-USD", ts, "100", "101", "99", "98", "1"), market.CheckCloseInRange},
		{"future", testutils.NewBar("BTC-USD", fixedClock().Add(time.Hour), "100", "101", "99", "100", "1"), market.CheckNotInFuture},
		{"before floor", testutils.NewBar("BTC-USD", time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC), "100", "101", "99", "100", "1"), market.CheckNotBeforeFloor},
		{"spike", testutils.NewBar("BTC-USD", ts, "100", "151", "100", "120", "1"), market.CheckSpike},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.check, failedCheck(t, v.ValidateBar(tt.bar)))
		})
	}
}

func TestValidateBarAccepts(t *testing.T) {
	v := newValidator()

	ok := testutils.NewBar("BTC-USD", testutils.BaseTime, "100", "150", "100", "120", "0")
	assert.NoError(t, v.ValidateBar(ok), "a 50 percent range sits on the boundary and is accepted")

	flat := testutils.NewBar("BTC-USD", testutils.BaseTime, "100", "100", "100", "100", "5")
	assert.NoError(t, v.ValidateBar(flat))
}

func TestValidateBarCustomSpikeRatio(t *testing.T) {
	v := newValidator(market.WithSpikeRatio(decimal.NewFromFloat(0.1)))
	bar := testutils.NewBar("BTC-USD", testutils.BaseTime, "100", "115", "100", "110", "1")
	assert.Equal(t, market.CheckSpike, failedCheck(t, v.ValidateBar(bar)))
}

func TestValidateSeries(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 100, 101, 102, 103)
	report, err := newValidator().ValidateSeries(bars)
	require.NoError(t, err)

	assert.Equal(t, market.TierStandard, report.Tier)
	assert.Equal(t, market.Timeframe1h, report.Timeframe)
	assert.Equal(t, []string{"BTC-USD"}, report.Instruments)
	assert.Equal(t, 4, report.Bars)
	assert.Equal(t, bars[0].Timestamp, report.From)
	assert.Equal(t, bars[3].Timestamp, report.To)
	assert.Empty(t, report.Warnings)
}

func TestValidateSeriesEmpty(t *testing.T) {
	report, err := newValidator().ValidateSeries(nil)
	require.NoError(t, err)
	assert.Zero(t, report.Bars)
}

func TestValidateSeriesRejectsTierMix(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 100, 101, 102, 103)
	bars[2].Tier = market.TierPremium

	_, err := newValidator().ValidateSeries(bars)
	assert.Equal(t, market.CheckTierMix, failedCheck(t, err))
	assert.Contains(t, err.Error(), "exactly one data tier")
}

func TestValidateSeriesRejectsTimeframeMix(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 100, 101)
	bars[1].Timeframe = market.Timeframe4h
	_, err := newValidator().ValidateSeries(bars)
	assert.Equal(t, market.CheckTimeframeMix, failedCheck(t, err))
}

func TestValidateSeriesRejectsOutOfOrder(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 100, 101, 102)
	bars[1], bars[2] = bars[2], bars[1]
	_, err := newValidator().ValidateSeries(bars)
	assert.Equal(t, market.CheckOrdering, failedCheck(t, err))
}

func TestValidateSeriesReportsCorruptBarIndex(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 100, 101, 102)
	bars[2].Low = bars[2].High.Add(decimal.NewFromInt(1))

	_, err := newValidator().ValidateSeries(bars)
	var barErr *market.BarError
	require.ErrorAs(t, err, &barErr)
	assert.Equal(t, 2, barErr.Index)
}

func TestValidateSeriesGaps(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 100, 101, 102)
	bars[2].Timestamp = bars[1].Timestamp.Add(3 * time.Hour)
	bars[1].Volume = decimal.Zero

	report, err := newValidator().ValidateSeries(bars)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 2)
	assert.Contains(t, report.Warnings[0], "zero volume")
	assert.Contains(t, report.Warnings[1], "gap of 3h0m0s")

	_, err = newValidator(market.WithStrictGaps(true)).ValidateSeries(bars)
	assert.Equal(t, market.CheckGap, failedCheck(t, err))
}

func TestParseTimeframe(t *testing.T) {
	tests := map[string]market.Timeframe{
		"1min":  market.Timeframe1m,
		"5MIN":  market.Timeframe5m,
		"15min": market.Timeframe15m,
		"1hour": market.Timeframe1h,
		"4hour": market.Timeframe4h,
		"1day":  market.Timeframe1d,
		"4h":    market.Timeframe4h,
	}
	for input, want := range tests {
		got, err := market.ParseTimeframe(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := market.ParseTimeframe("3w")
	assert.Error(t, err)
}

func TestPeriodsPerYear(t *testing.T) {
	assert.InDelta(t, 365.0, market.Timeframe1d.PeriodsPerYear(), 1e-9)
	assert.InDelta(t, 8760.0, market.Timeframe1h.PeriodsPerYear(), 1e-9)
	assert.InDelta(t, 525600.0, market.Timeframe1m.PeriodsPerYear(), 1e-9)
	assert.Zero(t, market.Timeframe("bogus").PeriodsPerYear())
}

func TestDataTier(t *testing.T) {
	tier, err := market.ParseDataTier("premium")
	require.NoError(t, err)
	assert.Equal(t, market.TierPremium, tier)

	tier, err = market.ParseDataTier("tier_4")
	require.NoError(t, err)
	assert.Equal(t, market.TierBasic, tier)

	tier, err = market.ParseDataTier("TIER_2_PROFESSIONAL")
	require.NoError(t, err)
	assert.Equal(t, market.TierProfessional, tier)

	_, err = market.ParseDataTier("gold")
	assert.Error(t, err)

	assert.Greater(t, market.TierPremium.QualityScore(), market.TierProfessional.QualityScore())
	assert.Greater(t, market.TierStandard.QualityScore(), market.TierBasic.QualityScore())
}

func TestQuarterOf(t *testing.T) {
	assert.Equal(t, "2024-Q1", market.QuarterOf(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-Q4", market.QuarterOf(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))
}
