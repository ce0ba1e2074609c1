package performance

import (
	"math"
	"testing"

	"github.com/guyghost/cryptosim/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decs(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func requireDec(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestTradeStatistics(t *testing.T) {
	s := Summarize(Input{
		StartingBalance: decimal.NewFromInt(1000),
		Equity:          decs("1000", "1100", "1050", "1090"),
		TradePnLs:       decs("100", "-50", "-20", "60"),
		Timeframe:       market.Timeframe1h,
	})

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades)
	requireDec(t, "50", s.WinRate)
	requireDec(t, "160", s.GrossProfit)
	requireDec(t, "70", s.GrossLoss)
	requireDec(t, "2.28571429", s.ProfitFactor)
	requireDec(t, "80", s.AverageWin)
	requireDec(t, "35", s.AverageLoss)
	requireDec(t, "100", s.LargestWin)
	requireDec(t, "50", s.LargestLoss)
	assert.Equal(t, 2, s.MaxConsecutiveLosses)
	requireDec(t, "90", s.TotalReturn)
	requireDec(t, "9", s.TotalReturnPercent)
}

func TestZeroTradesIsNeutral(t *testing.T) {
	s := Summarize(Input{
		StartingBalance: decimal.NewFromInt(1000),
		Timeframe:       market.Timeframe1d,
	})

	assert.Zero(t, s.TotalTrades)
	assert.True(t, s.WinRate.IsZero())
	assert.True(t, s.ProfitFactor.IsZero())
	assert.True(t, s.TotalReturn.IsZero())
	assert.True(t, s.SharpeRatio.IsZero())
	assert.True(t, s.MaxDrawdownPercent.IsZero())
	assert.Equal(t, KellyUnavailable, s.Kelly.Source)
}

func TestAllWinsHasFiniteProfitFactor(t *testing.T) {
	s := Summarize(Input{
		StartingBalance: decimal.NewFromInt(1000),
		TradePnLs:       decs("10", "20", "30"),
		Timeframe:       market.Timeframe1h,
	})

	requireDec(t, "100", s.WinRate)
	requireDec(t, "999.99", s.ProfitFactor)
}

func TestProfitFactor(t *testing.T) {
	tests := []struct {
		name   string
		profit string
		loss   string
		want   string
	}{
		{"nothing", "0", "0", "0"},
		{"only losses", "0", "50", "0"},
		{"only wins", "50", "0", "999.99"},
		{"ratio", "150", "50", "3"},
		{"capped ratio", "1000000", "1", "999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProfitFactor(decimal.RequireFromString(tt.profit), decimal.RequireFromString(tt.loss))
			requireDec(t, tt.want, got)
		})
	}
}

func TestMaxDrawdownIsPercentOfPeak(t *testing.T) {
	amount, pct := MaxDrawdown(decimal.NewFromInt(100), decs("120", "90", "130", "117"))
	requireDec(t, "30", amount)
	requireDec(t, "25", pct)

	// Same shape at a thousand times the size gives the same percentage.
	_, scaled := MaxDrawdown(decimal.NewFromInt(100000), decs("120000", "90000", "130000", "117000"))
	requireDec(t, "25", scaled)
}

func TestMaxDrawdownBounds(t *testing.T) {
	curves := [][]decimal.Decimal{
		decs("100", "0"),
		decs("100", "-50"),
		decs("0.0001", "0.00005"),
		decs("1000000000", "1"),
		decs("50", "60", "70"),
	}
	for _, curve := range curves {
		_, pct := MaxDrawdown(decimal.NewFromInt(100), curve)
		assert.True(t, pct.GreaterThanOrEqual(decimal.Zero), "%v", curve)
		assert.True(t, pct.LessThanOrEqual(decimal.NewFromInt(100)), "%v", curve)
	}

	_, pct := MaxDrawdown(decimal.NewFromInt(100), decs("100", "-50"))
	requireDec(t, "100", pct)
}

func TestReturnsAreMeasuredPerBar(t *testing.T) {
	returns := Returns(decimal.NewFromInt(100), decs("110", "99", "99"))
	require.Len(t, returns, 3)
	assert.InDelta(t, 0.1, returns[0], 1e-9)
	assert.InDelta(t, -0.1, returns[1], 1e-9)
	assert.InDelta(t, 0, returns[2], 1e-9)

	assert.Equal(t, []float64{0}, Returns(decimal.Zero, decs("10")))
}

func TestSharpeUsesTimeframeAnnualisation(t *testing.T) {
	returns := []float64{0.01, -0.005, 0.02, 0.0, 0.015}

	daily := Sharpe(returns, market.Timeframe1d.PeriodsPerYear(), 0)
	hourly := Sharpe(returns, market.Timeframe1h.PeriodsPerYear(), 0)

	mean := 0.008
	std := sampleStd(returns)
	assert.InDelta(t, mean/std*math.Sqrt(365), daily, 1e-9)
	assert.InDelta(t, daily*math.Sqrt(24), hourly, 1e-9)
}

func TestSharpeDegenerateInputs(t *testing.T) {
	assert.Zero(t, Sharpe(nil, 365, 0))
	assert.Zero(t, Sharpe([]float64{0.01}, 365, 0))
	assert.Zero(t, Sharpe([]float64{0.01, 0.01, 0.01}, 365, 0), "flat returns have no dispersion")
	assert.Zero(t, Sharpe([]float64{0.01, 0.02}, 0, 0))
}

func TestSharpeRiskFreeRate(t *testing.T) {
	returns := []float64{0.01, -0.005, 0.02, 0.0, 0.015}
	assert.Less(t, Sharpe(returns, 365, 0.05), Sharpe(returns, 365, 0))
}

func TestSortinoIgnoresUpside(t *testing.T) {
	assert.Zero(t, Sortino([]float64{0.01, 0.02, 0.03}, 365, 0))
	assert.Greater(t, Sortino([]float64{0.02, -0.01, 0.03}, 365, 0), 0.0)
}

func TestHistoricalVaR(t *testing.T) {
	returns := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		returns = append(returns, float64(i-2)/100)
	}
	// Sorted: -0.02, -0.01, 0, ... ; 5% of 20 is index 1.
	v, cvar := HistoricalVaR(returns, 0.95)
	assert.InDelta(t, 0.01, v, 1e-12)
	assert.InDelta(t, 0.015, cvar, 1e-12)

	v, cvar = HistoricalVaR([]float64{0.01, 0.02}, 0.95)
	assert.Zero(t, v)
	assert.Zero(t, cvar)

	v, _ = HistoricalVaR(nil, 0.95)
	assert.Zero(t, v)
}

func TestSummarizeNeverPanicsOnNonFiniteInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		Summarize(Input{
			StartingBalance: decimal.Zero,
			Equity:          decs("0", "0", "10"),
			Timeframe:       market.Timeframe("bogus"),
		})
	})
}
