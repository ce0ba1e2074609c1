package performance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestKellyFraction(t *testing.T) {
	tests := []struct {
		name    string
		winRate string
		payoff  string
		want    string
	}{
		{"coin flip even odds", "0.5", "1", "0"},
		{"edge", "0.6", "2", "0.4"},
		{"negative edge", "0.3", "1", "-0.4"},
		{"never lost", "1", "0", "1"},
		{"never won", "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KellyFraction(decimal.RequireFromString(tt.winRate), decimal.RequireFromString(tt.payoff))
			requireDec(t, tt.want, got)
		})
	}
}

func TestKellyPrefersActualTrades(t *testing.T) {
	// 6 wins of 20, 4 losses of 10: W=0.6, R=2, f=0.4.
	pnls := decs("20", "20", "20", "20", "20", "20", "-10", "-10", "-10", "-10")
	estimates := &KellyEstimate{WinRatePercent: decimal.NewFromInt(90), PayoffRatio: decimal.NewFromInt(5)}

	k := KellyFor(pnls, estimates, decimal.RequireFromString("0.5"))
	assert.Equal(t, KellyFromTrades, k.Source)
	requireDec(t, "0.6", k.WinRate)
	requireDec(t, "2", k.PayoffRatio)
	requireDec(t, "0.4", k.Fraction)
	requireDec(t, "20", k.SuggestedSizePercent)
}

func TestKellyFallsBackToEstimates(t *testing.T) {
	estimates := &KellyEstimate{WinRatePercent: decimal.NewFromInt(60), PayoffRatio: decimal.NewFromInt(2)}

	k := KellyFor(decs("5", "-5"), estimates, decimal.RequireFromString("0.25"))
	assert.Equal(t, KellyFromEstimates, k.Source)
	requireDec(t, "0.4", k.Fraction)
	requireDec(t, "10", k.SuggestedSizePercent)

	k = KellyFor(nil, nil, decimal.NewFromInt(1))
	assert.Equal(t, KellyUnavailable, k.Source)
	assert.True(t, k.SuggestedSizePercent.IsZero())
}

func TestKellySuggestionIsClamped(t *testing.T) {
	losing := decs("1", "-10", "-10", "-10", "-10", "-10", "-10", "-10", "-10", "-10")
	k := KellyFor(losing, nil, decimal.NewFromInt(1))
	assert.True(t, k.Fraction.IsNegative())
	assert.True(t, k.SuggestedSizePercent.IsZero())

	winning := decs("1", "1", "1", "1", "1", "1", "1", "1", "1", "1")
	k = KellyFor(winning, nil, decimal.NewFromInt(1))
	requireDec(t, "1", k.Fraction)
	requireDec(t, "100", k.SuggestedSizePercent)
}
