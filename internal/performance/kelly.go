package performance

import (
	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// MinKellyTrades is the history needed before actual trades replace estimates.
const MinKellyTrades = 10

// KellySource records where the Kelly inputs came from.
type KellySource string

const (
	KellyFromTrades    KellySource = "trades"
	KellyFromEstimates KellySource = "estimates"
	KellyUnavailable   KellySource = "none"
)

// KellyEstimate is the strategy-configured fallback: win rate in percent and
// average win over average loss.
type KellyEstimate struct {
	WinRatePercent decimal.Decimal
	PayoffRatio    decimal.Decimal
}

// Kelly is the sizing suggestion of a run.
type Kelly struct {
	Source               KellySource     `json:"source"`
	WinRate              decimal.Decimal `json:"win_rate"`
	PayoffRatio          decimal.Decimal `json:"payoff_ratio"`
	Fraction             decimal.Decimal `json:"fraction"`
	SuggestedSizePercent decimal.Decimal `json:"suggested_size_percent"`
}

// KellyFraction returns W - (1-W)/R. A zero payoff with W = 1 means no loss
// was ever observed, which is the fraction 1.
func KellyFraction(winRate, payoff decimal.Decimal) decimal.Decimal {
	if !payoff.IsPositive() {
		if winRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	lose := utils.Sub(decimal.NewFromInt(1), winRate)
	return utils.Sub(winRate, utils.SafeDiv(lose, payoff))
}

// KellyFor sizes from actual trade P&L when there are at least MinKellyTrades,
// otherwise from the estimates. The suggested size is fraction x multiplier in
// percent, clamped to [0, 100].
func KellyFor(pnls []decimal.Decimal, estimates *KellyEstimate, multiplier decimal.Decimal) Kelly {
	k := Kelly{
		Source:               KellyUnavailable,
		WinRate:              decimal.Zero,
		PayoffRatio:          decimal.Zero,
		Fraction:             decimal.Zero,
		SuggestedSizePercent: decimal.Zero,
	}

	switch {
	case len(pnls) >= MinKellyTrades:
		stats := tradeStats(pnls)
		k.Source = KellyFromTrades
		k.WinRate = utils.SafeDiv(decimal.NewFromInt(int64(stats.WinningTrades)), decimal.NewFromInt(int64(stats.TotalTrades)))
		k.PayoffRatio = utils.SafeDiv(stats.AverageWin, stats.AverageLoss)
	case estimates != nil && estimates.WinRatePercent.IsPositive() && estimates.PayoffRatio.IsPositive():
		k.Source = KellyFromEstimates
		k.WinRate = utils.SafeDiv(estimates.WinRatePercent, hundred)
		k.PayoffRatio = estimates.PayoffRatio
	default:
		return k
	}

	k.Fraction = KellyFraction(k.WinRate, k.PayoffRatio)
	k.SuggestedSizePercent = utils.ClampDecimal(utils.Mul(utils.Mul(k.Fraction, multiplier), hundred), decimal.Zero, hundred)
	return k
}
