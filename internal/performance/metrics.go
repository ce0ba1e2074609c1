// Package performance turns an equity curve and a list of closed trades into
// the summary statistics of a run.
package performance

import (
	"math"

	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// ProfitFactorCap replaces an infinite profit factor when no trade lost money.
var ProfitFactorCap = decimal.RequireFromString("999.99")

var hundred = decimal.NewFromInt(100)

// Input is everything Summarize needs. Equity holds one point per bar, in order.
type Input struct {
	StartingBalance decimal.Decimal
	Equity          []decimal.Decimal
	TradePnLs       []decimal.Decimal
	Timeframe       market.Timeframe
	RiskFreeRate    float64 // annual, as a fraction
	KellyMultiplier decimal.Decimal
	Estimates       *KellyEstimate
}

// Summary is the statistical digest of one run. Percentages are 0-100.
type Summary struct {
	TotalReturn          decimal.Decimal `json:"total_return"`
	TotalReturnPercent   decimal.Decimal `json:"total_return_percent"`
	TotalTrades          int             `json:"total_trades"`
	WinningTrades        int             `json:"winning_trades"`
	LosingTrades         int             `json:"losing_trades"`
	WinRate              decimal.Decimal `json:"win_rate"`
	GrossProfit          decimal.Decimal `json:"gross_profit"`
	GrossLoss            decimal.Decimal `json:"gross_loss"`
	ProfitFactor         decimal.Decimal `json:"profit_factor"`
	AverageWin           decimal.Decimal `json:"average_win"`
	AverageLoss          decimal.Decimal `json:"average_loss"`
	LargestWin           decimal.Decimal `json:"largest_win"`
	LargestLoss          decimal.Decimal `json:"largest_loss"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	SharpeRatio          decimal.Decimal `json:"sharpe_ratio"`
	SortinoRatio         decimal.Decimal `json:"sortino_ratio"`
	VolatilityPercent    decimal.Decimal `json:"volatility_percent"`
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPercent   decimal.Decimal `json:"max_drawdown_percent"`
	VaR95Percent         decimal.Decimal `json:"var_95_percent"`
	CVaR95Percent        decimal.Decimal `json:"cvar_95_percent"`
	Kelly                Kelly           `json:"kelly"`
}

// Summarize computes every metric of a run.
func Summarize(in Input) Summary {
	s := tradeStats(in.TradePnLs)

	final := in.StartingBalance
	if n := len(in.Equity); n > 0 {
		final = in.Equity[n-1]
	}
	s.TotalReturn = utils.Sub(final, in.StartingBalance)
	s.TotalReturnPercent = utils.PercentChange(in.StartingBalance, final)

	s.MaxDrawdown, s.MaxDrawdownPercent = MaxDrawdown(in.StartingBalance, in.Equity)

	returns := Returns(in.StartingBalance, in.Equity)
	periods := in.Timeframe.PeriodsPerYear()
	s.SharpeRatio = toDecimal(Sharpe(returns, periods, in.RiskFreeRate))
	s.SortinoRatio = toDecimal(Sortino(returns, periods, in.RiskFreeRate))
	s.VolatilityPercent = toDecimal(AnnualizedVolatility(returns, periods) * 100)
	valueAtRisk, cvar := HistoricalVaR(returns, 0.95)
	s.VaR95Percent = toDecimal(valueAtRisk * 100)
	s.CVaR95Percent = toDecimal(cvar * 100)

	s.Kelly = KellyFor(in.TradePnLs, in.Estimates, in.KellyMultiplier)
	return s
}

func tradeStats(pnls []decimal.Decimal) Summary {
	s := Summary{
		TotalTrades:  len(pnls),
		WinRate:      decimal.Zero,
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		ProfitFactor: decimal.Zero,
		AverageWin:   decimal.Zero,
		AverageLoss:  decimal.Zero,
		LargestWin:   decimal.Zero,
		LargestLoss:  decimal.Zero,
	}
	if len(pnls) == 0 {
		return s
	}

	streak := 0
	for _, pnl := range pnls {
		if pnl.IsPositive() {
			s.WinningTrades++
			s.GrossProfit = utils.Add(s.GrossProfit, pnl)
			s.LargestWin = utils.MaxDecimal(s.LargestWin, pnl)
			streak = 0
			continue
		}
		s.LosingTrades++
		loss := pnl.Abs()
		s.GrossLoss = utils.Add(s.GrossLoss, loss)
		s.LargestLoss = utils.MaxDecimal(s.LargestLoss, loss)
		streak++
		s.MaxConsecutiveLosses = max(s.MaxConsecutiveLosses, streak)
	}

	s.WinRate = utils.Mul(utils.SafeDiv(decimal.NewFromInt(int64(s.WinningTrades)), decimal.NewFromInt(int64(s.TotalTrades))), hundred)
	if s.WinningTrades > 0 {
		s.AverageWin = utils.SafeDiv(s.GrossProfit, decimal.NewFromInt(int64(s.WinningTrades)))
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = utils.SafeDiv(s.GrossLoss, decimal.NewFromInt(int64(s.LosingTrades)))
	}
	s.ProfitFactor = ProfitFactor(s.GrossProfit, s.GrossLoss)
	return s
}

// ProfitFactor is gross profit over gross loss, capped at ProfitFactorCap.
func ProfitFactor(grossProfit, grossLoss decimal.Decimal) decimal.Decimal {
	if !grossProfit.IsPositive() {
		return decimal.Zero
	}
	if grossLoss.IsZero() {
		return ProfitFactorCap
	}
	return utils.MinDecimal(utils.SafeDiv(grossProfit, grossLoss), ProfitFactorCap)
}

// MaxDrawdown returns the largest retreat from the running peak, starting from
// the opening balance, as an amount and as a percentage of that peak. The
// percentage is always within [0, 100].
func MaxDrawdown(start decimal.Decimal, equity []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	peak := start
	worst, worstPct := decimal.Zero, decimal.Zero
	for _, e := range equity {
		if e.GreaterThan(peak) {
			peak = e
		}
		if !peak.IsPositive() {
			continue
		}
		dd := utils.Sub(peak, e)
		if dd.GreaterThan(worst) {
			worst = dd
		}
		pct := utils.ClampDecimal(utils.Mul(utils.SafeDiv(dd, peak), hundred), decimal.Zero, hundred)
		if pct.GreaterThan(worstPct) {
			worstPct = pct
		}
	}
	return worst, worstPct
}

// Returns converts an equity curve into simple per-bar returns. The first
// return is measured against the opening balance.
func Returns(start decimal.Decimal, equity []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(equity))
	prev := start
	for _, e := range equity {
		if prev.IsPositive() {
			r, _ := utils.SafeDiv(utils.Sub(e, prev), prev).Float64()
			out = append(out, r)
		} else {
			out = append(out, 0)
		}
		prev = e
	}
	return out
}

func toDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return utils.FromFloat(f)
}
