package performance

import (
	"math"
	"sort"
)

// Sharpe annualises the mean excess per-bar return over its sample standard
// deviation. periodsPerYear comes from the bar timeframe. It is zero with fewer
// than two returns or no dispersion.
func Sharpe(returns []float64, periodsPerYear, riskFreeRate float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	rf := riskFreeRate / periodsPerYear
	mean := meanOf(returns) - rf
	std := sampleStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// Sortino is Sharpe with downside deviation in the denominator.
func Sortino(returns []float64, periodsPerYear, riskFreeRate float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	rf := riskFreeRate / periodsPerYear
	var sq float64
	for _, r := range returns {
		if d := r - rf; d < 0 {
			sq += d * d
		}
	}
	downside := math.Sqrt(sq / float64(len(returns)))
	if downside == 0 {
		return 0
	}
	return (meanOf(returns) - rf) / downside * math.Sqrt(periodsPerYear)
}

// AnnualizedVolatility scales the per-bar sample deviation to a year.
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	return sampleStd(returns) * math.Sqrt(periodsPerYear)
}

// HistoricalVaR returns value-at-risk and expected shortfall at confidence as
// positive loss fractions. A distribution without losses in its tail yields zero.
func HistoricalVaR(returns []float64, confidence float64) (float64, float64) {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0, 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	valueAtRisk := math.Max(0, -sorted[idx])
	expectedShortfall := math.Max(0, -meanOf(sorted[:idx+1]))
	return valueAtRisk, expectedShortfall
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := meanOf(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}
