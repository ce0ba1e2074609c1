package strategy

import (
	"math"

	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// The indicator functions are pure: they read only the slice they are given
// and return an empty slice when it is too short.

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// EMA calculates the Exponential Moving Average, seeded with the SMA of the first period values.
func EMA(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(prices) < period {
		return []decimal.Decimal{}
	}

	result := make([]decimal.Decimal, len(prices))
	multiplier := utils.SafeDiv(two, decimal.NewFromInt(int64(period+1)))

	result[period-1] = utils.Mean(prices[:period])

	for i := period; i < len(prices); i++ {
		result[i] = utils.Normalize(prices[i].Sub(result[i-1]).Mul(multiplier).Add(result[i-1]))
	}

	return result[period-1:]
}

// SMA calculates the Simple Moving Average
func SMA(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(prices) < period {
		return []decimal.Decimal{}
	}

	result := make([]decimal.Decimal, len(prices)-period+1)
	for i := range result {
		result[i] = utils.Mean(prices[i : i+period])
	}

	return result
}

// RSI calculates the Relative Strength Index from EMA-smoothed gains and losses.
func RSI(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(prices) < period+1 {
		return []decimal.Decimal{}
	}

	gains := make([]decimal.Decimal, len(prices)-1)
	losses := make([]decimal.Decimal, len(prices)-1)

	for i := 1; i < len(prices); i++ {
		change := prices[i].Sub(prices[i-1])
		if change.IsPositive() {
			gains[i-1] = change
			losses[i-1] = decimal.Zero
		} else {
			gains[i-1] = decimal.Zero
			losses[i-1] = change.Abs()
		}
	}

	gainEMA := EMA(gains, period)
	lossEMA := EMA(losses, period)

	result := make([]decimal.Decimal, len(gainEMA))
	for i := range gainEMA {
		loss := lossEMA[i]
		if loss.IsZero() {
			result[i] = hundred
			continue
		}
		rs := utils.SafeDiv(gainEMA[i], loss)
		result[i] = utils.Sub(hundred, utils.SafeDiv(hundred, decimal.NewFromInt(1).Add(rs)))
	}

	return result
}

// MACD calculates the Moving Average Convergence Divergence
func MACD(prices []decimal.Decimal, fastPeriod, slowPeriod, signalPeriod int) (macd, signal, histogram []decimal.Decimal) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 || len(prices) < slowPeriod {
		return []decimal.Decimal{}, []decimal.Decimal{}, []decimal.Decimal{}
	}

	fastEMA := EMA(prices, fastPeriod)
	slowEMA := EMA(prices, slowPeriod)

	// Align the EMAs on their common tail.
	offset := len(fastEMA) - len(slowEMA)
	if offset < 0 {
		offset = 0
	}

	macdLine := make([]decimal.Decimal, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = utils.Sub(fastEMA[i+offset], slowEMA[i])
	}

	signalLine := EMA(macdLine, signalPeriod)

	hist := make([]decimal.Decimal, len(signalLine))
	offset = len(macdLine) - len(signalLine)
	for i := range signalLine {
		hist[i] = utils.Sub(macdLine[i+offset], signalLine[i])
	}

	return macdLine, signalLine, hist
}

// BollingerBands calculates Bollinger Bands with a population standard deviation.
func BollingerBands(prices []decimal.Decimal, period int, stdDev decimal.Decimal) (upper, middle, lower []decimal.Decimal) {
	if period <= 0 || len(prices) < period {
		return []decimal.Decimal{}, []decimal.Decimal{}, []decimal.Decimal{}
	}

	middle = SMA(prices, period)
	upper = make([]decimal.Decimal, len(middle))
	lower = make([]decimal.Decimal, len(middle))

	for i := range middle {
		sum := 0.0
		for j := 0; j < period; j++ {
			diff := prices[i+j].Sub(middle[i]).InexactFloat64()
			sum += diff * diff
		}
		width := utils.Mul(utils.FromFloat(math.Sqrt(sum/float64(period))), stdDev)

		upper[i] = utils.Add(middle[i], width)
		lower[i] = utils.Sub(middle[i], width)
	}

	return upper, middle, lower
}

// ATR calculates the Average True Range as the SMA of true ranges.
func ATR(high, low, close []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(high) < period+1 || len(low) != len(high) || len(close) != len(high) {
		return []decimal.Decimal{}
	}

	trueRanges := make([]decimal.Decimal, len(high)-1)

	for i := 1; i < len(high); i++ {
		tr := high[i].Sub(low[i])
		if hc := high[i].Sub(close[i-1]).Abs(); hc.GreaterThan(tr) {
			tr = hc
		}
		if lc := low[i].Sub(close[i-1]).Abs(); lc.GreaterThan(tr) {
			tr = lc
		}
		trueRanges[i-1] = tr
	}

	return SMA(trueRanges, period)
}

// VWAP calculates the Volume Weighted Average Price
func VWAP(prices, volumes []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return decimal.Zero
	}

	totalPV := decimal.Zero
	totalVolume := decimal.Zero
	for i := range prices {
		totalPV = totalPV.Add(prices[i].Mul(volumes[i]))
		totalVolume = totalVolume.Add(volumes[i])
	}

	return utils.SafeDiv(totalPV, totalVolume)
}

// Stochastic calculates the Stochastic Oscillator %K
func Stochastic(high, low, close []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 || len(close) < period || len(high) != len(close) || len(low) != len(close) {
		return []decimal.Decimal{}
	}

	result := make([]decimal.Decimal, len(close)-period+1)

	for i := range result {
		highest := high[i]
		lowest := low[i]
		for j := 1; j < period; j++ {
			highest = decimal.Max(highest, high[i+j])
			lowest = decimal.Min(lowest, low[i+j])
		}

		if highest.Equal(lowest) {
			result[i] = decimal.NewFromInt(50)
			continue
		}
		result[i] = utils.SafeDiv(close[i+period-1].Sub(lowest).Mul(hundred), highest.Sub(lowest))
	}

	return result
}
