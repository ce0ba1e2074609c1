// Package testutils holds bar fixtures shared by package tests.
package testutils

import (
	"context"
	"time"

	"github.com/guyghost/cryptosim/internal/market"
	"github.com/shopspring/decimal"
)

// BaseTime is a fixed start so fixtures are deterministic.
var BaseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// CreateTestContext creates a context for testing with timeout
func CreateTestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// NewBar builds a standard-tier hourly bar from string prices.
func NewBar(symbol string, ts time.Time, open, high, low, close, volume string) market.Bar {
	return market.Bar{
		Symbol:    symbol,
		Timeframe: market.Timeframe1h,
		Timestamp: ts,
		Open:      decimal.RequireFromString(open),
		High:      decimal.RequireFromString(high),
		Low:       decimal.RequireFromString(low),
		Close:     decimal.RequireFromString(close),
		Volume:    decimal.RequireFromString(volume),
		Tier:      market.TierStandard,
		SourceID:  "fixture",
	}
}

// BarsFromCloses builds an hourly series where each bar opens at the previous close
// and the range extends 0.1% beyond open and close.
func BarsFromCloses(symbol string, closes ...float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	wick := decimal.NewFromFloat(0.001)
	one := decimal.NewFromInt(1)

	for i, c := range closes {
		closePrice := decimal.NewFromFloat(c)
		openPrice := closePrice
		if i > 0 {
			openPrice = bars[i-1].Close
		}
		high := decimal.Max(openPrice, closePrice)
		low := decimal.Min(openPrice, closePrice)

		bars[i] = market.Bar{
			Symbol:    symbol,
			Timeframe: market.Timeframe1h,
			Timestamp: BaseTime.Add(time.Duration(i) * time.Hour),
			Open:      openPrice,
			High:      high.Mul(one.Add(wick)).RoundBank(8),
			Low:       low.Mul(one.Sub(wick)).RoundBank(8),
			Close:     closePrice,
			Volume:    decimal.NewFromInt(100 + int64(i)),
			Tier:      market.TierStandard,
			SourceID:  "fixture",
		}
	}
	return bars
}

// SampleBars returns 100 hourly BTC-USD bars trending up with a pullback every tenth bar.
func SampleBars() []market.Bar {
	closes := make([]float64, 100)
	for i := range closes {
		price := 50000 + float64(i)*100
		if i%10 >= 7 {
			price -= 600
		}
		closes[i] = price
	}
	return BarsFromCloses("BTC-USD", closes...)
}

// WithTier returns a copy of bars retagged with tier.
func WithTier(bars []market.Bar, tier market.DataTier) []market.Bar {
	out := make([]market.Bar, len(bars))
	copy(out, bars)
	for i := range out {
		out[i].Tier = tier
	}
	return out
}
