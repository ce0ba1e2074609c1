// Package market defines historical bar data and validates it before a run.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Bar represents one OHLCV candle for an instrument, timeframe and time bucket.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Tier      DataTier        `json:"tier"`
	SourceID  string          `json:"sourceId"`
}

// String identifies the bar in logs and error messages.
func (b Bar) String() string {
	return fmt.Sprintf("%s %s@%s", b.Symbol, b.Timeframe, b.Timestamp.UTC().Format(time.RFC3339))
}

// QuarterOf labels t as "YYYY-Qn".
func QuarterOf(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
}
