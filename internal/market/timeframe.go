package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the bucket width of a bar.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

var timeframeAliases = map[string]Timeframe{
	"1min":  Timeframe1m,
	"5min":  Timeframe5m,
	"15min": Timeframe15m,
	"60m":   Timeframe1h,
	"1hour": Timeframe1h,
	"4hour": Timeframe4h,
	"1day":  Timeframe1d,
	"24h":   Timeframe1d,
}

const year = 365 * 24 * time.Hour

// ParseTimeframe accepts canonical names and the long aliases used by data vendors.
func ParseTimeframe(s string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if tf, ok := timeframeAliases[key]; ok {
		return tf, nil
	}
	tf := Timeframe(key)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Valid reports whether t is a supported timeframe.
func (t Timeframe) Valid() bool {
	_, ok := timeframeDurations[t]
	return ok
}

// Duration returns the bucket width, zero for unknown timeframes.
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

// PeriodsPerYear is the number of bars in a year of continuous (24/7) trading.
func (t Timeframe) PeriodsPerYear() float64 {
	d := t.Duration()
	if d == 0 {
		return 0
	}
	return float64(year) / float64(d)
}
