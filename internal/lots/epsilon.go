package lots

import (
	"strings"

	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "BTC"}

// EpsilonTable maps instruments to their minimum tradable unit. A lot whose
// remaining volume falls below that unit is treated as closed.
type EpsilonTable struct {
	units    map[string]decimal.Decimal
	fallback decimal.Decimal
}

// DefaultEpsilons covers the majors; anything else uses one canonical unit.
func DefaultEpsilons() EpsilonTable {
	return NewEpsilonTable(map[string]decimal.Decimal{
		"BTC":  decimal.New(1, -5),
		"ETH":  decimal.New(1, -4),
		"SOL":  decimal.New(1, -3),
		"XRP":  decimal.New(1, -1),
		"DOGE": decimal.NewFromInt(1),
		"ADA":  decimal.New(1, -1),
	}, utils.DefaultTolerance)
}

// NewEpsilonTable builds a table keyed by instrument ("BTC-USD") or base asset ("BTC").
// A non-positive fallback becomes one canonical unit.
func NewEpsilonTable(units map[string]decimal.Decimal, fallback decimal.Decimal) EpsilonTable {
	t := EpsilonTable{units: make(map[string]decimal.Decimal, len(units)), fallback: fallback}
	for k, v := range units {
		if v.IsPositive() {
			t.units[strings.ToUpper(k)] = v
		}
	}
	if !t.fallback.IsPositive() {
		t.fallback = utils.DefaultTolerance
	}
	return t
}

// With returns a copy of the table with symbol's unit overridden.
func (t EpsilonTable) With(symbol string, unit decimal.Decimal) EpsilonTable {
	units := make(map[string]decimal.Decimal, len(t.units)+1)
	for k, v := range t.units {
		units[k] = v
	}
	units[strings.ToUpper(symbol)] = unit
	return NewEpsilonTable(units, t.fallback)
}

// For returns the minimum tradable unit of symbol.
func (t EpsilonTable) For(symbol string) decimal.Decimal {
	key := strings.ToUpper(symbol)
	if unit, ok := t.units[key]; ok {
		return unit
	}
	if unit, ok := t.units[BaseAsset(key)]; ok {
		return unit
	}
	if t.fallback.IsPositive() {
		return t.fallback
	}
	return utils.DefaultTolerance
}

// BaseAsset extracts the traded asset from "BTC-USD", "ETH/USDT" or "SOLUSDC".
func BaseAsset(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "-/_:"); i > 0 {
		return s[:i]
	}
	for _, quote := range quoteSuffixes {
		if base, ok := strings.CutSuffix(s, quote); ok && base != "" {
			return base
		}
	}
	return s
}
