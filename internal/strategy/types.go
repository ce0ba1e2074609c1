package strategy

import (
	"fmt"
	"strings"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/shopspring/decimal"
)

// RiskTier scales position-size suggestions.
type RiskTier string

const (
	RiskConservative RiskTier = "conservative"
	RiskModerate     RiskTier = "moderate"
	RiskAggressive   RiskTier = "aggressive"
)

// KellyMultiplier is the fraction of full Kelly the tier is willing to bet.
func (t RiskTier) KellyMultiplier() decimal.Decimal {
	switch t {
	case RiskConservative:
		return decimal.NewFromFloat(0.25)
	case RiskAggressive:
		return decimal.NewFromInt(1)
	default:
		return decimal.NewFromFloat(0.5)
	}
}

// Policy combines the signals of several conditions.
type Policy string

const (
	PolicyAny Policy = "any"
	PolicyAll Policy = "all"
)

// Strategy is the declarative description of what to trade and when.
// It is never mutated by a run.
type Strategy struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Instruments         []string        `json:"instruments"`
	EntryConditions     []string        `json:"entryConditions"`
	ExitConditions      []string        `json:"exitConditions"`
	EntryPolicy         Policy          `json:"entryPolicy"`
	ExitPolicy          Policy          `json:"exitPolicy"`
	PositionSizePercent decimal.Decimal `json:"positionSizePercent"`
	StopLossPercent     decimal.Decimal `json:"stopLossPercent"`
	TakeProfitPercent   decimal.Decimal `json:"takeProfitPercent"`
	RiskTier            RiskTier        `json:"riskTier"`
	// MaxEntries caps how many lots one position may accumulate.
	MaxEntries int `json:"maxEntries"`
	// Fallbacks for Kelly sizing until the strategy has its own trade history.
	EstimatedWinRate     decimal.Decimal `json:"estimatedWinRate"`
	EstimatedPayoffRatio decimal.Decimal `json:"estimatedPayoffRatio"`
}

// WithDefaults fills unset policy, risk tier and entry limit.
func (s Strategy) WithDefaults() Strategy {
	if s.EntryPolicy == "" {
		s.EntryPolicy = PolicyAny
	}
	if s.ExitPolicy == "" {
		s.ExitPolicy = PolicyAny
	}
	if s.RiskTier == "" {
		s.RiskTier = RiskModerate
	}
	if s.MaxEntries <= 0 {
		s.MaxEntries = 1
	}
	return s
}

// Trades reports whether symbol is one of the strategy's instruments.
func (s Strategy) Trades(symbol string) bool {
	for _, instrument := range s.Instruments {
		if strings.EqualFold(instrument, symbol) {
			return true
		}
	}
	return false
}

// Validate rejects descriptors that signal a caller defect.
func (s Strategy) Validate() error {
	fail := func(format string, args ...any) error {
		return simerrors.Newf(simerrors.KindConfiguration, "validate_strategy", s.ID, format, args...)
	}

	hundred := decimal.NewFromInt(100)

	if len(s.Instruments) == 0 {
		return fail("at least one instrument is required")
	}
	for _, instrument := range s.Instruments {
		if strings.TrimSpace(instrument) == "" {
			return fail("instrument names must not be empty")
		}
	}
	if len(s.EntryConditions) == 0 {
		return fail("at least one entry condition is required")
	}
	if !s.PositionSizePercent.IsPositive() || s.PositionSizePercent.GreaterThan(hundred) {
		return fail("position size %s%% must be in (0, 100]", s.PositionSizePercent)
	}
	bounded := []struct {
		name string
		pct  decimal.Decimal
	}{
		{"stop loss", s.StopLossPercent},
		{"take profit", s.TakeProfitPercent},
		{"estimated win rate", s.EstimatedWinRate},
	}
	for _, b := range bounded {
		if b.pct.IsNegative() || b.pct.GreaterThan(hundred) {
			return fail("%s %s%% must be in [0, 100]", b.name, b.pct)
		}
	}
	if s.EstimatedPayoffRatio.IsNegative() {
		return fail("estimated payoff ratio %s must not be negative", s.EstimatedPayoffRatio)
	}
	switch s.EntryPolicy {
	case "", PolicyAny, PolicyAll:
	default:
		return fail("unknown entry policy %q", s.EntryPolicy)
	}
	switch s.ExitPolicy {
	case "", PolicyAny, PolicyAll:
	default:
		return fail("unknown exit policy %q", s.ExitPolicy)
	}
	switch s.RiskTier {
	case "", RiskConservative, RiskModerate, RiskAggressive:
	default:
		return fail("unknown risk tier %q", s.RiskTier)
	}
	if s.MaxEntries < 0 {
		return fail("max entries %d must not be negative", s.MaxEntries)
	}
	return nil
}

// String identifies the strategy in logs.
func (s Strategy) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.ID)
	}
	return s.ID
}
