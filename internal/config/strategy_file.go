package config

import (
	"fmt"
	"os"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/strategy"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StrategyFile is the on-disk shape of a strategy descriptor.
type StrategyFile struct {
	ID                  string         `yaml:"id"`
	Name                string         `yaml:"name"`
	Instruments         []string       `yaml:"instruments"`
	Entry               ConditionBlock `yaml:"entry"`
	Exit                ConditionBlock `yaml:"exit"`
	PositionSizePercent Decimal        `yaml:"position_size_percent"`
	StopLossPercent     Decimal        `yaml:"stop_loss_percent"`
	TakeProfitPercent   Decimal        `yaml:"take_profit_percent"`
	RiskTier            string         `yaml:"risk_tier"`
	MaxEntries          int            `yaml:"max_entries"`
	Kelly               KellyBlock     `yaml:"kelly"`
}

// ConditionBlock groups conditions with the policy that combines them.
type ConditionBlock struct {
	Policy     string   `yaml:"policy"`
	Conditions []string `yaml:"conditions"`
}

// KellyBlock carries sizing estimates used until a strategy has trade history.
type KellyBlock struct {
	WinRatePercent Decimal `yaml:"win_rate_percent"`
	PayoffRatio    Decimal `yaml:"payoff_ratio"`
}

// Decimal decodes a YAML scalar such as 10, 0.25 or "0.1" exactly, without a
// float64 round trip.
type Decimal struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	if node.Tag == "!!null" || node.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number", node.Line, node.Value)
	}
	d.Decimal = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Decimal) MarshalYAML() (any, error) {
	return d.Decimal.String(), nil
}

// Strategy converts the file into a descriptor.
func (f StrategyFile) Strategy() strategy.Strategy {
	return strategy.Strategy{
		ID:                   f.ID,
		Name:                 f.Name,
		Instruments:          f.Instruments,
		EntryConditions:      f.Entry.Conditions,
		ExitConditions:       f.Exit.Conditions,
		EntryPolicy:          strategy.Policy(f.Entry.Policy),
		ExitPolicy:           strategy.Policy(f.Exit.Policy),
		PositionSizePercent:  f.PositionSizePercent.Decimal,
		StopLossPercent:      f.StopLossPercent.Decimal,
		TakeProfitPercent:    f.TakeProfitPercent.Decimal,
		RiskTier:             strategy.RiskTier(f.RiskTier),
		MaxEntries:           f.MaxEntries,
		EstimatedWinRate:     f.Kelly.WinRatePercent.Decimal,
		EstimatedPayoffRatio: f.Kelly.PayoffRatio.Decimal,
	}
}

// ParseStrategy decodes and validates a YAML descriptor.
func ParseStrategy(raw []byte) (strategy.Strategy, error) {
	var f StrategyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return strategy.Strategy{}, simerrors.New(simerrors.KindConfiguration, "parse_strategy", "", err)
	}
	s := f.Strategy()
	if err := s.Validate(); err != nil {
		return strategy.Strategy{}, err
	}
	return s, nil
}

// LoadStrategyFile reads, decodes and validates the descriptor at path.
func LoadStrategyFile(path string) (strategy.Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return strategy.Strategy{}, fmt.Errorf("read strategy file: %w", err)
	}
	s, err := ParseStrategy(raw)
	if err != nil {
		return strategy.Strategy{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// EncodeStrategy renders a descriptor in the file format read by ParseStrategy.
func EncodeStrategy(s strategy.Strategy) ([]byte, error) {
	f := StrategyFile{
		ID:                  s.ID,
		Name:                s.Name,
		Instruments:         s.Instruments,
		Entry:               ConditionBlock{Policy: string(s.EntryPolicy), Conditions: s.EntryConditions},
		Exit:                ConditionBlock{Policy: string(s.ExitPolicy), Conditions: s.ExitConditions},
		PositionSizePercent: Decimal{s.PositionSizePercent},
		StopLossPercent:     Decimal{s.StopLossPercent},
		TakeProfitPercent:   Decimal{s.TakeProfitPercent},
		RiskTier:            string(s.RiskTier),
		MaxEntries:          s.MaxEntries,
		Kelly: KellyBlock{
			WinRatePercent: Decimal{s.EstimatedWinRate},
			PayoffRatio:    Decimal{s.EstimatedPayoffRatio},
		},
	}
	return yaml.Marshal(f)
}
