// Package costs prices simulated executions: exchange fee, half-spread and
// size-dependent slippage.
package costs

import (
	"sort"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// Liquidity tells whether an order adds (maker) or removes (taker) liquidity.
type Liquidity string

const (
	Maker Liquidity = "maker"
	Taker Liquidity = "taker"
)

// SlippageTier applies Multiplier to the base slippage percentage once the
// notional reaches Threshold.
type SlippageTier struct {
	Threshold  decimal.Decimal `json:"threshold" yaml:"threshold"`
	Multiplier decimal.Decimal `json:"multiplier" yaml:"multiplier"`
}

// Config holds the recognised cost fields. All percentages are in percent units (0.1 = 0.1%).
type Config struct {
	MakerFeePercent     decimal.Decimal `json:"makerFeePercent"`
	TakerFeePercent     decimal.Decimal `json:"takerFeePercent"`
	SpreadPercent       decimal.Decimal `json:"spreadPercent"`
	BaseSlippagePercent decimal.Decimal `json:"baseSlippagePercent"`
	SlippageTiers       []SlippageTier  `json:"slippageTiers"`
}

// DefaultSlippageTiers scale slippage for large orders.
func DefaultSlippageTiers() []SlippageTier {
	return []SlippageTier{
		{Threshold: decimal.NewFromInt(10_000), Multiplier: decimal.NewFromFloat(1.25)},
		{Threshold: decimal.NewFromInt(50_000), Multiplier: decimal.NewFromFloat(1.5)},
		{Threshold: decimal.NewFromInt(100_000), Multiplier: decimal.NewFromInt(2)},
		{Threshold: decimal.NewFromInt(500_000), Multiplier: decimal.NewFromInt(3)},
	}
}

// DefaultConfig returns typical spot-exchange costs.
func DefaultConfig() Config {
	return Config{
		MakerFeePercent:     decimal.NewFromFloat(0.1),
		TakerFeePercent:     decimal.NewFromFloat(0.1),
		SpreadPercent:       decimal.NewFromFloat(0.05),
		BaseSlippagePercent: decimal.NewFromFloat(0.05),
		SlippageTiers:       DefaultSlippageTiers(),
	}
}

// Validate rejects negative values and percentages above 100.
func (c Config) Validate() error {
	hundred := decimal.NewFromInt(100)
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"makerFeePercent", c.MakerFeePercent},
		{"takerFeePercent", c.TakerFeePercent},
		{"spreadPercent", c.SpreadPercent},
		{"baseSlippagePercent", c.BaseSlippagePercent},
	}
	for _, f := range fields {
		if f.value.IsNegative() || f.value.GreaterThan(hundred) {
			return simerrors.Newf(simerrors.KindConfiguration, "validate_costs", f.name, "%s must be in [0, 100]", f.value)
		}
	}
	for i, tier := range c.SlippageTiers {
		if tier.Threshold.IsNegative() || !tier.Multiplier.IsPositive() {
			return simerrors.Newf(simerrors.KindConfiguration, "validate_costs", "slippageTiers",
				"tier %d needs a non-negative threshold and a positive multiplier", i)
		}
	}
	return nil
}

// Breakdown is the priced cost of one execution.
type Breakdown struct {
	Notional        decimal.Decimal `json:"notional"`
	Fee             decimal.Decimal `json:"fee"`
	Spread          decimal.Decimal `json:"spread"`
	Slippage        decimal.Decimal `json:"slippage"`
	Total           decimal.Decimal `json:"total"`
	SlippagePercent decimal.Decimal `json:"slippagePercent"`
	EffectivePrice  decimal.Decimal `json:"effectivePrice"`
}

// Model prices executions under one Config.
type Model struct {
	cfg   Config
	tiers []SlippageTier
}

// New validates cfg and builds a model.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tiers := make([]SlippageTier, len(cfg.SlippageTiers))
	copy(tiers, cfg.SlippageTiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Threshold.LessThan(tiers[j].Threshold)
	})
	return &Model{cfg: cfg, tiers: tiers}, nil
}

// Config returns the model's configuration.
func (m *Model) Config() Config {
	return m.cfg
}

// FeePercent returns the fee rate for the given liquidity.
func (m *Model) FeePercent(liquidity Liquidity) decimal.Decimal {
	if liquidity == Maker {
		return m.cfg.MakerFeePercent
	}
	return m.cfg.TakerFeePercent
}

// SlippagePercent returns the base slippage scaled by the highest tier the notional reaches.
// The multiplier applies to the rate, so cost grows smoothly with size.
func (m *Model) SlippagePercent(notional decimal.Decimal) decimal.Decimal {
	multiplier := decimal.NewFromInt(1)
	for _, tier := range m.tiers {
		if notional.GreaterThanOrEqual(tier.Threshold) {
			multiplier = tier.Multiplier
		}
	}
	return utils.Mul(m.cfg.BaseSlippagePercent, multiplier)
}

// HalfSpreadPercent is the share of the quoted spread a one-sided trade pays.
func (m *Model) HalfSpreadPercent() decimal.Decimal {
	return utils.SafeDiv(m.cfg.SpreadPercent, decimal.NewFromInt(2))
}

// Price computes the cost of trading volume at refPrice and the effective
// execution price, raised for buys and lowered for sells. The fee is charged
// on notional and is not folded into the effective price.
func (m *Model) Price(side market.OrderSide, refPrice, volume decimal.Decimal, liquidity Liquidity) Breakdown {
	notional := utils.Mul(refPrice, volume)
	slippagePct := m.SlippagePercent(notional)
	halfSpreadPct := m.HalfSpreadPercent()

	b := Breakdown{
		Notional:        notional,
		Fee:             utils.PercentOf(notional, m.FeePercent(liquidity)),
		Spread:          utils.PercentOf(notional, halfSpreadPct),
		Slippage:        utils.PercentOf(notional, slippagePct),
		SlippagePercent: slippagePct,
	}
	b.Total = utils.Add(utils.Add(b.Fee, b.Spread), b.Slippage)

	impact := halfSpreadPct.Add(slippagePct)
	if side == market.OrderSideSell {
		impact = impact.Neg()
	}
	b.EffectivePrice = utils.ApplyPercent(refPrice, impact)
	return b
}

// MaxVolume returns the largest buy volume whose notional plus total cost
// fits within budget, rounded down to canonical scale.
func (m *Model) MaxVolume(budget, refPrice decimal.Decimal, liquidity Liquidity) decimal.Decimal {
	if !budget.IsPositive() || !refPrice.IsPositive() {
		return decimal.Zero
	}
	// The tier is looked up at the budget, an upper bound of the notional.
	ratePct := m.FeePercent(liquidity).Add(m.HalfSpreadPercent()).Add(m.SlippagePercent(budget))
	unitCost := utils.ApplyPercent(refPrice, ratePct)
	volume := utils.SafeDivDown(budget, unitCost)

	// Per-component rounding can overshoot by a few units at canonical scale.
	for volume.IsPositive() {
		b := m.Price(market.OrderSideBuy, refPrice, volume, liquidity)
		if b.Notional.Add(b.Total).LessThanOrEqual(budget) {
			break
		}
		volume = volume.Sub(utils.DefaultTolerance)
	}
	return volume
}
