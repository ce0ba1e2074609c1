package backtesting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/strategy"
)

// DatasetSummary describes the validated bars offered to an advisor.
type DatasetSummary struct {
	Tiers       []market.DataTier `json:"tiers"`
	Timeframe   market.Timeframe  `json:"timeframe"`
	Instruments []string          `json:"instruments"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Bars        int               `json:"bars"`
	// WarmUpBars is how many completed bars the strategy's conditions read.
	WarmUpBars int `json:"warm_up_bars"`
}

// Recommendation is an advisor's choice plus a human-readable explanation.
type Recommendation struct {
	Selection Selection
	Rationale string
}

// Advisor chooses dataset parameters for AUTO runs.
type Advisor interface {
	Recommend(ctx context.Context, s strategy.Strategy, d DatasetSummary) (Recommendation, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, s strategy.Strategy, d DatasetSummary) (Recommendation, error)

// Recommend implements Advisor.
func (f AdvisorFunc) Recommend(ctx context.Context, s strategy.Strategy, d DatasetSummary) (Recommendation, error) {
	return f(ctx, s, d)
}

// HeuristicAdvisor picks the best tier on offer and the full date range.
type HeuristicAdvisor struct{}

// Recommend implements Advisor.
func (HeuristicAdvisor) Recommend(_ context.Context, s strategy.Strategy, d DatasetSummary) (Recommendation, error) {
	if len(d.Tiers) == 0 || d.Bars == 0 {
		return Recommendation{}, fmt.Errorf("no data to choose from")
	}

	best := d.Tiers[0]
	for _, tier := range d.Tiers[1:] {
		if tier.QualityScore() > best.QualityScore() {
			best = tier
		}
	}

	var why strings.Builder
	fmt.Fprintf(&why, "%s data (quality %.2f), %s bars from %s to %s (%d bars",
		best, best.QualityScore(), d.Timeframe,
		d.From.UTC().Format("2006-01-02"), d.To.UTC().Format("2006-01-02"), d.Bars)
	if len(d.Instruments) > 1 {
		fmt.Fprintf(&why, " across %d instruments", len(d.Instruments))
	}
	why.WriteString("); using the full range")
	if d.WarmUpBars > 0 {
		perInstrument := d.Bars / max(len(d.Instruments), 1)
		fmt.Fprintf(&why, ", the first %d bars warm up the indicators of %s", d.WarmUpBars, s.ID)
		if perInstrument < 2*d.WarmUpBars {
			why.WriteString("; the history is short for this warm-up, so results rest on few decisions")
		}
	}

	return Recommendation{
		Selection: Selection{Tier: best, Timeframe: d.Timeframe, From: d.From, To: d.To},
		Rationale: why.String(),
	}, nil
}
