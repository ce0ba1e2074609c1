package market

import (
	"fmt"
	"time"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// Check names one bar validation rule.
type Check string

const (
	CheckPositivePrices Check = "positive_prices"
	CheckVolume         Check = "non_negative_volume"
	CheckLowHigh        Check = "low_not_above_high"
	CheckOpenInRange    Check = "open_within_range"
	CheckCloseInRange   Check = "close_within_range"
	CheckNotInFuture    Check = "not_in_future"
	CheckNotBeforeFloor Check = "not_before_floor"
	CheckSpike          Check = "spike"
	CheckOrdering       Check = "ordering"
	CheckTierMix        Check = "tier_mix"
	CheckTimeframeMix   Check = "timeframe_mix"
	CheckMetadata       Check = "metadata"
	CheckGap            Check = "gap"
)

// Gaps wider than 1.5 bars are reported.
const gapToleranceHalves = 3

// DefaultFloor is the earliest plausible crypto bar (Bitcoin genesis block).
var DefaultFloor = time.Date(2009, time.January, 3, 0, 0, 0, 0, time.UTC)

// DefaultSpikeRatio rejects bars whose (high-low)/low exceeds 50%.
var DefaultSpikeRatio = decimal.NewFromFloat(0.5)

// BarError describes the first failed check for one bar.
type BarError struct {
	Index  int
	Bar    Bar
	Check  Check
	Reason string
}

// Error implements the error interface.
func (e *BarError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("bar %d (%s) failed %s: %s", e.Index, e.Bar, e.Check, e.Reason)
	}
	return fmt.Sprintf("bar %s failed %s: %s", e.Bar, e.Check, e.Reason)
}

// SeriesReport summarises a validated bar sequence.
type SeriesReport struct {
	Tier        DataTier
	Timeframe   Timeframe
	Instruments []string
	From        time.Time
	To          time.Time
	Bars        int
	Warnings    []string
}

// Validator rejects corrupt bars and enforces single-tier runs.
type Validator struct {
	now        func() time.Time
	floor      time.Time
	spikeRatio decimal.Decimal
	strictGaps bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the clock used by the future-timestamp check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithFloor sets the earliest accepted timestamp.
func WithFloor(floor time.Time) Option {
	return func(v *Validator) {
		v.floor = floor
	}
}

// WithSpikeRatio sets the maximum accepted (high-low)/low.
func WithSpikeRatio(ratio decimal.Decimal) Option {
	return func(v *Validator) {
		if ratio.IsPositive() {
			v.spikeRatio = ratio
		}
	}
}

// WithStrictGaps turns missing-bar gaps into validation errors.
func WithStrictGaps(strict bool) Option {
	return func(v *Validator) {
		v.strictGaps = strict
	}
}

// NewValidator creates a validator with the default floor, spike ratio and wall clock.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		now:        time.Now,
		floor:      DefaultFloor,
		spikeRatio: DefaultSpikeRatio,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateBar runs the eight per-bar checks.
func (v *Validator) ValidateBar(b Bar) error {
	return v.validateBar(-1, b)
}

func (v *Validator) validateBar(index int, b Bar) error {
	fail := func(check Check, format string, args ...any) error {
		return simerrors.New(simerrors.KindDataValidation, "validate_bar", b.Symbol, &BarError{
			Index:  index,
			Bar:    b,
			Check:  check,
			Reason: fmt.Sprintf(format, args...),
		})
	}

	if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
		return fail(CheckPositivePrices, "prices must be positive (o=%s h=%s l=%s c=%s)", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume.IsNegative() {
		return fail(CheckVolume, "volume %s is negative", b.Volume)
	}
	if b.Low.GreaterThan(b.High) {
		return fail(CheckLowHigh, "low %s above high %s", b.Low, b.High)
	}
	if !utils.IsWithinRange(b.Open, b.Low, b.High) {
		return fail(CheckOpenInRange, "open %s outside [%s, %s]", b.Open, b.Low, b.High)
	}
	if !utils.IsWithinRange(b.Close, b.Low, b.High) {
		return fail(CheckCloseInRange, "close %s outside [%s, %s]", b.Close, b.Low, b.High)
	}
	if b.Timestamp.After(v.now()) {
		return fail(CheckNotInFuture, "timestamp is in the future")
	}
	if b.Timestamp.Before(v.floor) {
		return fail(CheckNotBeforeFloor, "timestamp before %s", v.floor.Format(time.RFC3339))
	}
	if ratio := utils.SafeDiv(b.High.Sub(b.Low), b.Low); ratio.GreaterThan(v.spikeRatio) {
		return fail(CheckSpike, "range ratio %s exceeds %s", ratio, v.spikeRatio)
	}
	return nil
}

// ValidateSeries checks every bar, chronological order, and that the sequence
// uses exactly one tier and one timeframe. An empty sequence is valid.
func (v *Validator) ValidateSeries(bars []Bar) (*SeriesReport, error) {
	report := &SeriesReport{Bars: len(bars)}
	if len(bars) == 0 {
		return report, nil
	}

	first := bars[0]
	report.Tier = first.Tier
	report.Timeframe = first.Timeframe
	report.From = first.Timestamp
	report.To = bars[len(bars)-1].Timestamp

	seen := make(map[string]time.Time)
	var prev time.Time

	for i, b := range bars {
		fail := func(check Check, format string, args ...any) error {
			return simerrors.New(simerrors.KindDataValidation, "validate_series", b.Symbol, &BarError{
				Index:  i,
				Bar:    b,
				Check:  check,
				Reason: fmt.Sprintf(format, args...),
			})
		}

		if b.Symbol == "" || !b.Timeframe.Valid() || !b.Tier.Valid() {
			return nil, fail(CheckMetadata, "symbol, timeframe (%q) and tier (%q) are required", b.Timeframe, b.Tier)
		}
		if b.Tier != report.Tier {
			return nil, fail(CheckTierMix, "tier %s mixed with %s; a run uses exactly one data tier", b.Tier, report.Tier)
		}
		if b.Timeframe != report.Timeframe {
			return nil, fail(CheckTimeframeMix, "timeframe %s mixed with %s", b.Timeframe, report.Timeframe)
		}
		if err := v.validateBar(i, b); err != nil {
			return nil, err
		}
		if i > 0 && b.Timestamp.Before(prev) {
			return nil, fail(CheckOrdering, "timestamp precedes previous bar at %s", prev.Format(time.RFC3339))
		}
		prev = b.Timestamp

		if last, ok := seen[b.Symbol]; ok {
			maxGap := b.Timeframe.Duration() * gapToleranceHalves / 2
			if gap := b.Timestamp.Sub(last); gap > maxGap {
				if v.strictGaps {
					return nil, fail(CheckGap, "gap of %s after %s", gap, last.Format(time.RFC3339))
				}
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s: gap of %s after %s", b.Symbol, gap, last.Format(time.RFC3339)))
			}
		} else {
			report.Instruments = append(report.Instruments, b.Symbol)
		}
		seen[b.Symbol] = b.Timestamp

		if b.Volume.IsZero() {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: zero volume", b))
		}
	}

	return report, nil
}
