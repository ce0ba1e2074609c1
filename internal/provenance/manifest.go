// Package provenance fingerprints the inputs and code versions behind a result
// so a stored run can later be matched to the exact data that produced it.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"runtime"
	"strings"

	"github.com/guyghost/cryptosim/internal/costs"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/strategy"
	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// ManifestVersion changes whenever the canonical encodings below change.
const ManifestVersion = "1.0"

// Runtime identifies the toolchain and platform of a run. It is informational
// and not part of verification.
type Runtime struct {
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Manifest is the reproducibility record stored next to a result.
type Manifest struct {
	InputHash       string  `json:"input_hash"`
	StrategyHash    string  `json:"strategy_hash"`
	CostHash        string  `json:"cost_hash"`
	BarCount        int     `json:"bar_count"`
	ParserVersion   string  `json:"parser_version"`
	EngineVersion   string  `json:"engine_version"`
	ManifestVersion string  `json:"manifest_version"`
	Runtime         Runtime `json:"runtime"`
}

// Versions names the code that produced a result.
type Versions struct {
	Parser string
	Engine string
}

// New builds the manifest for one run.
func New(s strategy.Strategy, c costs.Config, bars []market.Bar, v Versions) Manifest {
	return Manifest{
		InputHash:       HashBars(bars),
		StrategyHash:    HashStrategy(s),
		CostHash:        HashCosts(c),
		BarCount:        len(bars),
		ParserVersion:   v.Parser,
		EngineVersion:   v.Engine,
		ManifestVersion: ManifestVersion,
		Runtime: Runtime{
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		},
	}
}

// HashBars returns SHA256 over one line per bar of length-prefixed fields:
// symbol|timeframe|unix_nanos|open|high|low|close|volume|tier|source.
// Order matters; the same bars in another order hash differently.
func HashBars(bars []market.Bar) string {
	h := sha256.New()
	for _, b := range bars {
		writeLine(h,
			b.Symbol,
			string(b.Timeframe),
			fmt.Sprintf("%d", b.Timestamp.UTC().UnixNano()),
			canonical(b.Open),
			canonical(b.High),
			canonical(b.Low),
			canonical(b.Close),
			canonical(b.Volume),
			string(b.Tier),
			b.SourceID,
		)
	}
	return sum(h)
}

// HashStrategy covers every field that can change a run's outcome. Defaults
// are applied first so an explicit default and an omitted one hash the same.
func HashStrategy(s strategy.Strategy) string {
	s = s.WithDefaults()
	h := sha256.New()
	writeLine(h,
		s.ID,
		quoteAll(s.Instruments),
		quoteAll(s.EntryConditions),
		quoteAll(s.ExitConditions),
		string(s.EntryPolicy),
		string(s.ExitPolicy),
		canonical(s.PositionSizePercent),
		canonical(s.StopLossPercent),
		canonical(s.TakeProfitPercent),
		string(s.RiskTier),
		fmt.Sprintf("%d", s.MaxEntries),
		canonical(s.EstimatedWinRate),
		canonical(s.EstimatedPayoffRatio),
	)
	return sum(h)
}

// HashCosts covers the cost configuration including its slippage tiers.
func HashCosts(c costs.Config) string {
	h := sha256.New()
	writeLine(h,
		canonical(c.MakerFeePercent),
		canonical(c.TakerFeePercent),
		canonical(c.SpreadPercent),
		canonical(c.BaseSlippagePercent),
	)
	for _, tier := range c.SlippageTiers {
		writeLine(h, canonical(tier.Threshold), canonical(tier.Multiplier))
	}
	return sum(h)
}

// Mismatch is one field whose recomputed value differs from the manifest.
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", m.Field, m.Expected, m.Actual)
}

// Verify recomputes the manifest from the given inputs and lists every field
// that differs. An empty result means the inputs reproduce the manifest.
func Verify(m Manifest, s strategy.Strategy, c costs.Config, bars []market.Bar, v Versions) []Mismatch {
	fresh := New(s, c, bars, v)

	var out []Mismatch
	check := func(field, expected, actual string) {
		if expected != actual {
			out = append(out, Mismatch{Field: field, Expected: expected, Actual: actual})
		}
	}
	check("input_hash", m.InputHash, fresh.InputHash)
	check("strategy_hash", m.StrategyHash, fresh.StrategyHash)
	check("cost_hash", m.CostHash, fresh.CostHash)
	check("bar_count", fmt.Sprintf("%d", m.BarCount), fmt.Sprintf("%d", fresh.BarCount))
	check("parser_version", m.ParserVersion, fresh.ParserVersion)
	check("engine_version", m.EngineVersion, fresh.EngineVersion)
	check("manifest_version", m.ManifestVersion, fresh.ManifestVersion)
	return out
}

func canonical(d decimal.Decimal) string {
	return utils.Normalize(d).String()
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ",")
}

// writeLine joins fields as "len:value" so a separator inside a value cannot
// shift a field boundary.
func writeLine(w io.Writer, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			_, _ = io.WriteString(w, "|")
		}
		_, _ = fmt.Fprintf(w, "%d:%s", len(f), f)
	}
	_, _ = io.WriteString(w, "\n")
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
