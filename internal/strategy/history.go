package strategy

import (
	"fmt"
	"time"

	"github.com/guyghost/cryptosim/internal/market"
	"github.com/shopspring/decimal"
)

// Mode selects how the trailing edge of a history window is treated.
type Mode int

const (
	// ModeLive treats the newest stored bar as the latest completed one.
	ModeLive Mode = iota
	// ModeSimulation drops any stored bar at or after the decision time.
	ModeSimulation
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulation:
		return "simulation"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// History holds completed bars per instrument for one run or live session.
// It is not safe for concurrent use.
type History struct {
	capacity int
	bars     map[string][]market.Bar
}

// NewHistory creates a history keeping at least capacity bars per instrument.
// A capacity of zero keeps everything.
func NewHistory(capacity int) *History {
	return &History{
		capacity: capacity,
		bars:     make(map[string][]market.Bar),
	}
}

// Append records a completed bar. Bars must arrive in chronological order per instrument.
func (h *History) Append(b market.Bar) error {
	series := h.bars[b.Symbol]
	if n := len(series); n > 0 && b.Timestamp.Before(series[n-1].Timestamp) {
		return fmt.Errorf("history: %s precedes last stored bar %s", b, series[n-1])
	}

	series = append(series, b)
	if h.capacity > 0 && len(series) > 2*h.capacity {
		trimmed := make([]market.Bar, h.capacity, 2*h.capacity)
		copy(trimmed, series[len(series)-h.capacity:])
		series = trimmed
	}
	h.bars[b.Symbol] = series
	return nil
}

// Len returns the number of stored bars for symbol.
func (h *History) Len(symbol string) int {
	return len(h.bars[symbol])
}

// Last returns the newest stored bar for symbol.
func (h *History) Last(symbol string) (market.Bar, bool) {
	series := h.bars[symbol]
	if len(series) == 0 {
		return market.Bar{}, false
	}
	return series[len(series)-1], true
}

// Window returns the bars a decision at time at may see.
func (h *History) Window(mode Mode, symbol string, at time.Time) Window {
	series := h.bars[symbol]
	if mode == ModeSimulation {
		end := len(series)
		for end > 0 && !series[end-1].Timestamp.Before(at) {
			end--
		}
		series = series[:end]
	}
	return Window{symbol: symbol, bars: series}
}

// Field selects one column of a bar.
type Field string

const (
	FieldOpen   Field = "OPEN"
	FieldHigh   Field = "HIGH"
	FieldLow    Field = "LOW"
	FieldClose  Field = "CLOSE"
	FieldVolume Field = "VOLUME"
)

// Window is a read-only, causally filtered view of one instrument's history.
type Window struct {
	symbol string
	bars   []market.Bar
}

// NewWindow wraps bars that are already known to be completed.
func NewWindow(symbol string, bars []market.Bar) Window {
	return Window{symbol: symbol, bars: bars}
}

// Symbol returns the instrument the window belongs to.
func (w Window) Symbol() string { return w.symbol }

// Len returns the number of bars in the window.
func (w Window) Len() int { return len(w.bars) }

// Last returns the newest bar in the window.
func (w Window) Last() (market.Bar, bool) {
	if len(w.bars) == 0 {
		return market.Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}

// Shift drops the newest n bars, giving the window as it was n bars ago.
func (w Window) Shift(n int) Window {
	if n <= 0 {
		return w
	}
	if n >= len(w.bars) {
		return Window{symbol: w.symbol}
	}
	return Window{symbol: w.symbol, bars: w.bars[:len(w.bars)-n]}
}

// Tail keeps the newest n bars.
func (w Window) Tail(n int) Window {
	if n <= 0 || n >= len(w.bars) {
		return w
	}
	return Window{symbol: w.symbol, bars: w.bars[len(w.bars)-n:]}
}

// Values extracts one column.
func (w Window) Values(f Field) []decimal.Decimal {
	out := make([]decimal.Decimal, len(w.bars))
	for i, b := range w.bars {
		out[i] = fieldOf(b, f)
	}
	return out
}

func fieldOf(b market.Bar, f Field) decimal.Decimal {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldVolume:
		return b.Volume
	default:
		return b.Close
	}
}
