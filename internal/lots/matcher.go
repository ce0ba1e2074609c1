// Package lots keeps FIFO queues of open lots and turns sells into realized P&L.
package lots

import (
	"fmt"
	"sort"
	"time"

	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// Lot is a still-open portion of a prior buy.
type Lot struct {
	ID        int
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Remaining decimal.Decimal
	Fees      decimal.Decimal
	OpenedAt  time.Time
}

// Match is the part of one sell settled against one lot.
type Match struct {
	LotID       int
	OpenedAt    time.Time
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Volume      decimal.Decimal
	EntryFees   decimal.Decimal
	ExitFees    decimal.Decimal
	Proceeds    decimal.Decimal
	Cost        decimal.Decimal
	RealizedPnL decimal.Decimal
}

// Settlement aggregates the matches of one sell.
type Settlement struct {
	Symbol      string
	ClosedAt    time.Time
	Matches     []Match
	Volume      decimal.Decimal
	Unfilled    decimal.Decimal
	Proceeds    decimal.Decimal
	Cost        decimal.Decimal
	EntryFees   decimal.Decimal
	ExitFees    decimal.Decimal
	RealizedPnL decimal.Decimal
}

// Position aggregates the open lots of one instrument.
type Position struct {
	Symbol     string
	Volume     decimal.Decimal
	EntryPrice decimal.Decimal // volume-weighted
	CostBasis  decimal.Decimal // remaining volume at entry prices
	Fees       decimal.Decimal // entry fees attributable to the remaining volume
	Lots       int
	OpenedAt   time.Time
}

// Matcher owns the lot queues of one run. It is not safe for concurrent use.
type Matcher struct {
	epsilons EpsilonTable
	queues   map[string][]*Lot
	nextID   int
}

// NewMatcher creates an empty matcher.
func NewMatcher(epsilons EpsilonTable) *Matcher {
	return &Matcher{
		epsilons: epsilons,
		queues:   make(map[string][]*Lot),
	}
}

// Epsilon returns the closed-lot threshold for symbol.
func (m *Matcher) Epsilon(symbol string) decimal.Decimal {
	return m.epsilons.For(symbol)
}

// Open appends a lot to the back of symbol's queue.
func (m *Matcher) Open(symbol string, price, volume, fees decimal.Decimal, at time.Time) (Lot, error) {
	if !price.IsPositive() {
		return Lot{}, fmt.Errorf("open %s: price %s must be positive", symbol, price)
	}
	if volume.LessThan(m.Epsilon(symbol)) {
		return Lot{}, fmt.Errorf("open %s: volume %s below minimum unit %s", symbol, volume, m.Epsilon(symbol))
	}
	if fees.IsNegative() {
		return Lot{}, fmt.Errorf("open %s: fees %s must not be negative", symbol, fees)
	}

	m.nextID++
	lot := &Lot{
		ID:        m.nextID,
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Remaining: volume,
		Fees:      fees,
		OpenedAt:  at,
	}
	m.queues[symbol] = append(m.queues[symbol], lot)
	return *lot, nil
}

// Close sells volume at price, consuming the oldest lots first. Entry fees are
// prorated by the matched share of each lot's original volume and exit fees by
// the matched share of the sell. Volume beyond the open position is reported
// as Unfilled.
func (m *Matcher) Close(symbol string, volume, price, fees decimal.Decimal, at time.Time) (Settlement, error) {
	s := Settlement{
		Symbol:      symbol,
		ClosedAt:    at,
		Volume:      decimal.Zero,
		Proceeds:    decimal.Zero,
		Cost:        decimal.Zero,
		EntryFees:   decimal.Zero,
		ExitFees:    decimal.Zero,
		RealizedPnL: decimal.Zero,
	}
	if !volume.IsPositive() || !price.IsPositive() {
		return s, fmt.Errorf("close %s: volume %s and price %s must be positive", symbol, volume, price)
	}
	queue := m.queues[symbol]
	if len(queue) == 0 {
		return s, fmt.Errorf("close %s: no open lots", symbol)
	}

	eps := m.Epsilon(symbol)
	remaining := volume

	for len(queue) > 0 && remaining.GreaterThanOrEqual(eps) {
		lot := queue[0]
		matched := utils.MinDecimal(remaining, lot.Remaining)

		match := Match{
			LotID:      lot.ID,
			OpenedAt:   lot.OpenedAt,
			EntryPrice: lot.Price,
			ExitPrice:  price,
			Volume:     matched,
			EntryFees:  utils.SafeDiv(lot.Fees.Mul(matched), lot.Volume),
			ExitFees:   utils.SafeDiv(fees.Mul(matched), volume),
			Proceeds:   utils.Mul(matched, price),
			Cost:       utils.Mul(matched, lot.Price),
		}
		match.RealizedPnL = utils.Normalize(match.Proceeds.Sub(match.Cost).Sub(match.EntryFees).Sub(match.ExitFees))

		s.Matches = append(s.Matches, match)
		s.Volume = utils.Add(s.Volume, matched)
		s.Proceeds = utils.Add(s.Proceeds, match.Proceeds)
		s.Cost = utils.Add(s.Cost, match.Cost)
		s.EntryFees = utils.Add(s.EntryFees, match.EntryFees)
		s.ExitFees = utils.Add(s.ExitFees, match.ExitFees)
		s.RealizedPnL = utils.Add(s.RealizedPnL, match.RealizedPnL)

		lot.Remaining = utils.Sub(lot.Remaining, matched)
		remaining = utils.Sub(remaining, matched)
		if lot.Remaining.LessThan(eps) {
			queue = queue[1:]
		}
	}

	if len(queue) == 0 {
		delete(m.queues, symbol)
	} else {
		m.queues[symbol] = queue
	}
	if remaining.GreaterThanOrEqual(eps) {
		s.Unfilled = remaining
	} else {
		s.Unfilled = decimal.Zero
	}
	return s, nil
}

// Lots returns copies of symbol's open lots, oldest first.
func (m *Matcher) Lots(symbol string) []Lot {
	queue := m.queues[symbol]
	out := make([]Lot, len(queue))
	for i, lot := range queue {
		out[i] = *lot
	}
	return out
}

// Position aggregates symbol's open lots.
func (m *Matcher) Position(symbol string) (Position, bool) {
	queue := m.queues[symbol]
	if len(queue) == 0 {
		return Position{}, false
	}

	p := Position{
		Symbol:    symbol,
		Volume:    decimal.Zero,
		CostBasis: decimal.Zero,
		Fees:      decimal.Zero,
		Lots:      len(queue),
		OpenedAt:  queue[0].OpenedAt,
	}
	for _, lot := range queue {
		p.Volume = utils.Add(p.Volume, lot.Remaining)
		p.CostBasis = utils.Add(p.CostBasis, utils.Mul(lot.Remaining, lot.Price))
		p.Fees = utils.Add(p.Fees, utils.SafeDiv(lot.Fees.Mul(lot.Remaining), lot.Volume))
	}
	p.EntryPrice = utils.SafeDiv(p.CostBasis, p.Volume)
	return p, true
}

// Positions returns every open position ordered by symbol.
func (m *Matcher) Positions() []Position {
	symbols := m.Symbols()
	out := make([]Position, 0, len(symbols))
	for _, symbol := range symbols {
		if p, ok := m.Position(symbol); ok {
			out = append(out, p)
		}
	}
	return out
}

// OpenCostBasis sums the cost basis of every open position.
func (m *Matcher) OpenCostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, p := range m.Positions() {
		total = utils.Add(total, p.CostBasis)
	}
	return total
}

// Unrealized returns market value minus cost basis for symbol at price.
func (m *Matcher) Unrealized(symbol string, price decimal.Decimal) decimal.Decimal {
	p, ok := m.Position(symbol)
	if !ok {
		return decimal.Zero
	}
	return utils.Sub(utils.Mul(p.Volume, price), p.CostBasis)
}

// Symbols lists instruments with open lots, sorted.
func (m *Matcher) Symbols() []string {
	symbols := make([]string, 0, len(m.queues))
	for symbol := range m.queues {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
