package backtesting

import (
	"time"

	"github.com/guyghost/cryptosim/internal/costs"
	"github.com/guyghost/cryptosim/internal/logger"
	"github.com/guyghost/cryptosim/internal/lots"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/performance"
	"github.com/guyghost/cryptosim/internal/provenance"
	"github.com/shopspring/decimal"
)

// EngineVersion identifies the replay and accounting rules. Bump it whenever
// a change can alter the result of an unchanged input.
const EngineVersion = "engine/1.0.0"

// State is the lifecycle stage of an engine.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
	StateCancelled    State = "CANCELLED"
)

// RunMode selects who chooses the dataset parameters of a run.
type RunMode string

const (
	// ModeAuto lets an Advisor pick tier, timeframe and range.
	ModeAuto RunMode = "AUTO"
	// ModeManual uses the caller's Selection as given.
	ModeManual RunMode = "MANUAL"
)

// ExitReason says why a position was closed.
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEndOfData  ExitReason = "end_of_data"
)

// SkipReason says why a firing entry signal produced no execution.
type SkipReason string

const (
	SkipInsufficientCapital SkipReason = "insufficient_capital"
	SkipMaxEntries          SkipReason = "max_entries"
)

// Trade is the realized record of one lot (or part of one) being closed.
type Trade struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	LotID       int             `json:"lot_id"`
	EntryTime   time.Time       `json:"entry_time"`
	ExitTime    time.Time       `json:"exit_time"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	Volume      decimal.Decimal `json:"volume"`
	EntryFees   decimal.Decimal `json:"entry_fees"`
	ExitFees    decimal.Decimal `json:"exit_fees"`
	Fees        decimal.Decimal `json:"fees"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	PnLPercent  decimal.Decimal `json:"pnl_percent"`
	ExitReason  ExitReason      `json:"exit_reason"`
}

// EquityPoint is the account value after one bar.
type EquityPoint struct {
	Timestamp  time.Time       `json:"timestamp"`
	Balance    decimal.Decimal `json:"balance"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Equity     decimal.Decimal `json:"equity"`
}

// OpenPosition is a position still held when the run stopped.
type OpenPosition struct {
	Symbol     string          `json:"symbol"`
	Volume     decimal.Decimal `json:"volume"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	CostBasis  decimal.Decimal `json:"cost_basis"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Lots       int             `json:"lots"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Counters tally what happened during a replay besides trades.
type Counters struct {
	BarsProcessed       int `json:"bars_processed"`
	Entries             int `json:"entries"`
	Exits               int `json:"exits"`
	EvaluationErrors    int `json:"evaluation_errors"`
	WarmUpSkips         int `json:"warm_up_skips"`
	InsufficientCapital int `json:"insufficient_capital"`
	MaxEntriesReached   int `json:"max_entries_reached"`
}

// SkippedSignals is the total of signals that did not execute.
func (c Counters) SkippedSignals() int {
	return c.InsufficientCapital + c.MaxEntriesReached
}

// Result is the immutable outcome of one run.
type Result struct {
	RunID      string  `json:"run_id"`
	StrategyID string  `json:"strategy_id"`
	Status     State   `json:"status"`
	Complete   bool    `json:"complete"`
	Mode       RunMode `json:"mode"`
	Rationale  string  `json:"rationale,omitempty"`

	Tier      market.DataTier  `json:"tier"`
	TierScore float64          `json:"tier_score"`
	Timeframe market.Timeframe `json:"timeframe"`
	From      time.Time        `json:"from"`
	To        time.Time        `json:"to"`

	StartingBalance decimal.Decimal `json:"starting_balance"`
	EndingBalance   decimal.Decimal `json:"ending_balance"`
	FinalEquity     decimal.Decimal `json:"final_equity"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	TotalFees       decimal.Decimal `json:"total_fees"`

	Metrics       performance.Summary `json:"metrics"`
	EquityCurve   []EquityPoint       `json:"equity_curve"`
	Trades        []Trade             `json:"trades"`
	OpenPositions []OpenPosition      `json:"open_positions"`
	Counters      Counters            `json:"counters"`
	Warnings      []string            `json:"warnings"`

	// ValidationError is set when input was rejected before the replay.
	ValidationError *string `json:"validation_error"`

	Manifest provenance.Manifest `json:"manifest"`
}

// Selection pins the dataset parameters of a run. Zero fields accept
// whatever the bars carry.
type Selection struct {
	Tier      market.DataTier  `json:"tier,omitempty"`
	Timeframe market.Timeframe `json:"timeframe,omitempty"`
	From      time.Time        `json:"from"`
	To        time.Time        `json:"to"`
}

// RunConfig holds everything a run needs besides the strategy and the bars.
type RunConfig struct {
	StartingBalance decimal.Decimal
	Costs           costs.Config
	Mode            RunMode
	// Advisor is consulted in ModeAuto; nil uses HeuristicAdvisor.
	Advisor Advisor
	// Selection applies in ModeManual.
	Selection      Selection
	RiskFreeRate   float64
	LiquidateAtEnd bool
	// Epsilons defaults to lots.DefaultEpsilons.
	Epsilons  *lots.EpsilonTable
	Validator *market.Validator
	Logger    *logger.Logger
}

// DefaultRunConfig returns a manual run with 10,000 of starting balance and
// default costs.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		StartingBalance: decimal.NewFromInt(10000),
		Costs:           costs.DefaultConfig(),
		Mode:            ModeManual,
	}
}
