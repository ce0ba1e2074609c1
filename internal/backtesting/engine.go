// Package backtesting replays historical bars through a strategy and reports
// what the strategy would have earned.
package backtesting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/guyghost/cryptosim/internal/costs"
	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/logger"
	"github.com/guyghost/cryptosim/internal/lots"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/guyghost/cryptosim/internal/performance"
	"github.com/guyghost/cryptosim/internal/provenance"
	"github.com/guyghost/cryptosim/internal/strategy"
	"github.com/guyghost/cryptosim/internal/telemetry"
	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// ErrEngineUsed is returned when Run is called a second time.
var ErrEngineUsed = errors.New("backtesting: engine already ran")

// runNamespace seeds the name-based run and trade IDs.
var runNamespace = uuid.MustParse("3b0c4b8e-6a57-5d2e-9c1f-2f6d8a7e4c10")

type riskLevels struct {
	stop decimal.Decimal
	take decimal.Decimal
}

// Engine replays bars through one strategy. An engine runs once and is not
// safe for concurrent use; run independent engines for parallel work.
type Engine struct {
	program   *strategy.Program
	cfg       RunConfig
	model     *costs.Model
	evaluator strategy.Evaluator
	validator *market.Validator
	epsilons  lots.EpsilonTable
	log       *logger.Logger
	state     State

	runID    uuid.UUID
	balance  decimal.Decimal
	realized decimal.Decimal
	fees     decimal.Decimal
	matcher  *lots.Matcher
	history  *strategy.History
	pending  map[string]market.Bar
	marks    map[string]decimal.Decimal
	levels   map[string]riskLevels
	perBar   map[string]int
	trades   []Trade
	equity   []EquityPoint
	marked   time.Time
	unmarked bool
	counters Counters
	warnings []string

	onTrade        func(*Trade)
	onEquityUpdate func(EquityPoint)
}

// NewEngine compiles the strategy and checks the run configuration. Any
// problem is a ConfigurationError.
func NewEngine(s strategy.Strategy, cfg RunConfig) (*Engine, error) {
	program, err := strategy.NewProgram(s)
	if err != nil {
		return nil, err
	}
	if !cfg.StartingBalance.IsPositive() {
		return nil, simerrors.Newf(simerrors.KindConfiguration, "new_engine", "starting_balance",
			"starting balance %s must be positive", cfg.StartingBalance)
	}
	model, err := costs.New(cfg.Costs)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case "":
		cfg.Mode = ModeManual
	case ModeAuto, ModeManual:
	default:
		return nil, simerrors.Newf(simerrors.KindConfiguration, "new_engine", "mode", "unknown run mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeManual {
		if err := checkSelection(cfg.Selection); err != nil {
			return nil, err
		}
	}
	if cfg.Mode == ModeAuto && cfg.Advisor == nil {
		cfg.Advisor = HeuristicAdvisor{}
	}

	e := &Engine{
		program:   program,
		cfg:       cfg,
		model:     model,
		evaluator: strategy.SimulationEvaluator{},
		validator: cfg.Validator,
		epsilons:  lots.DefaultEpsilons(),
		log:       cfg.Logger,
		state:     StateInitializing,
	}
	if e.validator == nil {
		e.validator = market.NewValidator()
	}
	if cfg.Epsilons != nil {
		e.epsilons = *cfg.Epsilons
	}
	if e.log == nil {
		e.log = logger.Default()
	}
	e.log = e.log.Component("backtesting").Strategy(program.Strategy.ID)
	return e, nil
}

func checkSelection(sel Selection) error {
	fail := func(format string, args ...any) error {
		return simerrors.Newf(simerrors.KindConfiguration, "select_dataset", "selection", format, args...)
	}
	if sel.Tier != "" && !sel.Tier.Valid() {
		return fail("unknown tier %q", sel.Tier)
	}
	if sel.Timeframe != "" && !sel.Timeframe.Valid() {
		return fail("unknown timeframe %q", sel.Timeframe)
	}
	if !sel.From.IsZero() && !sel.To.IsZero() && sel.To.Before(sel.From) {
		return fail("range ends (%s) before it starts (%s)", sel.To.Format(time.RFC3339), sel.From.Format(time.RFC3339))
	}
	return nil
}

// SetOnTrade sets the callback for closed trades.
func (e *Engine) SetOnTrade(callback func(*Trade)) {
	e.onTrade = callback
}

// SetOnEquityUpdate sets the callback for equity points, one per timestamp.
func (e *Engine) SetOnEquityUpdate(callback func(EquityPoint)) {
	e.onEquityUpdate = callback
}

// State returns the lifecycle stage.
func (e *Engine) State() State {
	return e.state
}

// Run replays bars in the order given. Bars are validated before the first
// step; rejected input yields a FAILED result with ValidationError set
// together with an error wrapping ErrDataValidation. Cancelling ctx stops the
// replay between bars and yields a CANCELLED, incomplete result without error.
func (e *Engine) Run(ctx context.Context, bars []market.Bar) (*Result, error) {
	if e.state != StateInitializing {
		return nil, ErrEngineUsed
	}
	started := time.Now()
	e.reset()

	manifest := provenance.New(e.program.Strategy, e.cfg.Costs, bars, provenance.Versions{
		Parser: ParserVersion,
		Engine: EngineVersion,
	})
	e.runID = e.deriveRunID(manifest)
	e.log = e.log.Run(e.runID.String())

	res := &Result{
		RunID:           e.runID.String(),
		StrategyID:      e.program.Strategy.ID,
		Mode:            e.cfg.Mode,
		StartingBalance: e.cfg.StartingBalance,
		Manifest:        manifest,
	}

	selected, err := e.prepare(ctx, bars, res)
	if err != nil {
		e.state = StateFailed
		if simerrors.KindOf(err) == simerrors.KindDataValidation {
			msg := err.Error()
			res.ValidationError = &msg
		}
		e.log.WithError(err).Warn("backtest rejected before replay")
		e.finish(res, started)
		return res, err
	}

	e.state = StateRunning
	e.log.Info("backtest started", "bars", len(selected), "mode", string(e.cfg.Mode), "tier", string(res.Tier))

	cancelled := e.replay(ctx, selected)
	if cancelled {
		e.state = StateCancelled
		e.warnings = append(e.warnings, fmt.Sprintf("cancelled after %d of %d bars", e.counters.BarsProcessed, len(selected)))
	} else {
		if e.cfg.LiquidateAtEnd {
			e.liquidate()
		}
		e.state = StateCompleted
	}

	e.finish(res, started)
	e.log.Info("backtest finished",
		"status", string(res.Status),
		"trades", len(res.Trades),
		"final_equity", res.FinalEquity.String(),
		"evaluation_errors", res.Counters.EvaluationErrors,
	)
	return res, nil
}

func (e *Engine) reset() {
	e.balance = e.cfg.StartingBalance
	e.realized = decimal.Zero
	e.fees = decimal.Zero
	e.matcher = lots.NewMatcher(e.epsilons)
	e.history = strategy.NewHistory(max(e.program.Lookback()+2, 2))
	e.pending = make(map[string]market.Bar)
	e.marks = make(map[string]decimal.Decimal)
	e.levels = make(map[string]riskLevels)
	e.perBar = make(map[string]int)
	e.trades = make([]Trade, 0)
	e.equity = make([]EquityPoint, 0)
	e.marked = time.Time{}
	e.unmarked = false
	e.warnings = make([]string, 0)
}

// deriveRunID is a name-based UUID over everything that determines the outcome,
// so identical inputs always produce the identical result document.
func (e *Engine) deriveRunID(m provenance.Manifest) uuid.UUID {
	sel := e.cfg.Selection
	name := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%d|%d|%v|%v",
		m.InputHash, m.StrategyHash, m.CostHash, EngineVersion,
		utils.Normalize(e.cfg.StartingBalance), e.cfg.Mode,
		sel.Tier, sel.Timeframe, sel.From.UnixNano(), sel.To.UnixNano(),
		e.cfg.RiskFreeRate, e.cfg.LiquidateAtEnd)
	return uuid.NewSHA1(runNamespace, []byte(name))
}

// prepare validates the input, resolves the dataset selection and returns the
// bars to replay.
func (e *Engine) prepare(ctx context.Context, bars []market.Bar, res *Result) ([]market.Bar, error) {
	report, err := e.validator.ValidateSeries(bars)
	if err != nil {
		return nil, err
	}
	e.warnings = append(e.warnings, report.Warnings...)

	sel := e.cfg.Selection
	if e.cfg.Mode == ModeAuto {
		if len(bars) == 0 {
			sel = Selection{}
			res.Rationale = "no bars supplied"
		} else {
			summary := DatasetSummary{
				Tiers:       []market.DataTier{report.Tier},
				Timeframe:   report.Timeframe,
				Instruments: report.Instruments,
				From:        report.From,
				To:          report.To,
				Bars:        report.Bars,
				WarmUpBars:  e.program.Lookback(),
			}
			rec, err := e.cfg.Advisor.Recommend(ctx, e.program.Strategy, summary)
			if err != nil {
				return nil, simerrors.New(simerrors.KindConfiguration, "advise", e.program.Strategy.ID, err)
			}
			if err := checkSelection(rec.Selection); err != nil {
				return nil, err
			}
			sel = rec.Selection
			res.Rationale = rec.Rationale
		}
	}

	if len(bars) > 0 {
		if sel.Tier != "" && sel.Tier != report.Tier {
			return nil, simerrors.Newf(simerrors.KindDataValidation, "select_dataset", string(sel.Tier),
				"selected tier %s but the bars are %s; a run uses exactly one data tier", sel.Tier, report.Tier)
		}
		if sel.Timeframe != "" && sel.Timeframe != report.Timeframe {
			return nil, simerrors.Newf(simerrors.KindDataValidation, "select_dataset", string(sel.Timeframe),
				"selected timeframe %s but the bars are %s", sel.Timeframe, report.Timeframe)
		}
	}
	res.Tier = report.Tier
	if res.Tier == "" {
		res.Tier = sel.Tier
	}
	res.TierScore = res.Tier.QualityScore()
	res.Timeframe = report.Timeframe
	if res.Timeframe == "" {
		res.Timeframe = sel.Timeframe
	}

	selected := make([]market.Bar, 0, len(bars))
	ignored := make(map[string]int)
	for _, b := range bars {
		if !sel.From.IsZero() && b.Timestamp.Before(sel.From) {
			continue
		}
		if !sel.To.IsZero() && b.Timestamp.After(sel.To) {
			continue
		}
		if !e.program.Strategy.Trades(b.Symbol) {
			ignored[b.Symbol]++
			continue
		}
		selected = append(selected, b)
	}
	if len(ignored) > 0 {
		symbols := make([]string, 0, len(ignored))
		for symbol := range ignored {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			e.warnings = append(e.warnings, fmt.Sprintf("ignored %d bars of %s, which the strategy does not trade", ignored[symbol], symbol))
		}
	}
	if len(bars) > 0 && len(selected) == 0 {
		e.warnings = append(e.warnings, "no bars left after selection")
	}
	if len(selected) > 0 {
		res.From = selected[0].Timestamp
		res.To = selected[len(selected)-1].Timestamp
	}
	return selected, nil
}

// replay steps through bars and reports whether ctx stopped it early.
// Equity is marked once per timestamp, after every instrument's bar at that
// timestamp has been stepped.
func (e *Engine) replay(ctx context.Context, bars []market.Bar) bool {
	defer e.flushEquity()
	for _, bar := range bars {
		if e.unmarked && !bar.Timestamp.Equal(e.marked) {
			e.flushEquity()
		}
		if ctx.Err() != nil {
			return true
		}
		e.step(bar)
	}
	return false
}

// flushEquity records the point for the last stepped timestamp, if any.
func (e *Engine) flushEquity() {
	if !e.unmarked {
		return
	}
	e.unmarked = false
	e.recordEquity(e.marked)
}

// step runs one bar. Decisions see only bars completed before this one and
// executions price at this bar's open. The bar's close becomes its mark.
func (e *Engine) step(bar market.Bar) {
	symbol := bar.Symbol
	if prev, ok := e.pending[symbol]; ok {
		if err := e.history.Append(prev); err != nil {
			e.log.Symbol(symbol).WithError(err).Error("history rejected a completed bar")
		}
	}

	exited := false
	if _, open := e.matcher.Position(symbol); open {
		if reason, hit := e.levelHit(symbol); hit {
			e.exit(symbol, bar.Open, bar.Timestamp, reason)
			exited = true
		} else {
			d := e.program.ExitSignal(e.evaluator, e.history, symbol, bar.Timestamp)
			e.account(symbol, "exit", d)
			if d.Signal {
				e.exit(symbol, bar.Open, bar.Timestamp, ExitSignal)
				exited = true
			}
		}
	}

	if !exited {
		d := e.program.EntrySignal(e.evaluator, e.history, symbol, bar.Timestamp)
		e.account(symbol, "entry", d)
		if d.Signal {
			e.enter(bar, d.Fired)
		}
	}

	e.pending[symbol] = bar
	e.marks[symbol] = bar.Close
	e.perBar[symbol]++
	e.counters.BarsProcessed++
	e.marked = bar.Timestamp
	e.unmarked = true
}

// account tallies evaluation errors and warm-up of one decision.
func (e *Engine) account(symbol, side string, d strategy.Decision) {
	if d.WarmingUp > 0 {
		e.counters.WarmUpSkips++
	}
	for _, err := range d.Errors {
		e.counters.EvaluationErrors++
		telemetry.RecordEvaluationError(e.program.Strategy.ID)
		e.log.Symbol(symbol).WithError(err).Warn("condition failed to evaluate; treated as no signal", "side", side)
	}
}

// levelHit checks the last completed close against the stop and take levels.
func (e *Engine) levelHit(symbol string) (ExitReason, bool) {
	lv, ok := e.levels[symbol]
	if !ok {
		return "", false
	}
	last, ok := e.history.Last(symbol)
	if !ok {
		return "", false
	}
	if lv.stop.IsPositive() && last.Close.LessThanOrEqual(lv.stop) {
		return ExitStopLoss, true
	}
	if lv.take.IsPositive() && last.Close.GreaterThanOrEqual(lv.take) {
		return ExitTakeProfit, true
	}
	return "", false
}

func (e *Engine) skip(symbol string, reason SkipReason, err error) {
	switch reason {
	case SkipInsufficientCapital:
		e.counters.InsufficientCapital++
	case SkipMaxEntries:
		e.counters.MaxEntriesReached++
	}
	telemetry.RecordSkippedSignal(string(reason))
	e.log.Symbol(symbol).WithError(err).Debug("entry signal skipped", "reason", string(reason))
}

// enter sizes a buy from the available balance and opens a lot at the bar's open.
func (e *Engine) enter(bar market.Bar, fired []string) {
	symbol := bar.Symbol
	s := e.program.Strategy

	if pos, ok := e.matcher.Position(symbol); ok && pos.Lots >= s.MaxEntries {
		e.skip(symbol, SkipMaxEntries, nil)
		return
	}

	available := utils.Sub(e.balance, e.matcher.OpenCostBasis())
	budget := utils.PercentOf(available, s.PositionSizePercent)
	unit := e.epsilons.For(symbol)
	volume := floorToUnit(e.model.MaxVolume(budget, bar.Open, costs.Taker), unit)
	if volume.LessThan(unit) {
		e.skip(symbol, SkipInsufficientCapital, simerrors.Newf(simerrors.KindInsufficientCapital, "enter", symbol,
			"budget %s buys less than one unit (%s) at %s", budget, unit, bar.Open))
		return
	}

	b := e.model.Price(market.OrderSideBuy, bar.Open, volume, costs.Taker)
	if need := utils.Add(b.Notional, b.Total); need.GreaterThan(available) {
		e.skip(symbol, SkipInsufficientCapital, simerrors.Newf(simerrors.KindInsufficientCapital, "enter", symbol,
			"order needs %s, %s available", need, available))
		return
	}

	lot, err := e.matcher.Open(symbol, bar.Open, volume, b.Total, bar.Timestamp)
	if err != nil {
		e.skip(symbol, SkipInsufficientCapital, err)
		return
	}
	e.balance = utils.Sub(e.balance, b.Total)
	e.fees = utils.Add(e.fees, b.Total)
	e.counters.Entries++
	e.updateLevels(symbol)

	e.log.Symbol(symbol).Debug("entry",
		"lot", lot.ID,
		"price", bar.Open.String(),
		"volume", volume.String(),
		"costs", b.Total.String(),
		"conditions", fired,
	)
}

func (e *Engine) updateLevels(symbol string) {
	pos, ok := e.matcher.Position(symbol)
	if !ok {
		delete(e.levels, symbol)
		return
	}
	s := e.program.Strategy
	var lv riskLevels
	if s.StopLossPercent.IsPositive() {
		lv.stop = utils.ApplyPercent(pos.EntryPrice, s.StopLossPercent.Neg())
	}
	if s.TakeProfitPercent.IsPositive() {
		lv.take = utils.ApplyPercent(pos.EntryPrice, s.TakeProfitPercent)
	}
	e.levels[symbol] = lv
}

// exit sells the whole position at price and records one trade per matched lot.
func (e *Engine) exit(symbol string, price decimal.Decimal, at time.Time, reason ExitReason) {
	pos, ok := e.matcher.Position(symbol)
	if !ok {
		return
	}

	b := e.model.Price(market.OrderSideSell, price, pos.Volume, costs.Taker)
	settlement, err := e.matcher.Close(symbol, pos.Volume, price, b.Total, at)
	if err != nil {
		e.log.Symbol(symbol).WithError(err).Error("exit could not be settled")
		return
	}

	// Entry costs were debited on entry; credit gross P&L less exit costs.
	e.balance = utils.Add(e.balance, utils.Add(settlement.RealizedPnL, settlement.EntryFees))
	e.realized = utils.Add(e.realized, settlement.RealizedPnL)
	e.fees = utils.Add(e.fees, settlement.ExitFees)
	e.counters.Exits++
	delete(e.levels, symbol)

	for _, m := range settlement.Matches {
		trade := Trade{
			ID:          uuid.NewSHA1(e.runID, []byte(fmt.Sprintf("%s|%d|%d", symbol, m.LotID, at.UnixNano()))).String(),
			Symbol:      symbol,
			LotID:       m.LotID,
			EntryTime:   m.OpenedAt,
			ExitTime:    at,
			EntryPrice:  m.EntryPrice,
			ExitPrice:   m.ExitPrice,
			Volume:      m.Volume,
			EntryFees:   m.EntryFees,
			ExitFees:    m.ExitFees,
			Fees:        utils.Add(m.EntryFees, m.ExitFees),
			RealizedPnL: m.RealizedPnL,
			PnLPercent:  utils.Mul(utils.SafeDiv(m.RealizedPnL, m.Cost), decimal.NewFromInt(100)),
			ExitReason:  reason,
		}
		e.trades = append(e.trades, trade)
		telemetry.RecordTrade(symbol, string(reason))
		e.notifyTrade(trade)
	}

	e.log.Symbol(symbol).Debug("exit",
		"reason", string(reason),
		"price", price.String(),
		"volume", settlement.Volume.String(),
		"pnl", settlement.RealizedPnL.String(),
	)
}

// liquidate closes every open position at its last close.
func (e *Engine) liquidate() {
	symbols := e.matcher.Symbols()
	if len(symbols) == 0 {
		return
	}
	for _, symbol := range symbols {
		e.exit(symbol, e.marks[symbol], e.pending[symbol].Timestamp, ExitEndOfData)
	}
	// Restate the final point; liquidation happens at the last marks.
	if n := len(e.equity); n > 0 {
		e.equity[n-1] = e.equityAt(e.equity[n-1].Timestamp)
	}
}

func (e *Engine) unrealized() decimal.Decimal {
	total := decimal.Zero
	for _, symbol := range e.matcher.Symbols() {
		total = utils.Add(total, e.matcher.Unrealized(symbol, e.marks[symbol]))
	}
	return total
}

// equityAt is balance plus unrealized P&L, never balance plus market value.
func (e *Engine) equityAt(ts time.Time) EquityPoint {
	unrealized := e.unrealized()
	return EquityPoint{
		Timestamp:  ts,
		Balance:    e.balance,
		Unrealized: unrealized,
		Equity:     utils.Add(e.balance, unrealized),
	}
}

func (e *Engine) recordEquity(ts time.Time) {
	p := e.equityAt(ts)
	e.equity = append(e.equity, p)
	e.notifyEquity(p)
}

func (e *Engine) notifyTrade(t Trade) {
	if e.onTrade == nil {
		return
	}
	defer e.recoverCallback("on_trade")
	e.onTrade(&t)
}

func (e *Engine) notifyEquity(p EquityPoint) {
	if e.onEquityUpdate == nil {
		return
	}
	defer e.recoverCallback("on_equity_update")
	e.onEquityUpdate(p)
}

func (e *Engine) recoverCallback(name string) {
	if r := recover(); r != nil {
		telemetry.RecordCallbackPanic()
		e.log.Error("callback panicked", "callback", name, "panic", fmt.Sprint(r))
	}
}

// finish fills the result from the run state and records telemetry.
func (e *Engine) finish(res *Result, started time.Time) {
	res.Status = e.state
	res.Complete = e.state == StateCompleted
	res.EndingBalance = e.balance
	res.UnrealizedPnL = e.unrealized()
	res.FinalEquity = utils.Add(e.balance, res.UnrealizedPnL)
	res.TotalPnL = utils.Sub(res.FinalEquity, e.cfg.StartingBalance)
	res.RealizedPnL = e.realized
	res.TotalFees = e.fees
	res.EquityCurve = e.equity
	res.Trades = e.trades
	res.Counters = e.counters
	res.Warnings = e.warnings

	res.OpenPositions = make([]OpenPosition, 0)
	for _, pos := range e.matcher.Positions() {
		mark := e.marks[pos.Symbol]
		lv := e.levels[pos.Symbol]
		res.OpenPositions = append(res.OpenPositions, OpenPosition{
			Symbol:     pos.Symbol,
			Volume:     pos.Volume,
			EntryPrice: pos.EntryPrice,
			CostBasis:  pos.CostBasis,
			StopLoss:   lv.stop,
			TakeProfit: lv.take,
			MarkPrice:  mark,
			Unrealized: e.matcher.Unrealized(pos.Symbol, mark),
			Lots:       pos.Lots,
			OpenedAt:   pos.OpenedAt,
		})
	}

	curve := make([]decimal.Decimal, len(e.equity))
	for i, p := range e.equity {
		curve[i] = p.Equity
	}
	pnls := make([]decimal.Decimal, len(e.trades))
	for i, t := range e.trades {
		pnls[i] = t.RealizedPnL
	}
	s := e.program.Strategy
	in := performance.Input{
		StartingBalance: e.cfg.StartingBalance,
		Equity:          curve,
		TradePnLs:       pnls,
		Timeframe:       res.Timeframe,
		RiskFreeRate:    e.cfg.RiskFreeRate,
		KellyMultiplier: s.RiskTier.KellyMultiplier(),
	}
	if s.EstimatedWinRate.IsPositive() && s.EstimatedPayoffRatio.IsPositive() {
		in.Estimates = &performance.KellyEstimate{
			WinRatePercent: s.EstimatedWinRate,
			PayoffRatio:    s.EstimatedPayoffRatio,
		}
	}
	res.Metrics = performance.Summarize(in)

	symbols := make([]string, 0, len(e.perBar))
	for symbol := range e.perBar {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		telemetry.RecordBars(symbol, e.perBar[symbol])
	}
	telemetry.RecordRun(string(res.Status), time.Since(started))
	telemetry.RecordFinalEquity(s.ID, res.FinalEquity.InexactFloat64())
}

// floorToUnit rounds volume down to a whole number of tradable units.
func floorToUnit(volume, unit decimal.Decimal) decimal.Decimal {
	if !unit.IsPositive() {
		return volume
	}
	return utils.Mul(utils.SafeDivDown(volume, unit).Floor(), unit)
}
