package strategy

import (
	"errors"
	"fmt"
	"time"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
)

// Condition is one parsed entry or exit rule.
type Condition struct {
	Source string
	Root   BoolNode
}

// Compile parses src once so it is never re-parsed per bar.
func Compile(src string) (Condition, error) {
	root, err := Parse(src)
	if err != nil {
		return Condition{}, simerrors.New(simerrors.KindConfiguration, "compile_condition", src, err)
	}
	return Condition{Source: src, Root: root}, nil
}

// Evaluator computes a condition's signal over a history window.
type Evaluator interface {
	Mode() Mode
	// Evaluate returns the signal of cond for symbol at decision time at.
	// ErrInsufficientHistory is returned unwrapped during warm-up; any other
	// failure is an EvaluationError.
	Evaluate(cond Condition, h *History, symbol string, at time.Time) (bool, error)
}

// LiveEvaluator evaluates against every stored bar; in a live session the
// newest stored bar is always the latest completed one.
type LiveEvaluator struct{}

// Mode implements Evaluator.
func (LiveEvaluator) Mode() Mode { return ModeLive }

// Evaluate implements Evaluator.
func (LiveEvaluator) Evaluate(cond Condition, h *History, symbol string, at time.Time) (bool, error) {
	return evaluate(ModeLive, cond, h, symbol, at)
}

// SimulationEvaluator drops any bar at or after the decision time before
// computing indicators, so a replay never sees the bar being decided on.
type SimulationEvaluator struct{}

// Mode implements Evaluator.
func (SimulationEvaluator) Mode() Mode { return ModeSimulation }

// Evaluate implements Evaluator.
func (SimulationEvaluator) Evaluate(cond Condition, h *History, symbol string, at time.Time) (bool, error) {
	return evaluate(ModeSimulation, cond, h, symbol, at)
}

// NewEvaluator returns the evaluator variant for mode.
func NewEvaluator(mode Mode) Evaluator {
	if mode == ModeLive {
		return LiveEvaluator{}
	}
	return SimulationEvaluator{}
}

func evaluate(mode Mode, cond Condition, h *History, symbol string, at time.Time) (signal bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			signal = false
			err = simerrors.New(simerrors.KindEvaluation, "evaluate", cond.Source, fmt.Errorf("panic: %v", r))
		}
	}()

	if cond.Root == nil {
		return false, simerrors.Newf(simerrors.KindEvaluation, "evaluate", cond.Source, "condition was not compiled")
	}

	signal, err = cond.Root.Eval(h.Window(mode, symbol, at))
	if err != nil {
		if errors.Is(err, ErrInsufficientHistory) {
			return false, ErrInsufficientHistory
		}
		return false, simerrors.New(simerrors.KindEvaluation, "evaluate", cond.Source, err)
	}
	return signal, nil
}

// Decision is the combined outcome of a list of conditions.
type Decision struct {
	Signal bool
	// Fired lists the sources of conditions that evaluated true.
	Fired []string
	// Errors holds EvaluationErrors; each counts as "no signal".
	Errors []error
	// WarmingUp counts conditions that lacked history.
	WarmingUp int
}

// Program is a compiled strategy.
type Program struct {
	Strategy Strategy
	Entry    []Condition
	Exit     []Condition
	lookback int
}

// NewProgram validates s and compiles all of its conditions.
func NewProgram(s Strategy) (*Program, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.WithDefaults()

	p := &Program{Strategy: s}
	for _, src := range s.EntryConditions {
		cond, err := Compile(src)
		if err != nil {
			return nil, err
		}
		p.Entry = append(p.Entry, cond)
		p.lookback = max(p.lookback, cond.Root.Lookback())
	}
	for _, src := range s.ExitConditions {
		cond, err := Compile(src)
		if err != nil {
			return nil, err
		}
		p.Exit = append(p.Exit, cond)
		p.lookback = max(p.lookback, cond.Root.Lookback())
	}
	return p, nil
}

// Lookback is the most completed bars any condition reads.
func (p *Program) Lookback() int {
	return p.lookback
}

// EntrySignal combines the entry conditions under the entry policy.
func (p *Program) EntrySignal(ev Evaluator, h *History, symbol string, at time.Time) Decision {
	return decide(ev, p.Entry, p.Strategy.EntryPolicy, h, symbol, at)
}

// ExitSignal combines the exit conditions under the exit policy.
func (p *Program) ExitSignal(ev Evaluator, h *History, symbol string, at time.Time) Decision {
	return decide(ev, p.Exit, p.Strategy.ExitPolicy, h, symbol, at)
}

func decide(ev Evaluator, conds []Condition, policy Policy, h *History, symbol string, at time.Time) Decision {
	var d Decision
	if len(conds) == 0 {
		return d
	}

	for _, cond := range conds {
		ok, err := ev.Evaluate(cond, h, symbol, at)
		switch {
		case errors.Is(err, ErrInsufficientHistory):
			d.WarmingUp++
		case err != nil:
			d.Errors = append(d.Errors, err)
		case ok:
			d.Fired = append(d.Fired, cond.Source)
		}
	}

	if policy == PolicyAll {
		d.Signal = len(d.Fired) == len(conds)
	} else {
		d.Signal = len(d.Fired) > 0
	}
	return d
}
