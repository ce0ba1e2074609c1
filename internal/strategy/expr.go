package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/guyghost/cryptosim/pkg/utils"
	"github.com/shopspring/decimal"
)

// ErrInsufficientHistory means an indicator needs more completed bars than the window holds.
var ErrInsufficientHistory = errors.New("insufficient history")

// BoolNode is a node of a parsed condition that yields a signal.
type BoolNode interface {
	Eval(w Window) (bool, error)
	// Lookback is the number of completed bars the node reads.
	Lookback() int
	String() string
}

// ValueNode is a node of a parsed condition that yields a number for the bar
// offset bars before the newest one in the window.
type ValueNode interface {
	Value(w Window, offset int) (decimal.Decimal, error)
	Lookback() int
	String() string
}

// AndNode is true when both operands are.
type AndNode struct{ Left, Right BoolNode }

func (n *AndNode) Eval(w Window) (bool, error) {
	left, err := n.Left.Eval(w)
	if err != nil || !left {
		return false, err
	}
	return n.Right.Eval(w)
}

func (n *AndNode) Lookback() int  { return max(n.Left.Lookback(), n.Right.Lookback()) }
func (n *AndNode) String() string { return fmt.Sprintf("(%s AND %s)", n.Left, n.Right) }

// OrNode is true when either operand is.
type OrNode struct{ Left, Right BoolNode }

func (n *OrNode) Eval(w Window) (bool, error) {
	left, err := n.Left.Eval(w)
	if err != nil {
		return false, err
	}
	if left {
		return true, nil
	}
	return n.Right.Eval(w)
}

func (n *OrNode) Lookback() int  { return max(n.Left.Lookback(), n.Right.Lookback()) }
func (n *OrNode) String() string { return fmt.Sprintf("(%s OR %s)", n.Left, n.Right) }

// NotNode negates its operand.
type NotNode struct{ Inner BoolNode }

func (n *NotNode) Eval(w Window) (bool, error) {
	v, err := n.Inner.Eval(w)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (n *NotNode) Lookback() int  { return n.Inner.Lookback() }
func (n *NotNode) String() string { return fmt.Sprintf("NOT %s", n.Inner) }

// CompareOp is a relational operator.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpEqual        CompareOp = "=="
	OpNotEqual     CompareOp = "!="
	OpCrossAbove   CompareOp = "CROSSES_ABOVE"
	OpCrossBelow   CompareOp = "CROSSES_BELOW"
)

// CompareNode compares two values on the newest completed bar.
type CompareNode struct {
	Op          CompareOp
	Left, Right ValueNode
}

func (n *CompareNode) Eval(w Window) (bool, error) {
	left, err := n.Left.Value(w, 0)
	if err != nil {
		return false, err
	}
	right, err := n.Right.Value(w, 0)
	if err != nil {
		return false, err
	}

	c := left.Cmp(right)
	switch n.Op {
	case OpLess:
		return c < 0, nil
	case OpLessEqual:
		return c <= 0, nil
	case OpGreater:
		return c > 0, nil
	case OpGreaterEqual:
		return c >= 0, nil
	case OpEqual:
		return c == 0, nil
	case OpNotEqual:
		return c != 0, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", n.Op)
}

func (n *CompareNode) Lookback() int { return max(n.Left.Lookback(), n.Right.Lookback()) }
func (n *CompareNode) String() string {
	return fmt.Sprintf("%s %s %s", n.Left, n.Op, n.Right)
}

// CrossNode detects Left crossing Right between the previous and the newest completed bar.
type CrossNode struct {
	Op          CompareOp
	Left, Right ValueNode
}

func (n *CrossNode) Eval(w Window) (bool, error) {
	var cur, prev [2]decimal.Decimal
	for i, side := range []ValueNode{n.Left, n.Right} {
		v, err := side.Value(w, 0)
		if err != nil {
			return false, err
		}
		p, err := side.Value(w, 1)
		if err != nil {
			return false, err
		}
		cur[i], prev[i] = v, p
	}

	if n.Op == OpCrossAbove {
		return prev[0].LessThanOrEqual(prev[1]) && cur[0].GreaterThan(cur[1]), nil
	}
	return prev[0].GreaterThanOrEqual(prev[1]) && cur[0].LessThan(cur[1]), nil
}

func (n *CrossNode) Lookback() int { return max(n.Left.Lookback(), n.Right.Lookback()) + 1 }
func (n *CrossNode) String() string {
	return fmt.Sprintf("%s %s %s", n.Left, n.Op, n.Right)
}

// NumberNode is a constant.
type NumberNode struct{ Number decimal.Decimal }

func (n *NumberNode) Value(Window, int) (decimal.Decimal, error) { return n.Number, nil }
func (n *NumberNode) Lookback() int                              { return 0 }
func (n *NumberNode) String() string                             { return n.Number.String() }

// FieldNode reads a raw bar column.
type FieldNode struct{ Field Field }

func (n *FieldNode) Value(w Window, offset int) (decimal.Decimal, error) {
	b, ok := w.Shift(offset).Last()
	if !ok {
		return decimal.Zero, ErrInsufficientHistory
	}
	return fieldOf(b, n.Field), nil
}

func (n *FieldNode) Lookback() int  { return 1 }
func (n *FieldNode) String() string { return string(n.Field) }

// ArithNode combines two values with + - * or /.
type ArithNode struct {
	Op          byte
	Left, Right ValueNode
}

func (n *ArithNode) Value(w Window, offset int) (decimal.Decimal, error) {
	left, err := n.Left.Value(w, offset)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := n.Right.Value(w, offset)
	if err != nil {
		return decimal.Zero, err
	}

	switch n.Op {
	case '+':
		return utils.Add(left, right), nil
	case '-':
		return utils.Sub(left, right), nil
	case '*':
		return utils.Mul(left, right), nil
	case '/':
		if right.IsZero() {
			return decimal.Zero, fmt.Errorf("division by zero in %s", n)
		}
		return utils.SafeDiv(left, right), nil
	}
	return decimal.Zero, fmt.Errorf("unsupported operator %q", n.Op)
}

func (n *ArithNode) Lookback() int  { return max(n.Left.Lookback(), n.Right.Lookback()) }
func (n *ArithNode) String() string { return fmt.Sprintf("(%s %c %s)", n.Left, n.Op, n.Right) }

// IndicatorKind names a supported technical indicator.
type IndicatorKind string

const (
	IndicatorSMA        IndicatorKind = "SMA"
	IndicatorEMA        IndicatorKind = "EMA"
	IndicatorRSI        IndicatorKind = "RSI"
	IndicatorATR        IndicatorKind = "ATR"
	IndicatorVolumeSMA  IndicatorKind = "VOLUME_SMA"
	IndicatorMACD       IndicatorKind = "MACD"
	IndicatorMACDSignal IndicatorKind = "MACD_SIGNAL"
	IndicatorMACDHist   IndicatorKind = "MACD_HIST"
	IndicatorBBUpper    IndicatorKind = "BB_UPPER"
	IndicatorBBMiddle   IndicatorKind = "BB_MIDDLE"
	IndicatorBBLower    IndicatorKind = "BB_LOWER"
	IndicatorVWAP       IndicatorKind = "VWAP"
	IndicatorStochastic IndicatorKind = "STOCH"
)

// IndicatorNode computes an indicator over the window and yields its newest value.
type IndicatorNode struct {
	Kind   IndicatorKind
	Params []decimal.Decimal
}

func (n *IndicatorNode) param(i int) int {
	return int(n.Params[i].IntPart())
}

// span is the number of bars fed to the indicator. Recursive averages get
// four periods of warm-up so the seed has decayed.
func (n *IndicatorNode) span() int {
	switch n.Kind {
	case IndicatorEMA:
		return 4 * n.param(0)
	case IndicatorRSI:
		return 4*n.param(0) + 1
	case IndicatorATR:
		return n.param(0) + 1
	case IndicatorMACD, IndicatorMACDSignal, IndicatorMACDHist:
		return 4 * (n.param(1) + n.param(2))
	default:
		return n.param(0)
	}
}

func (n *IndicatorNode) Lookback() int { return n.span() }

func (n *IndicatorNode) String() string {
	args := make([]string, len(n.Params))
	for i, p := range n.Params {
		args[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", n.Kind, strings.Join(args, ","))
}

func (n *IndicatorNode) Value(w Window, offset int) (decimal.Decimal, error) {
	w = w.Shift(offset).Tail(n.span())

	var series []decimal.Decimal
	switch n.Kind {
	case IndicatorSMA:
		series = SMA(w.Values(FieldClose), n.param(0))
	case IndicatorEMA:
		series = EMA(w.Values(FieldClose), n.param(0))
	case IndicatorRSI:
		series = RSI(w.Values(FieldClose), n.param(0))
	case IndicatorATR:
		series = ATR(w.Values(FieldHigh), w.Values(FieldLow), w.Values(FieldClose), n.param(0))
	case IndicatorVolumeSMA:
		series = SMA(w.Values(FieldVolume), n.param(0))
	case IndicatorMACD, IndicatorMACDSignal, IndicatorMACDHist:
		line, signal, hist := MACD(w.Values(FieldClose), n.param(0), n.param(1), n.param(2))
		switch n.Kind {
		case IndicatorMACD:
			if len(signal) > 0 {
				series = line
			}
		case IndicatorMACDSignal:
			series = signal
		default:
			series = hist
		}
	case IndicatorBBUpper, IndicatorBBMiddle, IndicatorBBLower:
		upper, middle, lower := BollingerBands(w.Values(FieldClose), n.param(0), n.Params[1])
		switch n.Kind {
		case IndicatorBBUpper:
			series = upper
		case IndicatorBBMiddle:
			series = middle
		default:
			series = lower
		}
	case IndicatorVWAP:
		if w.Len() < n.param(0) {
			return decimal.Zero, ErrInsufficientHistory
		}
		return VWAP(w.Values(FieldClose), w.Values(FieldVolume)), nil
	case IndicatorStochastic:
		series = Stochastic(w.Values(FieldHigh), w.Values(FieldLow), w.Values(FieldClose), n.param(0))
	default:
		return decimal.Zero, fmt.Errorf("unsupported indicator %s", n.Kind)
	}

	if len(series) == 0 {
		return decimal.Zero, fmt.Errorf("%s: %w", n, ErrInsufficientHistory)
	}
	return series[len(series)-1], nil
}
