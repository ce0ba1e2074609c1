package strategy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: strings.ToUpper(string(runes[start:i])), pos: start})
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case strings.ContainsRune("<>=!", r):
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: string(runes[i : i+2]), pos: i})
				i += 2
				continue
			}
			if r == '!' {
				return nil, fmt.Errorf("unexpected '!' at %d", i)
			}
			text := string(r)
			if r == '=' {
				text = "=="
			}
			tokens = append(tokens, token{kind: tokOp, text: text, pos: i})
			i++
		case strings.ContainsRune("+-*/", r):
			tokens = append(tokens, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected %q at %d", r, i)
		}
	}

	return append(tokens, token{kind: tokEOF, pos: len(runes)}), nil
}

var comparisonOps = map[CompareOp]bool{
	OpLess: true, OpLessEqual: true, OpGreater: true, OpGreaterEqual: true, OpEqual: true, OpNotEqual: true,
}

type parser struct {
	tokens []token
	pos    int
}

// Parse turns a condition such as "RSI(14) < 30 AND CLOSE CROSSES_ABOVE SMA(50)" into a tree.
func Parse(src string) (BoolNode, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at %d", tok.text, tok.pos)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		if tok.kind == tokEOF {
			return tok, fmt.Errorf("expected %s at end of expression", what)
		}
		return tok, fmt.Errorf("expected %s at %d, got %q", what, tok.pos, tok.text)
	}
	return tok, nil
}

func (p *parser) parseOr() (BoolNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (BoolNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &AndNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (BoolNode, error) {
	if p.isKeyword("NOT") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotNode{Inner: inner}, nil
	}

	// A parenthesis may open a boolean group or an arithmetic operand;
	// try the group first and fall back to a comparison.
	if p.peek().kind == tokLParen {
		start := p.pos
		p.next()
		if group, err := p.parseOr(); err == nil {
			if _, err := p.expect(tokRParen, "')'"); err == nil && !p.atValueOperator() {
				return group, nil
			}
		}
		p.pos = start
	}

	return p.parseComparison()
}

func (p *parser) atValueOperator() bool {
	tok := p.peek()
	return tok.kind == tokOp || p.isKeyword("CROSSES_ABOVE") || p.isKeyword("CROSSES_BELOW")
}

func (p *parser) parseComparison() (BoolNode, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	tok := p.next()
	var op CompareOp
	switch {
	case tok.kind == tokIdent && (tok.text == string(OpCrossAbove) || tok.text == string(OpCrossBelow)):
		op = CompareOp(tok.text)
	case tok.kind == tokOp && comparisonOps[CompareOp(tok.text)]:
		op = CompareOp(tok.text)
	case tok.kind == tokEOF:
		return nil, fmt.Errorf("expected comparison after %s", left)
	default:
		return nil, fmt.Errorf("expected comparison at %d, got %q", tok.pos, tok.text)
	}

	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	if op == OpCrossAbove || op == OpCrossBelow {
		return &CrossNode{Op: op, Left: left, Right: right}, nil
	}
	return &CompareNode{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseSum() (ValueNode, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.kind == tokOp && (tok.text == "+" || tok.text == "-"); tok = p.peek() {
		p.next()
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = &ArithNode{Op: tok.text[0], Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseProduct() (ValueNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.kind == tokOp && (tok.text == "*" || tok.text == "/"); tok = p.peek() {
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &ArithNode{Op: tok.text[0], Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (ValueNode, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		v, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at %d", tok.text, tok.pos)
		}
		return &NumberNode{Number: v}, nil
	case tokOp:
		if tok.text != "-" {
			break
		}
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		if num, ok := inner.(*NumberNode); ok {
			return &NumberNode{Number: num.Number.Neg()}, nil
		}
		return &ArithNode{Op: '-', Left: &NumberNode{Number: decimal.Zero}, Right: inner}, nil
	case tokLParen:
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return p.parseSeries(tok)
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at %d", tok.text, tok.pos)
}

type indicatorSpec struct {
	defaults []decimal.Decimal
	required int
}

func ints(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

var indicatorSpecs = map[IndicatorKind]indicatorSpec{
	IndicatorSMA:        {required: 1, defaults: ints(0)},
	IndicatorEMA:        {required: 1, defaults: ints(0)},
	IndicatorRSI:        {defaults: ints(14)},
	IndicatorATR:        {defaults: ints(14)},
	IndicatorVolumeSMA:  {defaults: ints(20)},
	IndicatorMACD:       {defaults: ints(12, 26, 9)},
	IndicatorMACDSignal: {defaults: ints(12, 26, 9)},
	IndicatorMACDHist:   {defaults: ints(12, 26, 9)},
	IndicatorBBUpper:    {defaults: ints(20, 2)},
	IndicatorBBMiddle:   {defaults: ints(20, 2)},
	IndicatorBBLower:    {defaults: ints(20, 2)},
	IndicatorVWAP:       {defaults: ints(20)},
	IndicatorStochastic: {defaults: ints(14)},
}

var fieldAliases = map[string]Field{
	"PRICE":  FieldClose,
	"CLOSE":  FieldClose,
	"OPEN":   FieldOpen,
	"HIGH":   FieldHigh,
	"LOW":    FieldLow,
	"VOLUME": FieldVolume,
}

func (p *parser) parseSeries(name token) (ValueNode, error) {
	if field, ok := fieldAliases[name.text]; ok && p.peek().kind != tokLParen {
		return &FieldNode{Field: field}, nil
	}

	kind := IndicatorKind(name.text)
	spec, ok := indicatorSpecs[kind]
	if !ok {
		return nil, fmt.Errorf("unknown series %q at %d", name.text, name.pos)
	}

	var args []decimal.Decimal
	if p.peek().kind == tokLParen {
		p.next()
		for p.peek().kind != tokRParen {
			if len(args) > 0 {
				if _, err := p.expect(tokComma, "','"); err != nil {
					return nil, err
				}
			}
			tok, err := p.expect(tokNumber, "numeric argument")
			if err != nil {
				return nil, err
			}
			v, err := decimal.NewFromString(tok.text)
			if err != nil {
				return nil, fmt.Errorf("invalid argument %q at %d", tok.text, tok.pos)
			}
			args = append(args, v)
		}
		p.next()
	}

	if len(args) < spec.required {
		return nil, fmt.Errorf("%s needs %d argument(s)", kind, spec.required)
	}
	if len(args) > len(spec.defaults) {
		return nil, fmt.Errorf("%s takes at most %d argument(s)", kind, len(spec.defaults))
	}

	params := make([]decimal.Decimal, len(spec.defaults))
	copy(params, spec.defaults)
	copy(params, args)

	for i, v := range params {
		isMultiplier := i == 1 && (kind == IndicatorBBUpper || kind == IndicatorBBMiddle || kind == IndicatorBBLower)
		if !v.IsPositive() {
			return nil, fmt.Errorf("%s argument %d must be positive", kind, i+1)
		}
		if !isMultiplier && !v.IsInteger() {
			return nil, fmt.Errorf("%s argument %d must be a whole number of bars", kind, i+1)
		}
	}
	if kind == IndicatorMACD || kind == IndicatorMACDSignal || kind == IndicatorMACDHist {
		if !params[0].LessThan(params[1]) {
			return nil, fmt.Errorf("%s fast period must be shorter than slow period", kind)
		}
	}

	return &IndicatorNode{Kind: kind, Params: params}, nil
}
