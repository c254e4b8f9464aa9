package mockserver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dshills/vsbench/client"
	"github.com/dshills/vsbench/core"
)

// Node is a parsed filter expression
type Node interface {
	Eval(metadata map[string]interface{}) bool
	String() string
}

type comparison struct {
	field string
	op    core.Op
	value interface{} // float64 or string
}

func (c comparison) Eval(metadata map[string]interface{}) bool {
	actual, ok := metadata[c.field]
	if !ok {
		return false
	}

	if want, ok := c.value.(string); ok {
		got, ok := actual.(string)
		if !ok {
			return false
		}
		return compare(strings.Compare(got, want), c.op)
	}

	got, ok := toFloat(actual)
	if !ok {
		return false
	}
	want := c.value.(float64)
	switch {
	case got < want:
		return compare(-1, c.op)
	case got > want:
		return compare(1, c.op)
	default:
		return compare(0, c.op)
	}
}

func (c comparison) String() string {
	return core.Condition{Field: c.field, Op: c.op, Value: c.value}.String()
}

func compare(cmp int, op core.Op) bool {
	switch op {
	case core.OpEq:
		return cmp == 0
	case core.OpNe:
		return cmp != 0
	case core.OpGt:
		return cmp > 0
	case core.OpLt:
		return cmp < 0
	case core.OpGte:
		return cmp >= 0
	case core.OpLte:
		return cmp <= 0
	}
	return false
}

type boolean struct {
	op          core.BoolOp
	left, right Node
}

func (b boolean) Eval(metadata map[string]interface{}) bool {
	if b.op == core.And {
		return b.left.Eval(metadata) && b.right.Eval(metadata)
	}
	return b.left.Eval(metadata) || b.right.Eval(metadata)
}

func (b boolean) String() string {
	return "(" + b.left.String() + " " + string(b.op) + " " + b.right.String() + ")"
}

type not struct {
	child Node
}

func (n not) Eval(metadata map[string]interface{}) bool {
	return !n.child.Eval(metadata)
}

func (n not) String() string {
	return "NOT " + n.child.String()
}

// ParseFilter parses the infix filter grammar:
//
//	expr       = or
//	or         = and { "OR" and }
//	and        = unary { "AND" unary }
//	unary      = "NOT" unary | "(" expr ")" | comparison
//	comparison = identifier comparator literal
//
// Literals are double-quoted strings, integers or decimals. An empty string
// yields a nil Node, which matches everything.
func ParseFilter(s string) (Node, error) {
	tokens, err := lex(s)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.tokens[p.pos].text, p.pos)
	}
	return node, nil
}

// StructuredFilter builds a filter from the structured wire form
func StructuredFilter(conds []client.StructuredCondition, join string) (Node, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	boolOp := core.BoolOp(strings.ToUpper(join))
	if join == "" {
		boolOp = core.And
	}
	if boolOp != core.And && boolOp != core.Or {
		return nil, fmt.Errorf("unknown filter join operator %q", join)
	}

	var node Node
	for _, c := range conds {
		op, ok := core.OpFromCode(c.Operator)
		if !ok {
			return nil, fmt.Errorf("unknown filter operator %q", c.Operator)
		}
		value, ok := normalizeValue(c.Value)
		if !ok {
			return nil, fmt.Errorf("unsupported filter value %v for field %s", c.Value, c.Field)
		}

		cmp := comparison{field: c.Field, op: op, value: value}
		if node == nil {
			node = cmp
			continue
		}
		node = boolean{op: boolOp, left: node, right: cmp}
	}
	return node, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokComparator
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) ([]token, error) {
	var tokens []token
	runes := []rune(s)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("unterminated string starting at %d", i)
			}
			tokens = append(tokens, token{tokString, string(runes[i+1 : end])})
			i = end + 1
		case strings.ContainsRune("=!<>", r):
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
			}
			if op == "!" || op == "==" {
				return nil, fmt.Errorf("invalid comparator %q at %d", op, i)
			}
			tokens = append(tokens, token{tokComparator, op})
			i += len(op)
		case unicode.IsDigit(r) || r == '-' || r == '.':
			end := i + 1
			for end < len(runes) && (unicode.IsDigit(runes[end]) || runes[end] == '.') {
				end++
			}
			tokens = append(tokens, token{tokNumber, string(runes[i:end])})
			i = end
		case unicode.IsLetter(r) || r == '_':
			end := i + 1
			for end < len(runes) && (unicode.IsLetter(runes[end]) || unicode.IsDigit(runes[end]) || runes[end] == '_') {
				end++
			}
			word := string(runes[i:end])
			switch word {
			case "AND":
				tokens = append(tokens, token{tokAnd, word})
			case "OR":
				tokens = append(tokens, token{tokOr, word})
			case "NOT":
				tokens = append(tokens, token{tokNot, word})
			default:
				tokens = append(tokens, token{tokIdent, word})
			}
			i = end
		default:
			return nil, fmt.Errorf("invalid character %q at %d", r, i)
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, error) {
	t, ok := p.peek()
	if !ok {
		return token{}, fmt.Errorf("unexpected end of filter")
	}
	p.pos++
	return t, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = boolean{op: core.Or, left: left, right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = boolean{op: core.And, left: left, right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	switch t.kind {
	case tokNot:
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{child: child}, nil
	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, err := p.next()
		if err != nil || closing.kind != tokRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		return node, nil
	case tokIdent:
		return p.parseComparison(t.text)
	default:
		return nil, fmt.Errorf("syntax error near %q", t.text)
	}
}

func (p *parser) parseComparison(field string) (Node, error) {
	opTok, err := p.next()
	if err != nil || opTok.kind != tokComparator {
		return nil, fmt.Errorf("expected a comparator after %s", field)
	}

	valTok, err := p.next()
	if err != nil {
		return nil, err
	}

	var value interface{}
	switch valTok.kind {
	case tokString:
		value = valTok.text
	case tokNumber:
		f, err := strconv.ParseFloat(valTok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", valTok.text)
		}
		value = f
	default:
		return nil, fmt.Errorf("expected a literal after %s %s", field, opTok.text)
	}

	return comparison{field: field, op: core.Op(opTok.text), value: value}, nil
}

func normalizeValue(v interface{}) (interface{}, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	return toFloat(v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
