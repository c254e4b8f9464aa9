package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a comparison operator in a filter condition
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpLt  Op = "<"
	OpGte Op = ">="
	OpLte Op = "<="
)

// Code returns the operator code used by the structured wire form
func (o Op) Code() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpLt:
		return "lt"
	case OpGte:
		return "gte"
	case OpLte:
		return "lte"
	}
	return string(o)
}

// OpFromCode maps a structured operator code back to its operator
func OpFromCode(code string) (Op, bool) {
	for _, op := range []Op{OpEq, OpNe, OpGt, OpLt, OpGte, OpLte} {
		if op.Code() == code || string(op) == code {
			return op, true
		}
	}
	return "", false
}

// BoolOp joins the conditions of a filter expression
type BoolOp string

const (
	And BoolOp = "AND"
	Or  BoolOp = "OR"
)

// Condition is an atomic comparison between a metadata field and a scalar
type Condition struct {
	Field string      `json:"field"`
	Op    Op          `json:"operator"`
	Value interface{} `json:"value"`
}

// String renders the condition in the infix grammar, e.g. name = "doc_1"
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, formatValue(c.Value))
}

// FilterExpression is a sequence of conditions joined by a single boolean
// operator. The zero value matches everything. The harness only builds and
// emits expressions; evaluation belongs to the service.
type FilterExpression struct {
	Label      string      `json:"label,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
	Join       BoolOp      `json:"join,omitempty"`
}

// IsEmpty reports whether the expression imposes no restriction
func (f FilterExpression) IsEmpty() bool {
	return len(f.Conditions) == 0
}

// JoinOp returns the boolean operator, defaulting to AND
func (f FilterExpression) JoinOp() BoolOp {
	if f.Join == "" {
		return And
	}
	return f.Join
}

// String renders the expression in the infix grammar
func (f FilterExpression) String() string {
	parts := make([]string, len(f.Conditions))
	for i, c := range f.Conditions {
		parts[i] = c.String()
	}
	return strings.Join(parts, " "+string(f.JoinOp())+" ")
}

// Name returns the label, or the rendered expression when unlabeled
func (f FilterExpression) Name() string {
	if f.Label != "" {
		return f.Label
	}
	if f.IsEmpty() {
		return "none"
	}
	return f.String()
}

// Match builds a single-condition expression
func Match(field string, op Op, value interface{}) FilterExpression {
	return FilterExpression{Conditions: []Condition{{Field: field, Op: op, Value: value}}}
}

// AllOf joins the conditions of several expressions with AND
func AllOf(exprs ...FilterExpression) FilterExpression {
	return combine(And, exprs)
}

// AnyOf joins the conditions of several expressions with OR
func AnyOf(exprs ...FilterExpression) FilterExpression {
	return combine(Or, exprs)
}

func combine(join BoolOp, exprs []FilterExpression) FilterExpression {
	out := FilterExpression{Join: join}
	for _, e := range exprs {
		out.Conditions = append(out.Conditions, e.Conditions...)
	}
	return out
}

// WithLabel returns a copy of the expression carrying a report label
func (f FilterExpression) WithLabel(label string) FilterExpression {
	f.Label = label
	return f
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return `"` + val + `"`
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return formatFloat(float64(val), 32)
	case float64:
		return formatFloat(val, 64)
	default:
		return fmt.Sprint(val)
	}
}

// formatFloat always keeps a decimal point so the service tokenizes the
// value as a double, never as a long.
func formatFloat(f float64, bitSize int) string {
	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
