package workload

import (
	"github.com/dshills/vsbench/core"
)

// Filter labels used in reports
const (
	FilterNone        = "none"
	FilterExact       = "exact"
	FilterGreaterThan = "greater_than"
	FilterLessThan    = "less_than"
	FilterAnd         = "and"
	FilterOr          = "or"
)

// Filters returns the fixed filter catalog for the ids issued so far. The
// thresholds are chosen from the ingested id range so every filter has a
// predictable number of matches:
//
//	exact         one document
//	greater_than  the upper half
//	less_than     the lower quarter
//	and           ids in the middle half
//	or            two documents
func (g *Generator) Filters() []core.FilterExpression {
	return Catalog(g.config.IDOffset, g.Issued())
}

// Catalog builds the filter catalog for ids [offset, offset+count)
func Catalog(offset, count int64) []core.FilterExpression {
	if count <= 0 {
		return []core.FilterExpression{{Label: FilterNone}}
	}

	mid := offset + count/2
	quarter := offset + count/4
	threeQuarter := offset + 3*count/4
	last := offset + count - 1

	return []core.FilterExpression{
		{Label: FilterNone},
		core.Match("name", core.OpEq, DocName(mid)).WithLabel(FilterExact),
		core.Match("integer", core.OpGt, mid).WithLabel(FilterGreaterThan),
		core.Match("float", core.OpLt, FloatValue(quarter)).WithLabel(FilterLessThan),
		core.AllOf(
			core.Match("integer", core.OpGte, quarter),
			core.Match("integer", core.OpLt, threeQuarter),
		).WithLabel(FilterAnd),
		core.AnyOf(
			core.Match("name", core.OpEq, DocName(offset)),
			core.Match("name", core.OpEq, DocName(last)),
		).WithLabel(FilterOr),
	}
}

// WithFilter returns copies of queries carrying the given filter
func WithFilter(queries []core.SearchQuery, filter core.FilterExpression) []core.SearchQuery {
	out := make([]core.SearchQuery, len(queries))
	for i, q := range queries {
		q.Filter = filter
		out[i] = q
	}
	return out
}
