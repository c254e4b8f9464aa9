package client

import (
	"github.com/dshills/vsbench/core"
)

// Field names as the service spells them in camel case
const (
	FieldIndexName      = "indexName"
	FieldDimension      = "dimension"
	FieldIndexType      = "indexType"
	FieldSpaceType      = "spaceType"
	FieldEfConstruction = "efConstruction"
	FieldM              = "M"
	FieldIDs            = "ids"
	FieldVectors        = "vectors"
	FieldMetadatas      = "metadatas"
	FieldQueryVector    = "queryVector"
	FieldK              = "k"
	FieldEfSearch       = "efSearch"
	FieldFilter         = "filter"
	FieldFilters        = "filters"
	FieldFilterOp       = "filterOp"
	FieldReturnMetadata = "returnMetadata"
)

var snakeNames = map[string]string{
	FieldIndexName:      "index_name",
	FieldIndexType:      "index_type",
	FieldSpaceType:      "space_type",
	FieldEfConstruction: "ef_construction",
	FieldQueryVector:    "query_vector",
	FieldEfSearch:       "ef_search",
	FieldFilterOp:       "filter_op",
	FieldReturnMetadata: "return_metadata",
}

// SnakeName returns the snake_case spelling of a camelCase field
func SnakeName(field string) string {
	if s, ok := snakeNames[field]; ok {
		return s
	}
	return field
}

// CamelName returns the camelCase spelling of a snake_case field
func CamelName(field string) string {
	for camel, snake := range snakeNames {
		if snake == field {
			return camel
		}
	}
	return field
}

// body is a request payload keyed by camelCase field names
type body map[string]interface{}

// encode renames the payload fields for the wire naming
func (w Wire) encode(b body) map[string]interface{} {
	if w.Naming != NamingSnake {
		return b
	}
	out := make(map[string]interface{}, len(b))
	for k, v := range b {
		out[SnakeName(k)] = v
	}
	return out
}

// StructuredCondition is one condition of the structured filter form
type StructuredCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// addFilter writes the filter of a query into b. An empty filter writes
// nothing.
func (w Wire) addFilter(b body, filter core.FilterExpression) {
	if filter.IsEmpty() {
		return
	}

	if w.Filter == FilterStructured {
		conds := make([]StructuredCondition, len(filter.Conditions))
		for i, c := range filter.Conditions {
			conds[i] = StructuredCondition{Field: c.Field, Operator: c.Op.Code(), Value: c.Value}
		}
		b[FieldFilters] = conds
		b[FieldFilterOp] = string(filter.JoinOp())
		return
	}

	b[FieldFilter] = filter.String()
}

func createIndexBody(cfg core.IndexConfig) body {
	return body{
		FieldIndexName:      cfg.Name,
		FieldDimension:      cfg.Dimension,
		FieldIndexType:      string(cfg.Kind),
		FieldSpaceType:      string(cfg.Space),
		FieldEfConstruction: cfg.EfConstruction,
		FieldM:              cfg.M,
	}
}

func addDocumentsBody(name string, batch core.VectorBatch) body {
	b := body{
		FieldIndexName: name,
		FieldIDs:       batch.IDs(),
		FieldVectors:   batch.Vectors(),
	}
	if batch.HasMetadata() {
		metadatas := make([]map[string]interface{}, len(batch))
		for i, doc := range batch {
			metadatas[i] = doc.Metadata
			if metadatas[i] == nil {
				metadatas[i] = map[string]interface{}{}
			}
		}
		b[FieldMetadatas] = metadatas
	}
	return b
}

func (w Wire) searchBody(name string, q core.SearchQuery) body {
	b := body{
		FieldIndexName:      name,
		FieldQueryVector:    q.Vector,
		FieldK:              q.K,
		FieldEfSearch:       q.EfSearch,
		FieldReturnMetadata: q.ReturnMetadata,
	}
	w.addFilter(b, q.Filter)
	return b
}

func indexNameBody(name string) body {
	return body{FieldIndexName: name}
}
