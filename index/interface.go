// Package index holds the in-memory indices behind the mock service.
package index

import "github.com/dshills/vsbench/core"

// Predicate reports whether a document's metadata passes a filter
type Predicate func(metadata map[string]interface{}) bool

// Hit is one search result
type Hit struct {
	ID       int64
	Distance float32
	Metadata map[string]interface{}
}

// Index is a searchable set of documents
type Index interface {
	Config() core.IndexConfig
	Add(doc core.Document) error
	Delete(id int64) bool
	Get(id int64) (core.Document, bool)
	Search(query []float32, k int, match Predicate) ([]Hit, error)
	Size() int
	Serialize() ([]byte, error)
}
