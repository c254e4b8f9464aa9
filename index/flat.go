package index

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/vsbench/core"
)

// FlatIndex implements brute-force exact search
type FlatIndex struct {
	mu     sync.RWMutex
	docs   map[int64]core.Document
	config core.IndexConfig
}

// NewFlatIndex creates a new flat index
func NewFlatIndex(cfg core.IndexConfig) *FlatIndex {
	return &FlatIndex{
		docs:   make(map[int64]core.Document),
		config: cfg,
	}
}

// Config returns the configuration the index was created with
func (f *FlatIndex) Config() core.IndexConfig {
	return f.config
}

// Add adds a document to the index, replacing any document with the same id
func (f *FlatIndex) Add(doc core.Document) error {
	if err := core.ValidateVector(doc.Vector, f.config.Dimension); err != nil {
		return fmt.Errorf("invalid vector: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.docs[doc.ID] = doc
	return nil
}

// Search performs brute-force search for k nearest neighbors. Results are
// ordered by ascending distance; ties break on id.
func (f *FlatIndex) Search(query []float32, k int, match Predicate) ([]Hit, error) {
	if len(query) != f.config.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(query), f.config.Dimension)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	hits := make([]Hit, 0, len(f.docs))
	for id, doc := range f.docs {
		if match != nil && !match(doc.Metadata) {
			continue
		}

		distance, err := core.Distance(f.config.Space, query, doc.Vector)
		if err != nil {
			return nil, fmt.Errorf("distance calculation failed: %w", err)
		}

		hits = append(hits, Hit{ID: id, Distance: distance, Metadata: doc.Metadata})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Distance < hits[j].Distance
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Get returns a document by id
func (f *FlatIndex) Get(id int64) (core.Document, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	doc, ok := f.docs[id]
	return doc, ok
}

// Delete removes a document from the index
func (f *FlatIndex) Delete(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.docs[id]; !exists {
		return false
	}
	delete(f.docs, id)
	return true
}

// Size returns the number of documents in the index
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.docs)
}

// flatIndexState represents the serializable state of a FlatIndex
type flatIndexState struct {
	Config    core.IndexConfig `json:"config"`
	Documents []core.Document  `json:"documents"`
}

// Serialize converts the index state to bytes
func (f *FlatIndex) Serialize() ([]byte, error) {
	f.mu.RLock()
	state := flatIndexState{
		Config:    f.config,
		Documents: make([]core.Document, 0, len(f.docs)),
	}
	for _, doc := range f.docs {
		state.Documents = append(state.Documents, doc)
	}
	f.mu.RUnlock()

	sort.Slice(state.Documents, func(i, j int) bool {
		return state.Documents[i].ID < state.Documents[j].ID
	})

	return json.Marshal(state)
}
