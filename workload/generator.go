// Package workload produces the vectors, documents, queries and filters a
// benchmark scenario sends to the service.
package workload

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/vsbench/core"
)

// Config controls how a Generator draws vectors
type Config struct {
	Dimension    int
	Seed         *int64 // nil draws a seed from the clock
	Min          float32
	Max          float32
	Normalize    bool
	WithMetadata bool
	IDOffset     int64
}

// DefaultConfig returns the range and normalization the load scripts use
func DefaultConfig(dimension int) Config {
	return Config{
		Dimension: dimension,
		Min:       -1,
		Max:       1,
		Normalize: true,
	}
}

// Generator produces workload items. It is safe for concurrent use; ids are
// handed out from a single atomic counter so no two batches share an id.
type Generator struct {
	config Config
	seed   int64

	mu  sync.Mutex
	rng *rand.Rand

	nextID atomic.Int64
}

// NewGenerator creates a new workload generator
func NewGenerator(config Config) (*Generator, error) {
	if config.Dimension <= 0 {
		return nil, core.ConfigErrorf("workload dimension must be positive, got %d", config.Dimension)
	}
	if config.Min == 0 && config.Max == 0 {
		config.Min, config.Max = -1, 1
	}
	if config.Max <= config.Min {
		return nil, core.ConfigErrorf("workload range [%v, %v) is empty", config.Min, config.Max)
	}

	seed := time.Now().UnixNano()
	if config.Seed != nil {
		seed = *config.Seed
	}

	g := &Generator{
		config: config,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
	}
	g.nextID.Store(config.IDOffset)
	return g, nil
}

// Seed returns the seed in use, so an unseeded run can be replayed
func (g *Generator) Seed() int64 {
	return g.seed
}

// Dimension returns the vector length produced by the generator
func (g *Generator) Dimension() int {
	return g.config.Dimension
}

// Vector draws one vector
func (g *Generator) Vector() []float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vectorLocked()
}

func (g *Generator) vectorLocked() []float32 {
	span := g.config.Max - g.config.Min
	vec := make([]float32, g.config.Dimension)
	for i := range vec {
		vec[i] = g.config.Min + g.rng.Float32()*span
	}
	if g.config.Normalize {
		core.Normalize(vec)
	}
	return vec
}

// ReserveIDs atomically claims n consecutive ids and returns the first
func (g *Generator) ReserveIDs(n int) int64 {
	return g.nextID.Add(int64(n)) - int64(n)
}

// NextID claims a single id
func (g *Generator) NextID() int64 {
	return g.ReserveIDs(1)
}

// Issued returns how many ids have been handed out since IDOffset
func (g *Generator) Issued() int64 {
	return g.nextID.Load() - g.config.IDOffset
}

// GenerateBatches produces count batches of batchSize documents each
func (g *Generator) GenerateBatches(count, batchSize int) ([]core.VectorBatch, error) {
	if count < 0 || batchSize <= 0 {
		return nil, core.ConfigErrorf("invalid batch shape %d x %d", count, batchSize)
	}

	batches := make([]core.VectorBatch, count)
	for b := range batches {
		first := g.ReserveIDs(batchSize)

		g.mu.Lock()
		batch := make(core.VectorBatch, batchSize)
		for i := range batch {
			id := first + int64(i)
			batch[i] = core.Document{ID: id, Vector: g.vectorLocked()}
			if g.config.WithMetadata {
				batch[i].Metadata = Metadata(id)
			}
		}
		g.mu.Unlock()

		batches[b] = batch
	}
	return batches, nil
}

// GenerateQueries produces count search queries with fresh random vectors
func (g *Generator) GenerateQueries(count, k, efSearch int, returnMetadata bool) ([]core.SearchQuery, error) {
	if count < 0 {
		return nil, core.ConfigErrorf("query count cannot be negative, got %d", count)
	}
	if k <= 0 {
		return nil, core.ConfigErrorf("k must be positive, got %d", k)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	queries := make([]core.SearchQuery, count)
	for i := range queries {
		queries[i] = core.SearchQuery{
			Vector:         g.vectorLocked(),
			K:              k,
			EfSearch:       efSearch,
			ReturnMetadata: returnMetadata,
		}
	}
	return queries, nil
}

// Metadata returns the metadata attached to a document id
func Metadata(id int64) map[string]interface{} {
	return map[string]interface{}{
		"name":    DocName(id),
		"integer": id,
		"float":   FloatValue(id),
	}
}

// DocName is the name metadata of a document id
func DocName(id int64) string {
	return fmt.Sprintf("doc_%d", id)
}

// FloatValue is the float metadata of a document id
func FloatValue(id int64) float64 {
	return float64(id) * 100 / 3.234
}
