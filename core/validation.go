package core

import (
	"strings"
)

// ValidateIndexConfig checks if an index configuration is usable
func ValidateIndexConfig(cfg IndexConfig) error {
	if cfg.Name == "" {
		return ConfigErrorf("index name cannot be empty")
	}

	if strings.Contains(cfg.Name, "/") || strings.Contains(cfg.Name, "\\") {
		return ConfigErrorf("index name cannot contain path separators")
	}

	if cfg.Dimension <= 0 {
		return ConfigErrorf("index dimension must be positive, got %d", cfg.Dimension)
	}

	if cfg.Kind != IndexFlat && cfg.Kind != IndexApproximate {
		return ConfigErrorf("invalid index kind: %q", cfg.Kind)
	}

	if cfg.Space != SpaceL2 && cfg.Space != SpaceIP {
		return ConfigErrorf("invalid distance space: %q", cfg.Space)
	}

	if cfg.Kind == IndexApproximate {
		if cfg.M <= 0 {
			return ConfigErrorf("M must be positive for an approximate index, got %d", cfg.M)
		}
		if cfg.EfConstruction <= 0 {
			return ConfigErrorf("efConstruction must be positive for an approximate index, got %d", cfg.EfConstruction)
		}
	}

	return nil
}

// ValidateVector checks a vector against the expected dimension
func ValidateVector(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return ConfigErrorf("vector length %d does not match index dimension %d", len(vec), dimension)
	}

	for i, val := range vec {
		if isNaN(val) {
			return ConfigErrorf("vector contains NaN at index %d", i)
		}
		if isInf(val) {
			return ConfigErrorf("vector contains infinite value at index %d", i)
		}
	}

	return nil
}

// ValidateBatch checks every document of a batch before it is dispatched
func ValidateBatch(batch VectorBatch, dimension int) error {
	if len(batch) == 0 {
		return ConfigErrorf("batch cannot be empty")
	}

	seen := make(map[int64]struct{}, len(batch))
	for _, doc := range batch {
		if _, dup := seen[doc.ID]; dup {
			return ConfigErrorf("duplicate document id %d in batch", doc.ID)
		}
		seen[doc.ID] = struct{}{}

		if err := ValidateVector(doc.Vector, dimension); err != nil {
			return ConfigErrorf("document %d: %v", doc.ID, err)
		}
	}

	return nil
}

// ValidateQuery checks a search query against the index dimension
func ValidateQuery(q SearchQuery, dimension int) error {
	if q.K <= 0 {
		return ConfigErrorf("k must be positive, got %d", q.K)
	}

	if q.EfSearch < 0 {
		return ConfigErrorf("efSearch cannot be negative, got %d", q.EfSearch)
	}

	return ValidateVector(q.Vector, dimension)
}

// Helper functions for NaN and Inf detection
func isNaN(f float32) bool {
	return f != f
}

func isInf(f float32) bool {
	return f > 3.4e38 || f < -3.4e38
}
