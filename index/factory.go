package index

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/vsbench/core"
)

// NewIndex creates an index for cfg. Approximate indices are served by
// exhaustive search as well; the graph parameters are recorded but unused.
func NewIndex(cfg core.IndexConfig) (Index, error) {
	if err := core.ValidateIndexConfig(cfg); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case core.IndexFlat, core.IndexApproximate:
		return NewFlatIndex(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported index type: %s", cfg.Kind)
	}
}

// Deserialize restores an index from its serialized state
func Deserialize(data []byte) (Index, error) {
	var state flatIndexState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index state: %w", err)
	}

	idx, err := NewIndex(state.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid index state: %w", err)
	}

	for _, doc := range state.Documents {
		if err := idx.Add(doc); err != nil {
			return nil, fmt.Errorf("invalid document %d in index state: %w", doc.ID, err)
		}
	}
	return idx, nil
}
