package core

import (
	"errors"
	"math"
	"testing"
)

func TestValidateIndexConfig(t *testing.T) {
	valid := IndexConfig{
		Name:           "test_index",
		Dimension:      4,
		Kind:           IndexApproximate,
		Space:          SpaceIP,
		EfConstruction: 200,
		M:              16,
	}

	tests := []struct {
		name    string
		mutate  func(*IndexConfig)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *IndexConfig) {}},
		{name: "flat ignores graph params", mutate: func(c *IndexConfig) { c.Kind = IndexFlat; c.M = 0; c.EfConstruction = 0 }},
		{name: "empty name", mutate: func(c *IndexConfig) { c.Name = "" }, wantErr: true},
		{name: "path separator", mutate: func(c *IndexConfig) { c.Name = "a/b" }, wantErr: true},
		{name: "zero dimension", mutate: func(c *IndexConfig) { c.Dimension = 0 }, wantErr: true},
		{name: "unknown kind", mutate: func(c *IndexConfig) { c.Kind = "hnsw" }, wantErr: true},
		{name: "unknown space", mutate: func(c *IndexConfig) { c.Space = "cosine" }, wantErr: true},
		{name: "approximate without M", mutate: func(c *IndexConfig) { c.M = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := ValidateIndexConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateIndexConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name    string
		batch   VectorBatch
		wantErr bool
	}{
		{
			name: "valid batch",
			batch: VectorBatch{
				{ID: 0, Vector: []float32{1, 1, 1, 1}},
				{ID: 1, Vector: []float32{2, 2, 2, 2}},
			},
		},
		{
			name:    "empty batch",
			batch:   VectorBatch{},
			wantErr: true,
		},
		{
			name: "length mismatch",
			batch: VectorBatch{
				{ID: 0, Vector: []float32{1, 1, 1}},
			},
			wantErr: true,
		},
		{
			name: "duplicate id",
			batch: VectorBatch{
				{ID: 7, Vector: []float32{1, 1, 1, 1}},
				{ID: 7, Vector: []float32{2, 2, 2, 2}},
			},
			wantErr: true,
		},
		{
			name: "NaN value",
			batch: VectorBatch{
				{ID: 0, Vector: []float32{1, float32(math.NaN()), 1, 1}},
			},
			wantErr: true,
		},
		{
			name: "infinite value",
			batch: VectorBatch{
				{ID: 0, Vector: []float32{1, float32(math.Inf(1)), 1, 1}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(tt.batch, 4)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsConfigError(err) {
				t.Errorf("expected a config error, got %v", err)
			}
		})
	}
}

func TestValidateQuery(t *testing.T) {
	q := SearchQuery{Vector: []float32{1, 1, 1, 1}, K: 4, EfSearch: 200}
	if err := ValidateQuery(q, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q.K = 0
	if err := ValidateQuery(q, 4); !IsConfigError(err) {
		t.Errorf("expected config error for k=0, got %v", err)
	}

	q.K = 4
	if err := ValidateQuery(q, 8); !IsConfigError(err) {
		t.Errorf("expected config error for dimension mismatch, got %v", err)
	}
}
