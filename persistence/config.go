package persistence

import (
	"fmt"
	"time"
)

// PersistenceType represents the type of persistence backend
type PersistenceType string

const (
	PersistenceMemory PersistenceType = "memory"
	PersistenceBolt   PersistenceType = "bolt"
	PersistenceBadger PersistenceType = "badger"
)

// PersistenceConfig holds configuration for persistence layers
type PersistenceConfig struct {
	// Type of persistence backend
	Type PersistenceType `json:"type" yaml:"type"`

	// Path to database directory/file
	Path string `json:"path" yaml:"path"`

	// Timeout for acquiring the database file lock (bolt only)
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// SyncWrites makes badger fsync every write
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
}

// DefaultPersistenceConfig returns an in-memory configuration
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Type:    PersistenceMemory,
		Timeout: time.Second,
	}
}

// ValidateConfig validates persistence configuration
func ValidateConfig(config PersistenceConfig) error {
	switch config.Type {
	case PersistenceMemory:
		return nil
	case PersistenceBolt, PersistenceBadger:
		if config.Path == "" {
			return fmt.Errorf("path is required for %s persistence", config.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported persistence type: %s", config.Type)
	}
}
