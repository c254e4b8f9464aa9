package persistence

import (
	"fmt"
)

// NewStore creates a snapshot store based on configuration
func NewStore(config PersistenceConfig) (Store, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid persistence configuration: %w", err)
	}

	switch config.Type {
	case PersistenceBolt:
		return NewBoltStore(config.Path, config.Timeout)
	case PersistenceBadger:
		return NewBadgerStore(config.Path, config.SyncWrites)
	default:
		return NewMemoryStore(), nil
	}
}
