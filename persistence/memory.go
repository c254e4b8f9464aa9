package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements in-memory storage (non-persistent)
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStore creates a new in-memory snapshot store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
	}
}

// SaveSnapshot stores a snapshot, replacing any previous one
func (m *MemoryStore) SaveSnapshot(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.snapshots[name] = stored
	return nil
}

// LoadSnapshot retrieves a snapshot
func (m *MemoryStore) LoadSnapshot(ctx context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.snapshots[name]
	if !exists {
		return nil, fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DeleteSnapshot removes a snapshot
func (m *MemoryStore) DeleteSnapshot(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.snapshots[name]; !exists {
		return fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
	}
	delete(m.snapshots, name)
	return nil
}

// ListSnapshots returns the stored snapshot names in order
func (m *MemoryStore) ListSnapshots(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op for memory persistence
func (m *MemoryStore) Close() error {
	return nil
}
