// Package persistence stores saved index snapshots for the mock service.
package persistence

import (
	"context"
	"errors"
)

// ErrSnapshotNotFound is returned when no snapshot exists under a name
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store keeps serialized index snapshots keyed by index name
type Store interface {
	SaveSnapshot(ctx context.Context, name string, data []byte) error
	LoadSnapshot(ctx context.Context, name string) ([]byte, error)
	DeleteSnapshot(ctx context.Context, name string) error
	ListSnapshots(ctx context.Context) ([]string, error)
	Close() error
}
