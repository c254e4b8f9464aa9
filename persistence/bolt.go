package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const snapshotsBucket = "snapshots"

// BoltStore implements snapshot persistence using BoltDB
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// NewBoltStore creates a new BoltDB snapshot store
func NewBoltStore(dbPath string, timeout time.Duration) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if timeout <= 0 {
		timeout = time.Second
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return &BoltStore{
		db:   db,
		path: dbPath,
	}, nil
}

// SaveSnapshot stores a snapshot in BoltDB
func (b *BoltStore) SaveSnapshot(ctx context.Context, name string, data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(snapshotsBucket)).Put([]byte(name), data)
	})
}

// LoadSnapshot retrieves a snapshot from BoltDB
func (b *BoltStore) LoadSnapshot(ctx context.Context, name string) ([]byte, error) {
	var snapshot []byte

	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(snapshotsBucket)).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
		}

		// Copy the data since it's only valid during the transaction
		snapshot = make([]byte, len(data))
		copy(snapshot, data)
		return nil
	})

	return snapshot, err
}

// DeleteSnapshot removes a snapshot from BoltDB
func (b *BoltStore) DeleteSnapshot(ctx context.Context, name string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotsBucket))
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
		}
		return bucket.Delete([]byte(name))
	})
}

// ListSnapshots returns the stored snapshot names in key order
func (b *BoltStore) ListSnapshots(ctx context.Context) ([]string, error) {
	names := []string{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(snapshotsBucket)).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Close closes the BoltDB database
func (b *BoltStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
