package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const snapshotKeyPrefix = "s:"

// BadgerStore implements snapshot persistence using BadgerDB
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore creates a new BadgerDB snapshot store
func NewBadgerStore(dbPath string, syncWrites bool) (*BadgerStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).WithSyncWrites(syncWrites)
	opts.Logger = nil // Disable logging for cleaner output

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", dbPath, err)
	}

	return &BadgerStore{
		db:   db,
		path: dbPath,
	}, nil
}

func snapshotKey(name string) []byte {
	return []byte(snapshotKeyPrefix + name)
}

// SaveSnapshot stores a snapshot in BadgerDB
func (b *BadgerStore) SaveSnapshot(ctx context.Context, name string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(name), data)
	})
}

// LoadSnapshot retrieves a snapshot from BadgerDB
func (b *BadgerStore) LoadSnapshot(ctx context.Context, name string) ([]byte, error) {
	var snapshot []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(name))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
			}
			return err
		}

		snapshot, err = item.ValueCopy(nil)
		return err
	})

	return snapshot, err
}

// DeleteSnapshot removes a snapshot from BadgerDB
func (b *BadgerStore) DeleteSnapshot(ctx context.Context, name string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(snapshotKey(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%s: %w", name, ErrSnapshotNotFound)
			}
			return err
		}
		return txn.Delete(snapshotKey(name))
	})
}

// ListSnapshots returns the stored snapshot names in key order
func (b *BadgerStore) ListSnapshots(ctx context.Context) ([]string, error) {
	names := []string{}

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(snapshotKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), snapshotKeyPrefix))
		}
		return nil
	})

	return names, err
}

// Close closes the BadgerDB database
func (b *BadgerStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
