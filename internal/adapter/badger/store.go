package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/vertextoedge/filetransfer/internal/port"
)

// Store implements port.KVStore on top of BadgerDB
type Store struct {
	db *badgerdb.DB
}

// Ensure Store implements port.KVStore
var _ port.KVStore = (*Store)(nil)

// Open opens (or creates) a BadgerDB at the given directory.
func Open(dir string) (*Store, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a BadgerDB that keeps everything in memory.
func OpenInMemory() (*Store, error) {
	db, err := badgerdb.Open(badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the BadgerDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores value under key.
func (s *Store) Put(_ context.Context, key, value string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Get retrieves the value stored under key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// List returns all entries under prefix. Badger iterates in key order.
func (s *Store) List(_ context.Context, prefix string) ([]port.Entry, error) {
	var entries []port.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, port.Entry{Key: string(item.KeyCopy(nil)), Value: string(val)})
		}
		return nil
	})
	return entries, err
}
