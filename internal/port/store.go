package port

import "context"

// Entry is a single key/value pair
type Entry struct {
	Key   string
	Value string
}

// KVStore is the durable transfer state store. Writes are last-writer-wins.
type KVStore interface {
	// Put stores value under key, replacing any previous value
	Put(ctx context.Context, key, value string) error

	// Get returns the value for key; ok is false if the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Delete removes key. Deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix, ordered by key
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases the underlying storage
	Close() error
}
