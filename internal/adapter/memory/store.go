// Package memory provides a process-local port.KVStore.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vertextoedge/filetransfer/internal/port"
)

// Store keeps entries in a map guarded by a RWMutex
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ port.KVStore = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) List(_ context.Context, prefix string) ([]port.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []port.Entry
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, port.Entry{Key: k, Value: v})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *Store) Close() error { return nil }

// Len returns the number of stored entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
