// Package memtier implements the volatile tier as an in-process map.
// Contents are scoped to the running process, which is exactly the
// volatile-tier contract: fast, small, gone when the session's process ends.
package memtier

import (
	"context"
	"sync"
	"time"

	"github.com/chordpad/draftstore/tier"
)

type entry struct {
	value        []byte
	lastAccessed time.Time
}

// Store is an in-memory tier.Store with a byte capacity. Safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	capacity int64
	entries  map[string]entry
	now      func() time.Time
}

func New(capacity int64) *Store {
	return &Store{
		capacity: capacity,
		entries:  make(map[string]entry),
		now:      time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, tier.ErrNotFound
	}
	e.lastAccessed = s.now()
	s.entries[key] = e
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var used int64
	for k, e := range s.entries {
		if k == key {
			continue
		}
		used += int64(len(e.value))
	}
	if used+int64(len(value)) > s.capacity {
		return tier.ErrQuotaExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = entry{value: stored, lastAccessed: s.now()}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) Usage(_ context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var used int64
	for _, e := range s.entries {
		used += int64(len(e.value))
	}
	return used, s.capacity, nil
}

func (s *Store) Entries(_ context.Context) ([]tier.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tier.Entry, 0, len(s.entries))
	for k, e := range s.entries {
		out = append(out, tier.Entry{
			Key:          k,
			SizeBytes:    int64(len(e.value)),
			LastAccessed: e.lastAccessed,
		})
	}
	return out, nil
}

var _ tier.Store = (*Store)(nil)
