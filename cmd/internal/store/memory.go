package store

import (
	"context"
	"sync"
)

// Memory is the in-process backend used for tests and single-node dev runs.
// It retains version history per key: Put appends a version, Get returns all
// versions oldest first.
type Memory[T any] struct {
	name    string
	indexes []string

	mu      sync.RWMutex
	entries map[string][]memEntry[T]
}

type memEntry[T any] struct {
	indexes []string
	doc     T
}

// NewMemory constructs a memory-backed store with the declared index fields.
func NewMemory[T any](name string, indexes []string) *Memory[T] {
	return &Memory[T]{
		name:    name,
		indexes: append([]string(nil), indexes...),
		entries: make(map[string][]memEntry[T]),
	}
}

// Close is a no-op for the in-memory backend.
func (s *Memory[T]) Close() error { return nil }

// Put appends a version of doc under key.
func (s *Memory[T]) Put(ctx context.Context, key Key, doc T) error {
	if err := validateKey(s.indexes, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := memEntry[T]{indexes: append([]string(nil), key.Indexes...), doc: doc}

	s.mu.Lock()
	k := encodeKey(s.name, key)
	s.entries[k] = append(s.entries[k], e)
	s.mu.Unlock()

	return nil
}

// Get returns all versions stored under the exact key, oldest first.
func (s *Memory[T]) Get(ctx context.Context, key Key) ([]T, error) {
	if err := validateKey(s.indexes, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	versions := s.entries[encodeKey(s.name, key)]
	out := make([]T, 0, len(versions))
	for _, e := range versions {
		out = append(out, e.doc)
	}
	s.mu.RUnlock()

	return out, nil
}

// List returns every document whose index values match the filter.
func (s *Memory[T]) List(ctx context.Context, filters map[string]string) ([]T, error) {
	if err := validateFilters(s.indexes, filters); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []T
	for _, versions := range s.entries {
		for _, e := range versions {
			if s.matches(e.indexes, filters) {
				out = append(out, e.doc)
			}
		}
	}
	return out, nil
}

func (s *Memory[T]) matches(values []string, filters map[string]string) bool {
	for i, field := range s.indexes {
		want, ok := filters[field]
		if !ok {
			continue
		}
		if values[i] != want {
			return false
		}
	}
	return true
}
