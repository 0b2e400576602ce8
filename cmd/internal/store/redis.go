package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"podium/cmd/internal/fault"
)

// Redis is the key-value backend. Keys are laid out so that index values
// form the key prefix (see encodeKey); List is therefore a prefix scan and
// only supports filters that are a consecutive prefix of the declared index
// order, starting from the first index. Non-prefix filters fail with a
// validation error rather than scanning everything.
//
// SET overwrites, so unlike the relational backends this one keeps no
// version history per key.
type Redis[T any] struct {
	client  *redis.Client
	name    string
	indexes []string
}

// NewRedis constructs a Redis-backed store.
func NewRedis[T any](client *redis.Client, name string, indexes []string) (*Redis[T], error) {
	if client == nil {
		return nil, fmt.Errorf("store: nil redis client")
	}
	if err := validateIdents(name, indexes); err != nil {
		return nil, err
	}
	return &Redis[T]{
		client:  client,
		name:    name,
		indexes: append([]string(nil), indexes...),
	}, nil
}

// Close is a no-op; the client is owned by the app.
func (s *Redis[T]) Close() error { return nil }

// Put writes doc under key, replacing any previous value.
func (s *Redis[T]) Put(ctx context.Context, key Key, doc T) error {
	if err := validateKey(s.indexes, key); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal doc: %w", err)
	}

	if err := s.client.Set(ctx, encodeKey(s.name, key), data, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", s.name, err)
	}
	return nil
}

// Get returns the value stored under the exact key, or no documents.
func (s *Redis[T]) Get(ctx context.Context, key Key) ([]T, error) {
	if err := validateKey(s.indexes, key); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, encodeKey(s.name, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get %s: %w", s.name, err)
	}

	var doc T
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("store: unmarshal doc from %s: %w", s.name, err)
	}
	return []T{doc}, nil
}

// List scans keys under the filter's prefix and returns their values.
func (s *Redis[T]) List(ctx context.Context, filters map[string]string) ([]T, error) {
	if err := validateFilters(s.indexes, filters); err != nil {
		return nil, err
	}

	n := consecutivePrefixLen(s.indexes, filters)
	if n < 0 {
		return nil, fault.New(fault.Validation,
			"store: key-value backend only supports filters forming a consecutive prefix of the declared index order")
	}

	// Base64url components contain no glob metacharacters, so the prefix can
	// be used in MATCH verbatim.
	match := encodePrefix(s.name, s.indexes, filters, n) + "*"

	var out []T
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("store: redis get %s: %w", s.name, err)
		}

		var doc T
		if err := json.Unmarshal(val, &doc); err != nil {
			return nil, fmt.Errorf("store: unmarshal doc from %s: %w", s.name, err)
		}
		out = append(out, doc)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: redis scan %s: %w", s.name, err)
	}
	return out, nil
}
