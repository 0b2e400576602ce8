// Package store is the indexed document store abstraction used by the
// session registry and the reaction ledger.
//
// A store is declared with an ordered set of index fields (possibly none).
// Keys either carry exactly one value per declared index, or are opaque
// strings when no indexes are declared. List filters only over declared
// indexes; backends that can only scan by key prefix additionally restrict
// filters to a consecutive prefix of the declared index order.
//
// Backends must be safe for concurrent independent key operations. No
// cross-key transactions are provided or assumed.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"podium/cmd/internal/fault"
)

// Key identifies a document. ID is the per-document identifier; Indexes are
// the index field values in declared order. For a store with zero declared
// indexes, Indexes must be empty.
type Key struct {
	ID      string
	Indexes []string
}

// StringKey builds an opaque-string key for a store with no declared indexes.
func StringKey(id string) Key {
	return Key{ID: id}
}

// Store is the backend contract.
//
// Put appends; whether an existing key is replaced or versioned is the
// backend's native behavior. Get returns every document stored under the
// exact key, oldest first. List returns every document whose index values
// match the (possibly partial) filter.
type Store[T any] interface {
	Put(ctx context.Context, key Key, doc T) error
	Get(ctx context.Context, key Key) ([]T, error)
	List(ctx context.Context, filters map[string]string) ([]T, error)
	Close() error
}

// validateKey checks key shape against the declared indexes.
func validateKey(indexes []string, key Key) error {
	if key.ID == "" {
		return fault.New(fault.Validation, "store: empty key id")
	}
	if len(key.Indexes) != len(indexes) {
		return fault.New(fault.Validation,
			fmt.Sprintf("store: key carries %d index values, store declares %d", len(key.Indexes), len(indexes)))
	}
	for i, v := range key.Indexes {
		if v == "" {
			return fault.New(fault.Validation, fmt.Sprintf("store: empty value for index %q", indexes[i]))
		}
	}
	return nil
}

// validateFilters enforces the index contract common to all backends:
// filtering is only valid on declared indexes.
func validateFilters(indexes []string, filters map[string]string) error {
	if len(filters) == 0 {
		return nil
	}
	if len(indexes) == 0 {
		return fault.New(fault.Validation, "store: filter on a store with no declared indexes")
	}
	for field := range filters {
		if !containsField(indexes, field) {
			return fault.New(fault.Validation, fmt.Sprintf("store: filter on undeclared index %q", field))
		}
	}
	return nil
}

func containsField(indexes []string, field string) bool {
	for _, f := range indexes {
		if f == field {
			return true
		}
	}
	return false
}

// consecutivePrefixLen returns how many leading declared indexes the filter
// covers, or -1 if the filter is not a consecutive prefix starting at the
// first index. Used by prefix-scan backends.
func consecutivePrefixLen(indexes []string, filters map[string]string) int {
	n := 0
	for _, f := range indexes {
		if _, ok := filters[f]; !ok {
			break
		}
		n++
	}
	if n != len(filters) {
		return -1
	}
	return n
}

// encodeKey renders a key as "name:enc(idx1):...:enc(idxN):enc(id)".
// Components are base64url-encoded so the ":" separator never collides and
// so equal index prefixes always produce equal encoded prefixes.
func encodeKey(name string, key Key) string {
	var b strings.Builder
	b.WriteString(name)
	for _, v := range key.Indexes {
		b.WriteByte(':')
		b.WriteString(encodeComponent(v))
	}
	b.WriteByte(':')
	b.WriteString(encodeComponent(key.ID))
	return b.String()
}

// encodePrefix renders the scan prefix covering the first n index values.
func encodePrefix(name string, indexes []string, filters map[string]string, n int) string {
	var b strings.Builder
	b.WriteString(name)
	for i := 0; i < n; i++ {
		b.WriteByte(':')
		b.WriteString(encodeComponent(filters[indexes[i]]))
	}
	b.WriteByte(':')
	return b.String()
}

func encodeComponent(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
