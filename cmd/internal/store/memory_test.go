package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"podium/cmd/internal/fault"
)

type doc struct {
	Val string `json:"val"`
}

func TestMemory_GetRetainsHistory(t *testing.T) {
	t.Parallel()

	s := NewMemory[doc]("sessions", nil)
	ctx := context.Background()

	if err := s.Put(ctx, StringKey("k"), doc{Val: "v1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, StringKey("k"), doc{Val: "v2"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, StringKey("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Val != "v1" || got[1].Val != "v2" {
		t.Fatalf("versions = %+v, want [v1 v2] oldest first", got)
	}

	got, err = s.Get(ctx, StringKey("absent"))
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("absent key returned %d docs", len(got))
	}
}

func TestMemory_ListByIndexes(t *testing.T) {
	t.Parallel()

	s := NewMemory[doc]("reactions", []string{"session", "page", "uid"})
	ctx := context.Background()

	put := func(id, session, page, uid, val string) {
		t.Helper()
		if err := s.Put(ctx, Key{ID: id, Indexes: []string{session, page, uid}}, doc{Val: val}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	put("r1", "s1", "0.0", "u1", "thumbsup")
	put("r2", "s1", "0.0", "u1", "thumbsup")
	put("r3", "s1", "1.0", "u1", "heart")
	put("r4", "s2", "0.0", "u2", "thumbsup")

	cases := []struct {
		name    string
		filters map[string]string
		want    int
	}{
		{name: "full triple", filters: map[string]string{"session": "s1", "page": "0.0", "uid": "u1"}, want: 2},
		{name: "session only", filters: map[string]string{"session": "s1"}, want: 3},
		{name: "non-prefix field", filters: map[string]string{"uid": "u1"}, want: 3},
		{name: "no match", filters: map[string]string{"session": "s3"}, want: 0},
		{name: "everything", filters: nil, want: 4},
	}

	for _, tc := range cases {
		got, err := s.List(ctx, tc.filters)
		if err != nil {
			t.Fatalf("%s: list: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Fatalf("%s: got %d docs, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestMemory_FilterContract(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Zero declared indexes: any non-empty filter must fail.
	flat := NewMemory[doc]("sessions", nil)
	if _, err := flat.List(ctx, map[string]string{"uid": "u1"}); fault.KindOf(err) != fault.Validation {
		t.Fatalf("zero-index filter: got %v, want validation fault", err)
	}

	// Undeclared field must fail even when indexes exist.
	idx := NewMemory[doc]("reactions", []string{"session"})
	if _, err := idx.List(ctx, map[string]string{"nope": "x"}); fault.KindOf(err) != fault.Validation {
		t.Fatalf("undeclared field: got %v, want validation fault", err)
	}
}

func TestMemory_KeyShape(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory[doc]("hosts", []string{"token"})

	cases := []struct {
		name string
		key  Key
	}{
		{name: "missing index value", key: StringKey("uid")},
		{name: "too many index values", key: Key{ID: "uid", Indexes: []string{"a", "b"}}},
		{name: "empty id", key: Key{Indexes: []string{"tok"}}},
		{name: "empty index value", key: Key{ID: "uid", Indexes: []string{""}}},
	}

	for _, tc := range cases {
		if err := s.Put(ctx, tc.key, doc{}); fault.KindOf(err) != fault.Validation {
			t.Fatalf("%s: got %v, want validation fault", tc.name, err)
		}
	}
}

func TestMemory_KeyComponentsDoNotCollide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory[doc]("hosts", []string{"token"})

	// "a:b"+"c" and "a"+"b:c" must be distinct keys.
	if err := s.Put(ctx, Key{ID: "c", Indexes: []string{"a:b"}}, doc{Val: "one"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, Key{ID: "b:c", Indexes: []string{"a"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("colliding composite keys: got %+v", got)
	}
}

func TestMemory_ConcurrentIndependentKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory[doc]("sessions", nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := StringKey(fmt.Sprintf("k%d", i))
			for j := 0; j < 50; j++ {
				if err := s.Put(ctx, key, doc{Val: fmt.Sprintf("v%d", j)}); err != nil {
					t.Errorf("put: %v", err)
					return
				}
				if _, err := s.Get(ctx, key); err != nil {
					t.Errorf("get: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		got, err := s.Get(ctx, StringKey(fmt.Sprintf("k%d", i)))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got) != 50 {
			t.Fatalf("key k%d has %d versions, want 50", i, len(got))
		}
	}
}
