package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// identPattern restricts store and index names to safe SQL identifiers.
// Names come from our own wiring code, never from requests.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Postgres is the relational backend. One table per store:
//
//	podium_<name> (seq bigserial, id text, idx_<field> text ..., doc jsonb)
//
// Rows are append-only; Get and List return rows ordered by seq, so the last
// element is the most recent write for a key.
type Postgres[T any] struct {
	pool    *pgxpool.Pool
	name    string
	indexes []string
	table   string
	idxCols []string
}

// NewPostgres constructs a Postgres-backed store and ensures its table exists.
func NewPostgres[T any](ctx context.Context, pool *pgxpool.Pool, name string, indexes []string) (*Postgres[T], error) {
	if pool == nil {
		return nil, fmt.Errorf("store: nil pgx pool")
	}
	if err := validateIdents(name, indexes); err != nil {
		return nil, err
	}

	s := &Postgres[T]{
		pool:    pool,
		name:    name,
		indexes: append([]string(nil), indexes...),
		table:   "podium_" + name,
	}
	for _, f := range s.indexes {
		s.idxCols = append(s.idxCols, "idx_"+f)
	}

	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func validateIdents(name string, indexes []string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("store: invalid store name %q", name)
	}
	for _, f := range indexes {
		if !identPattern.MatchString(f) {
			return fmt.Errorf("store: invalid index field %q", f)
		}
	}
	return nil
}

func (s *Postgres[T]) ensureTable(ctx context.Context) error {
	var cols strings.Builder
	cols.WriteString("seq bigserial PRIMARY KEY, id text NOT NULL")
	for _, c := range s.idxCols {
		fmt.Fprintf(&cols, ", %s text NOT NULL", c)
	}
	cols.WriteString(", doc jsonb NOT NULL")

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.table, cols.String())); err != nil {
		return fmt.Errorf("store: ensure table %s: %w", s.table, err)
	}

	// One btree per index column keeps List from scanning.
	for _, c := range s.idxCols {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s ON %s (%s)", s.table, c, s.table, c)
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure index %s.%s: %w", s.table, c, err)
		}
	}
	return nil
}

// Close is a no-op; the pool is owned by the app.
func (s *Postgres[T]) Close() error { return nil }

// Put appends a row for key.
func (s *Postgres[T]) Put(ctx context.Context, key Key, doc T) error {
	if err := validateKey(s.indexes, key); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal doc: %w", err)
	}

	cols := []string{"id"}
	cols = append(cols, s.idxCols...)
	cols = append(cols, "doc")

	args := make([]any, 0, len(cols))
	args = append(args, key.ID)
	for _, v := range key.Indexes {
		args = append(args, v)
	}
	args = append(args, data)

	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(cols, ", "), strings.Join(ph, ", "))
	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("store: insert into %s: %w", s.table, err)
	}
	return nil
}

// Get returns all rows stored under the exact key, oldest first.
func (s *Postgres[T]) Get(ctx context.Context, key Key) ([]T, error) {
	if err := validateKey(s.indexes, key); err != nil {
		return nil, err
	}

	where := []string{"id = $1"}
	args := []any{key.ID}
	for i, c := range s.idxCols {
		where = append(where, fmt.Sprintf("%s = $%d", c, i+2))
		args = append(args, key.Indexes[i])
	}

	stmt := fmt.Sprintf("SELECT doc FROM %s WHERE %s ORDER BY seq",
		s.table, strings.Join(where, " AND "))
	return s.query(ctx, stmt, args)
}

// List returns every row whose index columns match the filter.
func (s *Postgres[T]) List(ctx context.Context, filters map[string]string) ([]T, error) {
	if err := validateFilters(s.indexes, filters); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	for i, f := range s.indexes {
		v, ok := filters[f]
		if !ok {
			continue
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", s.idxCols[i], len(args)))
	}

	stmt := fmt.Sprintf("SELECT doc FROM %s", s.table)
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY seq"
	return s.query(ctx, stmt, args)
}

func (s *Postgres[T]) query(ctx context.Context, stmt string, args []any) ([]T, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", s.table, err)
		}
		var doc T
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("store: unmarshal doc from %s: %w", s.table, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows %s: %w", s.table, err)
	}
	return out, nil
}
