package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// SQLite is the single-file relational backend, for deployments that want
// durability without a database server. Same table shape and append-only
// semantics as the Postgres backend.
//
// The caller opens the *sql.DB with the modernc.org/sqlite driver and owns
// its lifecycle.
type SQLite[T any] struct {
	db      *sql.DB
	name    string
	indexes []string
	table   string
	idxCols []string
}

// NewSQLite constructs a SQLite-backed store and ensures its table exists.
func NewSQLite[T any](ctx context.Context, db *sql.DB, name string, indexes []string) (*SQLite[T], error) {
	if db == nil {
		return nil, fmt.Errorf("store: nil sqlite handle")
	}
	if err := validateIdents(name, indexes); err != nil {
		return nil, err
	}

	s := &SQLite[T]{
		db:      db,
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

func (s *SQLite[T]) ensureTable(ctx context.Context) error {
	var cols strings.Builder
	cols.WriteString("seq INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL")
	for _, c := range s.idxCols {
		fmt.Fprintf(&cols, ", %s TEXT NOT NULL", c)
	}
	cols.WriteString(", doc TEXT NOT NULL")

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.table, cols.String())); err != nil {
		return fmt.Errorf("store: ensure table %s: %w", s.table, err)
	}

	for _, c := range s.idxCols {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s ON %s (%s)", s.table, c, s.table, c)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure index %s.%s: %w", s.table, c, err)
		}
	}
	return nil
}

// Close is a no-op; the *sql.DB is owned by the app.
func (s *SQLite[T]) Close() error { return nil }

// Put appends a row for key.
func (s *SQLite[T]) Put(ctx context.Context, key Key, doc T) error {
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
	args = append(args, string(data))

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("store: insert into %s: %w", s.table, err)
	}
	return nil
}

// Get returns all rows stored under the exact key, oldest first.
func (s *SQLite[T]) Get(ctx context.Context, key Key) ([]T, error) {
	if err := validateKey(s.indexes, key); err != nil {
		return nil, err
	}

	where := []string{"id = ?"}
	args := []any{key.ID}
	for i, c := range s.idxCols {
		where = append(where, c+" = ?")
		args = append(args, key.Indexes[i])
	}

	stmt := fmt.Sprintf("SELECT doc FROM %s WHERE %s ORDER BY seq",
		s.table, strings.Join(where, " AND "))
	return s.query(ctx, stmt, args)
}

// List returns every row whose index columns match the filter.
func (s *SQLite[T]) List(ctx context.Context, filters map[string]string) ([]T, error) {
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
		where = append(where, s.idxCols[i]+" = ?")
		args = append(args, v)
	}

	stmt := fmt.Sprintf("SELECT doc FROM %s", s.table)
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY seq"
	return s.query(ctx, stmt, args)
}

func (s *SQLite[T]) query(ctx context.Context, stmt string, args []any) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", s.table, err)
		}
		var doc T
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("store: unmarshal doc from %s: %w", s.table, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows %s: %w", s.table, err)
	}
	return out, nil
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}
