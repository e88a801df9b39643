// Package recovery repopulates an identifier-keyed store from vectors held
// in an external SQLite database. Rows whose vector blob does not match the
// store dimension are skipped and counted rather than failing the run.
package recovery

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver, registered as "sqlite"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
)

// Category selects which table vectors are read from.
type Category string

const (
	// CategoryTags reads tag embeddings; filters are not supported.
	CategoryTags Category = "tags"
	// CategoryChunks reads chunk embeddings, optionally limited to one diary.
	CategoryChunks Category = "chunks"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

const (
	queryTags = `SELECT id, vector FROM tags WHERE vector IS NOT NULL ORDER BY id`

	queryChunks = `SELECT c.id, c.vector FROM chunks c
		WHERE c.vector IS NOT NULL ORDER BY c.id`

	queryChunksByDiary = `SELECT c.id, c.vector FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.diary_name = ? AND c.vector IS NOT NULL ORDER BY c.id`
)

// Row is one candidate vector: the row id becomes the store label.
type Row struct {
	ID     int64
	Vector []byte
}

// RowIterator streams rows in source order.
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Source yields vector rows for a category and optional filter.
// Unsupported combinations yield an empty iterator, not an error.
type Source interface {
	Rows(ctx context.Context, category Category, filter string) (RowIterator, error)
	Close() error
}

// SQLiteSource reads vectors from a SQLite database opened read-only.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens path read-only with the named driver ("sqlite" when
// empty) and pings it, so an unreachable database fails before any row is
// read.
func OpenSQLite(ctx context.Context, path, driver string) (*SQLiteSource, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, verrors.ConfigError(fmt.Sprintf("unknown recovery driver %q", driver), nil).
			WithSuggestion(fmt.Sprintf("use %q or %q", DriverModernc, DriverCGO))
	}

	if _, err := os.Stat(path); err != nil {
		return nil, verrors.SourceError("recovery database not found", err).WithDetail("path", path)
	}

	db, err := sql.Open(driver, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, verrors.SourceError("failed to open recovery database", err).WithDetail("path", path)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, verrors.SourceError("failed to connect to recovery database", err).
			WithDetail("path", path).
			WithDetail("driver", driver)
	}

	return &SQLiteSource{db: db}, nil
}

// Rows runs the query for category. Filters apply only to chunks.
func (s *SQLiteSource) Rows(ctx context.Context, category Category, filter string) (RowIterator, error) {
	var (
		query string
		args  []any
	)
	switch {
	case category == CategoryTags && filter == "":
		query = queryTags
	case category == CategoryChunks && filter == "":
		query = queryChunks
	case category == CategoryChunks:
		query = queryChunksByDiary
		args = append(args, filter)
	default:
		return emptyRows{}, nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeSourceQuery, "failed to query recovery rows", err).
			WithDetail("category", string(category))
	}
	return &sqlRows{rows: rows}, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

var _ Source = (*SQLiteSource)(nil)

type sqlRows struct {
	rows *sql.Rows
	cur  Row
	err  error
}

func (r *sqlRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	var row Row
	if err := r.rows.Scan(&row.ID, &row.Vector); err != nil {
		r.err = err
		return false
	}
	r.cur = row
	return true
}

func (r *sqlRows) Row() Row { return r.cur }

func (r *sqlRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *sqlRows) Close() error { return r.rows.Close() }

type emptyRows struct{}

func (emptyRows) Next() bool   { return false }
func (emptyRows) Row() Row     { return Row{} }
func (emptyRows) Err() error   { return nil }
func (emptyRows) Close() error { return nil }
