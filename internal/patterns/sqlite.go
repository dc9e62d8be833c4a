package patterns

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/CommentGoat/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS patterns (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT    NOT NULL UNIQUE,
	url_pattern     TEXT    NOT NULL,
	extraction_data TEXT    NOT NULL,
	created_at      REAL    NOT NULL,
	last_used       REAL    NOT NULL,
	success_count   INTEGER NOT NULL DEFAULT 0,
	failure_count   INTEGER NOT NULL DEFAULT 0,
	success_rate    REAL    NOT NULL DEFAULT 0
);`

// SQLiteBackend stores patterns in a SQLite table. Insertion order is kept
// in the seq column.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("create pattern dir: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("open: %w", err)}
	}
	db.SetMaxOpenConns(1) // one writer at a time

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("migrate: %w", err)}
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Load reads every row ordered by insertion.
func (b *SQLiteBackend) Load() ([]Pattern, error) {
	rows, err := b.db.Query(`SELECT id, url_pattern, extraction_data, created_at, last_used,
		success_count, failure_count, success_rate FROM patterns ORDER BY seq`)
	if err != nil {
		return nil, &types.StorageError{Backend: b.Name(), Err: err}
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var (
			p   Pattern
			raw string
		)
		if err := rows.Scan(&p.ID, &p.URLPattern, &raw, &p.CreatedAt, &p.LastUsed,
			&p.SuccessCount, &p.FailureCount, &p.SuccessRate); err != nil {
			return nil, &types.StorageError{Backend: b.Name(), Err: err}
		}
		if err := json.Unmarshal([]byte(raw), &p.ExtractionData); err != nil {
			return nil, &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("decode extraction data for %s: %w", p.ID, err)}
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Backend: b.Name(), Err: err}
	}
	return patterns, nil
}

// Save rewrites the table inside one transaction.
func (b *SQLiteBackend) Save(patterns []Pattern) error {
	tx, err := b.db.Begin()
	if err != nil {
		return &types.StorageError{Backend: b.Name(), Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM patterns`); err != nil {
		return &types.StorageError{Backend: b.Name(), Err: err}
	}

	stmt, err := tx.Prepare(`INSERT INTO patterns (id, url_pattern, extraction_data, created_at,
		last_used, success_count, failure_count, success_rate) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &types.StorageError{Backend: b.Name(), Err: err}
	}
	defer stmt.Close()

	for _, p := range patterns {
		raw, err := json.Marshal(p.ExtractionData)
		if err != nil {
			return &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("encode extraction data for %s: %w", p.ID, err)}
		}
		if _, err := stmt.Exec(p.ID, p.URLPattern, string(raw), p.CreatedAt, p.LastUsed,
			p.SuccessCount, p.FailureCount, p.SuccessRate); err != nil {
			return &types.StorageError{Backend: b.Name(), Err: fmt.Errorf("insert %s: %w", p.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.StorageError{Backend: b.Name(), Err: err}
	}
	return nil
}

// OpenBackend builds the backend named by kind ("file" or "sqlite").
func OpenBackend(kind, path string) (Backend, error) {
	switch kind {
	case "", "file":
		return NewFileBackend(path), nil
	case "sqlite":
		return NewSQLiteBackend(path)
	default:
		return nil, fmt.Errorf("unsupported pattern backend: %s", kind)
	}
}
