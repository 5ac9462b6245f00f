package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage persists cache buckets in a SQLite database so cached
// responses survive gateway restarts, the way the platform cache store
// survives page reloads.
type SQLiteStorage struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	bucket    TEXT NOT NULL,
	key       TEXT NOT NULL,
	status    INTEGER NOT NULL,
	headers   TEXT NOT NULL,
	body      BLOB NOT NULL,
	stored_at TIMESTAMP NOT NULL,
	PRIMARY KEY (bucket, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_bucket ON cache_entries (bucket);
`

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Open(_ context.Context, name string) (Bucket, error) {
	return &sqliteBucket{db: s.db, name: name}, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE bucket = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete bucket %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete bucket %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT bucket FROM cache_entries ORDER BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan bucket name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type sqliteBucket struct {
	db   *sql.DB
	name string
}

func (b *sqliteBucket) Match(ctx context.Context, key string) (*Entry, bool, error) {
	var (
		e       Entry
		headers string
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT status, headers, body, stored_at FROM cache_entries WHERE bucket = ? AND key = ?`,
		b.name, key,
	).Scan(&e.Status, &headers, &e.Body, &e.StoredAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match %s: %w", key, err)
	}

	e.Header = make(http.Header)
	if err := json.Unmarshal([]byte(headers), &e.Header); err != nil {
		return nil, false, fmt.Errorf("decode headers for %s: %w", key, err)
	}
	return &e, true, nil
}

func (b *sqliteBucket) Put(ctx context.Context, key string, e *Entry) error {
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode headers for %s: %w", key, err)
	}

	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	// Upsert: a newer response for the same request replaces the old one.
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (bucket, key, status, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		b.name, key, e.Status, string(headers), e.Body, storedAt)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
