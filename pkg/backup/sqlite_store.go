package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backup_entries (
	namespace  TEXT NOT NULL,
	guid       TEXT NOT NULL,
	attribute  TEXT NOT NULL,
	path       TEXT NOT NULL DEFAULT '',
	original   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, guid, attribute)
);`

// SQLiteOption customises OpenSQLite.
type SQLiteOption func(*sqliteConfig)

type sqliteConfig struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) SQLiteOption { return func(c *sqliteConfig) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) SQLiteOption {
	return func(c *sqliteConfig) { c.synchronous = mode }
}

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() SQLiteOption { return func(c *sqliteConfig) { c.mkdirAll = true } }

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path, applies pragmas and creates the
// backup table. Use ":memory:" for a throwaway store.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	cfg := sqliteConfig{busyTimeout: 10_000, synchronous: "NORMAL"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("backup: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("backup: open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("backup: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("backup: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// PutIfAbsent implements Store.
func (s *SQLiteStore) PutIfAbsent(ctx context.Context, namespace string, entry Entry) (bool, error) {
	ref := refFor(namespace, entry)
	if err := ref.Validate(); err != nil {
		return false, err
	}
	original, err := json.Marshal(entry.Original)
	if err != nil {
		return false, fmt.Errorf("backup: encode %s/%s: %w", entry.GUID, entry.Attribute, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO backup_entries (namespace, guid, attribute, path, original, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, guid, attribute) DO NOTHING`,
		namespace, entry.GUID, entry.Attribute, entry.Path, string(original), entry.CreatedAt.UTC().UnixNano())
	if err != nil {
		return false, fmt.Errorf("backup: put %s/%s: %w", entry.GUID, entry.Attribute, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("backup: put %s/%s: %w", entry.GUID, entry.Attribute, err)
	}
	return n == 1, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, namespace, guid, attribute string) (Entry, bool, error) {
	if err := (Ref{Namespace: namespace, GUID: guid, Attribute: attribute}).Validate(); err != nil {
		return Entry{}, false, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT guid, attribute, path, original, created_at FROM backup_entries
		 WHERE namespace = ? AND guid = ? AND attribute = ?`,
		namespace, guid, attribute)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("backup: get %s/%s: %w", guid, attribute, err)
	}
	return entry, true, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, namespace string) ([]Entry, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT guid, attribute, path, original, created_at FROM backup_entries
		 WHERE namespace = ? ORDER BY guid, attribute`, namespace)
	if err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", namespace, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("backup: list %s: %w", namespace, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backup: list %s: %w", namespace, err)
	}
	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, namespace, guid, attribute string) error {
	if err := (Ref{Namespace: namespace, GUID: guid, Attribute: attribute}).Validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM backup_entries WHERE namespace = ? AND guid = ? AND attribute = ?`,
		namespace, guid, attribute); err != nil {
		return fmt.Errorf("backup: delete %s/%s: %w", guid, attribute, err)
	}
	return nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, namespace string) (int, error) {
	if err := validateNamespace(namespace); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, fmt.Errorf("backup: clear %s: %w", namespace, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backup: clear %s: %w", namespace, err)
	}
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry    Entry
		original string
		created  int64
	)
	if err := row.Scan(&entry.GUID, &entry.Attribute, &entry.Path, &original, &created); err != nil {
		return Entry{}, err
	}
	value, err := decodeOriginal([]byte(original))
	if err != nil {
		return Entry{}, err
	}
	entry.Original = value
	entry.CreatedAt = time.Unix(0, created).UTC()
	return entry, nil
}
