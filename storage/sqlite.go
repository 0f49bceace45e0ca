package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteArea implements Area as a two-column SQLite table.
// WAL mode lets several processes read while one writes.
type SQLiteArea struct {
	db      *sql.DB
	table   string
	id      string
	timeout time.Duration
	closed  atomic.Bool
}

// SQLiteConfig holds SQLite area configuration.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// Table holds the area's rows.
	// Default: "kvmirror"
	Table string

	// QueryTimeout bounds every statement.
	// Default: 5s
	QueryTimeout time.Duration
}

// DefaultSQLiteConfig returns configuration with sensible defaults.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Table:        "kvmirror",
		QueryTimeout: 5 * time.Second,
	}
}

// OpenSQLite opens (creating if needed) a SQLite-backed area.
func OpenSQLite(path, table string) (*SQLiteArea, error) {
	cfg := DefaultSQLiteConfig()
	cfg.Path = path
	if table != "" {
		cfg.Table = table
	}
	return NewSQLiteArea(cfg)
}

// NewSQLiteArea opens a SQLite-backed area from configuration.
func NewSQLiteArea(cfg SQLiteConfig) (*SQLiteArea, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultSQLiteConfig().Table
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid sqlite table name %q", cfg.Table)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultSQLiteConfig().QueryTimeout
	}

	path, err := filepath.Abs(filepath.Clean(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	a := &SQLiteArea{
		db:      db,
		table:   cfg.Table,
		id:      "sqlite:" + path + "#" + cfg.Table,
		timeout: cfg.QueryTimeout,
	}

	ctx, cancel := a.ctx()
	defer cancel()
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (item_key TEXT PRIMARY KEY, item_value TEXT NOT NULL)`, a.table)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return a, nil
}

func (a *SQLiteArea) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

// ID returns the area identity.
func (a *SQLiteArea) ID() string {
	return a.id
}

// Get retrieves a value by key.
func (a *SQLiteArea) Get(key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	if a.closed.Load() {
		return "", false, ErrClosed
	}

	ctx, cancel := a.ctx()
	defer cancel()

	var value string
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT item_value FROM %s WHERE item_key = ?`, a.table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite get: %w", err)
	}
	return value, true, nil
}

// Set stores a value.
func (a *SQLiteArea) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := a.ctx()
	defer cancel()

	stmt := fmt.Sprintf(`INSERT INTO %s (item_key, item_value) VALUES (?, ?)
		ON CONFLICT(item_key) DO UPDATE SET item_value = excluded.item_value`, a.table)
	if _, err := a.db.ExecContext(ctx, stmt, key, value); err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Remove deletes a key.
func (a *SQLiteArea) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := a.ctx()
	defer cancel()

	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE item_key = ?`, a.table), key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Keys returns all keys matching a pattern, sorted.
func (a *SQLiteArea) Keys(pattern string) ([]string, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := a.ctx()
	defer cancel()

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`SELECT item_key FROM %s ORDER BY item_key`, a.table))
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite keys: %w", err)
		}
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	return keys, nil
}

// Close closes the database handle.
func (a *SQLiteArea) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}
