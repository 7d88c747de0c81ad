// ABOUTME: SQLite implementation of the Medium interface
// ABOUTME: Key/value table with WAL mode, byte quota enforcement and a process lock

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQL driver names accepted by OpenSQLite.
const (
	DriverSQLite  = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3 = "sqlite3" // mattn/go-sqlite3, requires cgo
)

const (
	sqliteBusyCode          = 5
	sqliteFullCode          = 13
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteOptions configures a SQLite medium.
type SQLiteOptions struct {
	// Driver is DriverSQLite (default) or DriverSQLite3.
	Driver string
	// Path is the database file, or ":memory:".
	Path string
	// QuotaBytes caps the total size of stored keys and values. <= 0 is unlimited.
	QuotaBytes int64
	Logger     *slog.Logger
}

// SQLiteMedium stores each key as one row in a key/value table.
type SQLiteMedium struct {
	db     *sql.DB
	lock   *flock.Flock
	quota  int64
	logger *slog.Logger
}

// OpenSQLite opens (or creates) a SQLite medium at opts.Path.
// Parent directories are created if needed and an exclusive lock file
// next to the database keeps other processes out.
func OpenSQLite(opts SQLiteOptions) (*SQLiteMedium, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sqlite_medium")

	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	if opts.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	inMemory := opts.Path == ":memory:"

	var lock *flock.Flock
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		lock = flock.New(opts.Path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquiring store lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrLocked, opts.Path)
		}
	}

	db, err := sql.Open(driver, opts.Path)
	if err != nil {
		unlock(lock)
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			unlock(lock)
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		unlock(lock)
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite medium initialized", "path", opts.Path, "driver", driver, "quota_bytes", opts.QuotaBytes)

	return &SQLiteMedium{
		db:     db,
		lock:   lock,
		quota:  opts.QuotaBytes,
		logger: logger,
	}, nil
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

// Read returns the value stored for key.
func (m *SQLiteMedium) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key %s: %w", key, err)
	}
	return value, true, nil
}

// Write upserts all entries in a single transaction.
func (m *SQLiteMedium) Write(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	err := retryOnBusy(ctx, func() error {
		return m.writeTx(ctx, entries)
	})
	if isSQLiteFull(err) {
		return fmt.Errorf("sqlite medium: %w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (m *SQLiteMedium) writeTx(ctx context.Context, entries []Entry) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if m.quota > 0 {
		current, err := m.usageTx(ctx, tx)
		if err != nil {
			return err
		}
		if exceedsQuota(m.quota, current, entries) {
			return fmt.Errorf("sqlite medium: %w (limit %d bytes)", ErrQuotaExceeded, m.quota)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, e.Key, e.Value, now)
		if err != nil {
			return fmt.Errorf("writing key %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write tx: %w", err)
	}
	return nil
}

func (m *SQLiteMedium) usageTx(ctx context.Context, tx *sql.Tx) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT key, LENGTH(value) FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("measuring usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int64)
	for rows.Next() {
		var (
			key  string
			size int64
		)
		if err := rows.Scan(&key, &size); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		usage[key] = int64(len(key)) + size
	}
	return usage, rows.Err()
}

// Delete removes keys in one transaction.
func (m *SQLiteMedium) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return fmt.Errorf("deleting key %s: %w", k, err)
			}
		}
		return tx.Commit()
	})
}

// Close closes the database and releases the process lock.
func (m *SQLiteMedium) Close() error {
	err := m.db.Close()
	unlock(m.lock)
	return err
}

func sqliteCode(err error) (int, bool) {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code(), true
	}
	return 0, false
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok && code == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isSQLiteFull(err error) bool {
	if err == nil || errors.Is(err, ErrQuotaExceeded) {
		return false
	}
	if code, ok := sqliteCode(err); ok && code == sqliteFullCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_FULL") || strings.Contains(msg, "database or disk is full")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
