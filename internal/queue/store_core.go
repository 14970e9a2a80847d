package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fieldsync/internal/config"
)

// SQLiteStore persists submissions in a SQLite database that the CLI and the
// daemon open concurrently.
type SQLiteStore struct {
	db   *sql.DB
	path string

	busyTimeout time.Duration
	busyRetries int
	backoff     [2]time.Duration // initial, max
}

// SQLiteOption tunes a store at open time.
type SQLiteOption func(*SQLiteStore)

// WithBusyTimeout sets how long SQLite itself waits on a locked database
// before reporting SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithBusyRetries sets how many times a write is retried after SQLITE_BUSY.
func WithBusyRetries(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.busyRetries = n
		}
	}
}

const sqliteBusyCode = 5

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code()&0xff == sqliteBusyCode
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLITE_CONSTRAINT_PRIMARYKEY")
}

// retryOnBusy reruns op while the other process holds the write lock,
// doubling the pause up to the configured ceiling.
func (s *SQLiteStore) retryOnBusy(ctx context.Context, op func() error) error {
	pause := s.backoff[0]
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !isSQLiteBusy(err) || attempt >= s.busyRetries {
			return err
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		pause = min(pause*2, s.backoff[1])
	}
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := s.retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// Open initializes or connects to the queue database at cfg.QueueDBPath.
func Open(cfg *config.Config, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath(), opts...)
}

// OpenPath opens the queue database at an explicit location, creating the
// schema on first use.
func OpenPath(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, errors.New("open sqlite db: empty path")
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
	}

	store := &SQLiteStore{
		path:        dbPath,
		busyTimeout: 5 * time.Second,
		busyRetries: 5,
		backoff:     [2]time.Duration{10 * time.Millisecond, 200 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(store)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	store.db = db

	// WAL lets the CLI read while the daemon writes.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", store.busyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Kind identifies the store implementation.
func (s *SQLiteStore) Kind() string { return StoreKindSQLite }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
