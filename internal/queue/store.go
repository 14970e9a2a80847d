package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
)

// DurableStore is the record store shared by every execution context.
// Implementations must make each call a single atomic write and must not
// cache reads.
type DurableStore interface {
	// Add inserts a new record and fails with ErrDuplicateID when the id exists.
	Add(ctx context.Context, rec Submission) error
	// Get returns nil, nil when the id is absent.
	Get(ctx context.Context, id string) (*Submission, error)
	// Put upserts the record.
	Put(ctx context.Context, rec Submission) error
	// Replace overwrites an existing record and fails with ErrNotFound when it
	// was removed in the meantime.
	Replace(ctx context.Context, rec Submission) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]Submission, error)
	Kind() string
	Close() error
}

const (
	StoreKindSQLite = "sqlite"
	StoreKindLog    = "log"
)

// OpenDurable opens the store selected by queue.fallback. In auto mode a
// SQLite open failure degrades to the append-only log; a schema mismatch is
// never masked.
func OpenDurable(cfg *config.Config, logger *slog.Logger) (DurableStore, error) {
	if cfg == nil {
		return nil, errors.New("queue: config is nil")
	}
	logger = logging.NewComponentLogger(logger, "queue-store")

	switch cfg.Queue.Fallback {
	case config.FallbackAlways:
		return OpenLog(cfg)
	case config.FallbackNever:
		return Open(cfg)
	}

	store, err := Open(cfg)
	if err == nil {
		return store, nil
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return nil, err
	}
	logging.WarnWithContext(logger, "sqlite store unavailable; using append-only log", "store_fallback",
		logging.Error(err),
		logging.String("log_path", cfg.QueueLogPath()),
		logging.ErrorHint("check permissions on the state directory"),
		logging.Impact("daemon and CLI can no longer share the queue safely"),
	)
	logStore, logErr := OpenLog(cfg)
	if logErr != nil {
		return nil, fmt.Errorf("open fallback log: %w (sqlite: %v)", logErr, err)
	}
	return logStore, nil
}
