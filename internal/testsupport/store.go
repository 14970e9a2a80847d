package testsupport

import (
	"context"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/freshness"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
)

// MustOpenStore opens a SQLite queue store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEngine builds an engine over store with the config's freshness window.
func NewEngine(t testing.TB, cfg *config.Config, store queue.DurableStore) *queue.Engine {
	t.Helper()
	return queue.NewEngine(store, freshness.New(cfg.FreshnessWindow()), logging.NewNop())
}

// Enqueue adds a submission and fails the test on error.
func Enqueue(t testing.TB, engine *queue.Engine, id string, payload queue.Payload, isAdmin bool) queue.Submission {
	t.Helper()
	rec, err := engine.Add(context.Background(), queue.NewSubmission{ID: id, Payload: payload, IsAdmin: isAdmin})
	if err != nil {
		t.Fatalf("engine.Add(%s): %v", id, err)
	}
	return rec
}

// FreshTimestamp returns an epoch-ms reading taken just now.
func FreshTimestamp() *int64 {
	ts := time.Now().UnixMilli()
	return &ts
}

// AgedTimestamp returns an epoch-ms reading taken age ago.
func AgedTimestamp(age time.Duration) *int64 {
	ts := time.Now().Add(-age).UnixMilli()
	return &ts
}
