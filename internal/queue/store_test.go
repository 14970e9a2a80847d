package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
)

func sample(id string, createdAt time.Time) queue.Submission {
	return queue.Submission{
		ID:        id,
		Payload:   testsupport.SamplePayload(testsupport.FreshTimestamp()),
		Status:    queue.StatusPending,
		CreatedAt: time.UnixMilli(createdAt.UnixMilli()).UTC(),
	}
}

// exerciseStore runs the DurableStore contract against any implementation.
func exerciseStore(t *testing.T, store queue.DurableStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Now()

	rec := sample("a", base)
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(ctx, rec); !errors.Is(err, queue.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v %v", got, err)
	}
	if got.Status != queue.StatusPending || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.Payload.Total.Equal(rec.Payload.Total) || len(got.Payload.Products) != 2 {
		t.Fatalf("payload did not round-trip: %+v", got.Payload)
	}

	missing, err := store.Get(ctx, "missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing id, got %v %v", missing, err)
	}

	attempt := time.UnixMilli(base.Add(time.Second).UnixMilli()).UTC()
	got.Status = queue.StatusFailed
	got.RetryCount = 5
	got.ErrorMessage = "boom"
	got.LastAttemptAt = &attempt
	if err := store.Replace(ctx, *got); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	again, _ := store.Get(ctx, "a")
	if again.Status != queue.StatusFailed || again.RetryCount != 5 || again.ErrorMessage != "boom" {
		t.Fatalf("replace not persisted: %+v", again)
	}
	if again.LastAttemptAt == nil || !again.LastAttemptAt.Equal(attempt) {
		t.Fatalf("last attempt not persisted: %v", again.LastAttemptAt)
	}

	ghost := sample("ghost", base)
	if err := store.Replace(ctx, ghost); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Replace of absent id should be ErrNotFound, got %v", err)
	}
	if rec, _ := store.Get(ctx, "ghost"); rec != nil {
		t.Fatal("Replace must not create records")
	}

	if err := store.Put(ctx, sample("b", base.Add(-time.Minute))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b" || all[1].ID != "a" {
		t.Fatalf("unexpected All order: %+v", all)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if rec, _ := store.Get(ctx, "a"); rec != nil {
		t.Fatal("expected record to be deleted")
	}
}

func TestSQLiteStoreContract(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exerciseStore(t, testsupport.MustOpenStore(t, cfg))
}

func TestLogStoreContract(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.OpenLog(cfg)
	if err != nil {
		t.Fatalf("OpenLog failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	exerciseStore(t, store)
}

func TestSQLiteStoreSharedAcrossHandles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenStore(t, cfg)
	second := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := first.Add(ctx, sample("shared", time.Now())); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	rec, err := second.Get(ctx, "shared")
	if err != nil || rec == nil {
		t.Fatalf("second handle should see the write: %v %v", rec, err)
	}
	if err := second.Delete(ctx, "shared"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if rec, _ := first.Get(ctx, "shared"); rec != nil {
		t.Fatal("first handle should see the delete")
	}
}

func TestLogStoreReplaysAndCompacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.jsonl")
	store, err := queue.OpenLogPath(path)
	if err != nil {
		t.Fatalf("OpenLogPath failed: %v", err)
	}
	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Add(ctx, sample(id, now)); err != nil {
			t.Fatalf("Add %s failed: %v", id, err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	store.Close()

	// Simulate a torn write at the end of the log.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	_, _ = f.WriteString(`{"op":"put","id":"partial","rec`)
	f.Close()

	reopened, err := queue.OpenLogPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	all, err := reopened.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "c" {
		t.Fatalf("unexpected replayed records: %+v", all)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("expected compacted log with 2 lines, got %d", lines)
	}
}

func TestOpenDurableFallsBackToLog(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFallback(config.FallbackAuto))
	// A directory where the database file should be makes SQLite unusable.
	if err := os.MkdirAll(cfg.QueueDBPath(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	store, err := queue.OpenDurable(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenDurable failed: %v", err)
	}
	defer store.Close()
	if store.Kind() != queue.StoreKindLog {
		t.Fatalf("expected log fallback, got %s", store.Kind())
	}

	cfg.Queue.Fallback = config.FallbackNever
	if _, err := queue.OpenDurable(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error when fallback is disabled")
	}
}

func TestOpenDurableSelectsStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.OpenDurable(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenDurable failed: %v", err)
	}
	if store.Kind() != queue.StoreKindSQLite {
		t.Fatalf("expected sqlite store, got %s", store.Kind())
	}
	store.Close()

	cfg.Queue.Fallback = config.FallbackAlways
	store, err = queue.OpenDurable(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenDurable failed: %v", err)
	}
	defer store.Close()
	if store.Kind() != queue.StoreKindLog {
		t.Fatalf("expected log store, got %s", store.Kind())
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Add(context.Background(), sample("h", time.Now())); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 || health.TotalItems != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected health details: %+v", health)
	}
	if health.JournalMode != "wal" {
		t.Fatalf("journal mode = %q, want wal", health.JournalMode)
	}

	older := sample("h0", time.Now().Add(-time.Hour))
	older.Status = queue.StatusFailed
	older.RetryCount = 2
	if err := store.Add(context.Background(), older); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	stats, err := store.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus[queue.StatusPending] != 1 || stats.ByStatus[queue.StatusFailed] != 1 || stats.Retried != 1 {
		t.Fatalf("unexpected summary: %+v", stats)
	}
	if stats.OldestAt == nil || !stats.OldestAt.Equal(older.CreatedAt) {
		t.Fatalf("oldest = %v, want %v", stats.OldestAt, older.CreatedAt)
	}
}

func TestOpenPathRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.db")
	store, err := queue.OpenPath(path, queue.WithBusyTimeout(time.Second), queue.WithBusyRetries(2))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenPathStampsEmptyVersionTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE schema_version (version INTEGER NOT NULL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	db.Close()

	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer store.Close()
	health, err := store.CheckHealth(context.Background())
	if err != nil || health.SchemaVersion != 1 || !health.TableExists {
		t.Fatalf("unexpected health: %+v err=%v", health, err)
	}
	if _, err := queue.OpenPath("  "); err == nil {
		t.Fatal("expected empty path to fail")
	}
}
