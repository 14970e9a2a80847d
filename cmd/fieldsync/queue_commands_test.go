package main

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
)

func TestQueueListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	testsupport.Enqueue(t, env.engine, "order-1", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	testsupport.Enqueue(t, env.engine, "order-2", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	if _, err := env.engine.Update(ctx, "order-2", queue.Patch{Status: queue.Ptr(queue.StatusFailed), ErrorMessage: queue.Ptr("HTTP 502")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "order-1")
	requireContains(t, out, "order-2")
	requireContains(t, out, "Tienda La Esquina")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var items []api.Submission
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].ID != "order-2" || items[0].ErrorMessage != "HTTP 502" {
		t.Fatalf("unexpected items: %+v", items)
	}

	out, _, err = runCLI(t, []string{"queue", "show", "order-1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "Submission order-1")
	requireContains(t, out, "12.60")

	if _, _, err := runCLI(t, []string{"queue", "show", "ghost"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for unknown submission")
	}
}

func TestQueueRetryRemoveAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	testsupport.Enqueue(t, env.engine, "a", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	testsupport.Enqueue(t, env.engine, "b", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	if _, err := env.engine.Update(ctx, "b", queue.Patch{Status: queue.Ptr(queue.StatusFailed), RetryCount: queue.Ptr(3)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "clear"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatalf("expected clear to require confirmation, got %q", out)
	}
	requireContains(t, err.Error(), "--yes")

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retrying 1 submissions")
	rec, err := env.engine.Get(ctx, "b")
	if err != nil || rec.Status != queue.StatusPending || rec.RetryCount != 0 {
		t.Fatalf("expected b reset to pending, got %+v err=%v", rec, err)
	}

	out, _, err = runCLI(t, []string{"queue", "remove", "a", "ghost"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed 1 submissions")

	out, _, err = runCLI(t, []string{"queue", "clear", "--yes"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 submissions")
}

func TestQueueRelocate(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.Enqueue(t, env.engine, "loc", testsupport.SamplePayload(testsupport.AgedTimestamp(time.Hour)), false)
	if _, err := env.engine.Update(context.Background(), "loc", queue.Patch{Status: queue.Ptr(queue.StatusLocationStale)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, _, err := runCLI(t, []string{"queue", "relocate", "loc"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected missing coordinates to fail")
	}

	old := time.Now().Add(-time.Hour).UnixMilli()
	out, _, err := runCLI(t, []string{"queue", "relocate", "loc", "--lat", "14.6", "--lng", "-90.5", "--timestamp", strconv.FormatInt(old, 10)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue relocate stale: %v", err)
	}
	requireContains(t, out, "still stale")

	out, _, err = runCLI(t, []string{"queue", "relocate", "loc", "--lat", "14.6", "--lng", "-90.5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue relocate: %v", err)
	}
	requireContains(t, out, "loc is pending")
}

func TestQueueCommandsFallBackToStore(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	engine := testsupport.NewEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	testsupport.Enqueue(t, engine, "offline-1", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)

	socket := missingSocket(t)
	out, _, err := runCLI(t, []string{"queue", "status"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")

	out, _, err = runCLI(t, []string{"queue", "health"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Queue Database (store)")
	requireContains(t, out, "wal")
}
