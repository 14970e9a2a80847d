package daemonrun_test

import (
	"context"
	"testing"
	"time"

	"fieldsync/internal/daemonrun"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
)

func TestBuildWiresDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""

	rt, err := daemonrun.Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Daemon.Close()

	if kind := rt.Engine.Store().Kind(); kind != queue.StoreKindSQLite {
		t.Fatalf("store kind = %q, want sqlite", kind)
	}
	status := rt.Daemon.Status(context.Background())
	if status.Running || status.Tag != cfg.Sync.Tag || status.QueueDBPath != cfg.QueueDBPath() {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRunServesUntilCanceled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"}) }()

	var client *ipc.Client
	deadline := time.Now().Add(5 * time.Second)
	for client == nil && time.Now().Before(deadline) {
		if c, err := ipc.Dial(cfg.Paths.SocketPath); err == nil {
			client = c
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if client == nil {
		cancel()
		t.Fatal("daemon socket never came up")
	}
	defer client.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	status, err := client.Status(callCtx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatalf("expected running daemon, got %+v", status)
	}

	second := *cfg
	if err := daemonrun.Run(context.Background(), &second, daemonrun.Options{LogLevel: "error"}); err == nil {
		t.Fatal("expected second instance to fail on the lock")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
