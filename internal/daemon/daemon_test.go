package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/daemon"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
	"fieldsync/internal/workflow"
)

type harness struct {
	daemon    *daemon.Daemon
	engine    *queue.Engine
	hub       *notifications.Hub
	submitter *testsupport.ScriptedSubmitter
}

func newHarness(t *testing.T, cfg *config.Config, checker connectivity.Checker, steps ...testsupport.Step) harness {
	t.Helper()
	engine := testsupport.NewEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	submitter := testsupport.NewScriptedSubmitter(steps...)
	hub := notifications.NewHub(32)
	background := workflow.NewBackground(engine, submitter, hub, workflow.PolicyFrom(cfg), cfg.Sync.Tag, logging.NewNop())

	d, err := daemon.New(cfg, daemon.Deps{
		Engine:     engine,
		Background: background,
		Hub:        hub,
		Checker:    checker,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return harness{daemon: d, engine: engine, hub: hub, submitter: submitter}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h := newHarness(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := h.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() || status.Tag != cfg.Sync.Tag {
		t.Fatalf("unexpected status: %+v", status)
	}

	// Second start should fail
	if err := h.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.daemon.Stop()
	status = h.daemon.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	first := newHarness(t, cfg, nil)
	second := newHarness(t, cfg, nil)

	ctx := context.Background()
	if err := first.daemon.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.daemon.Start(ctx); err == nil {
		t.Fatal("expected lock contention to fail the second daemon")
	}
	first.daemon.Stop()
	if err := second.daemon.Start(ctx); err != nil {
		t.Fatalf("Start after release failed: %v", err)
	}
}

func TestDaemonProcessQueueRecordsLastPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h := newHarness(t, cfg, nil)
	testsupport.Enqueue(t, h.engine, "o-1", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)

	summary, err := h.daemon.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if summary.Processed != 1 || summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	status := h.daemon.Status(context.Background())
	if status.LastPass == nil || status.LastPass.Succeeded != 1 || status.LastPass.FinishedAt == "" {
		t.Fatalf("last pass not recorded: %+v", status.LastPass)
	}
	if status.Queue.Total != 0 {
		t.Fatalf("expected empty queue, got %+v", status.Queue)
	}

	msgs, _ := h.hub.Tail(10)
	if len(msgs) != 2 || msgs[0].Type != notifications.TypeSubmissionSuccess || msgs[1].Type != notifications.TypeQueueProcessed {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[1].Tag != cfg.Sync.Tag {
		t.Fatalf("expected tag %q, got %q", cfg.Sync.Tag, msgs[1].Tag)
	}
}

func TestDaemonOfflineSkipsPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h := newHarness(t, cfg, connectivity.Static(false))
	testsupport.Enqueue(t, h.engine, "o-1", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)

	if _, err := h.daemon.ProcessQueue(context.Background()); !errors.Is(err, workflow.ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if len(h.submitter.Calls()) != 0 {
		t.Fatal("offline pass must not send")
	}
	status := h.daemon.Status(context.Background())
	if status.Online || status.LastPass == nil || status.LastPass.Error == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestDaemonSkipWaitingCutsBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	cfg.Queue.BackoffBaseSeconds = 30
	cfg.Queue.BackoffCapSeconds = 30
	h := newHarness(t, cfg, nil, testsupport.Fail(http.StatusBadGateway))
	testsupport.Enqueue(t, h.engine, "slow", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !h.daemon.SkipWaiting() {
		if time.Now().After(deadline) {
			t.Fatal("daemon never entered backoff")
		}
		time.Sleep(10 * time.Millisecond)
	}

	for h.daemon.Status(ctx).LastPass == nil {
		if time.Now().After(deadline) {
			t.Fatal("pass did not finish after skipping the backoff")
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, err := h.engine.Get(ctx, "slow")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RetryCount < 1 || rec.Status == queue.StatusFailed {
		t.Fatalf("unexpected record after retry: %+v", rec)
	}
}

func TestDaemonSkipWaitingWithoutSleepRequestsPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	cfg.Sync.PeriodicIntervalSeconds = 0
	h := newHarness(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForPass(t, h.daemon)

	testsupport.Enqueue(t, h.engine, "later", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	if h.daemon.SkipWaiting() {
		t.Fatal("no backoff was running")
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(h.submitter.Calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("requested pass never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForPass(t *testing.T, d *daemon.Daemon) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for d.Status(context.Background()).LastPass == nil {
		if time.Now().After(deadline) {
			t.Fatal("startup pass did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
