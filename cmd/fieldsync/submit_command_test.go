package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
)

func orderJSON(t *testing.T, payload queue.Payload) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	return bytes.NewReader(data)
}

func TestSubmitDeliversImmediately(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			if got := r.Header.Get("Idempotency-Key"); got != "order-9" {
				t.Errorf("Idempotency-Key = %q", got)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, configPath := newCLIConfig(t, testsupport.WithEndpoint(srv.URL))
	out, _, err := runCLIWithInput(t, orderJSON(t, testsupport.SamplePayload(testsupport.FreshTimestamp())),
		[]string{"submit", "--id", "order-9"}, missingSocket(t), configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Order order-9 delivered")
	if posts.Load() != 1 {
		t.Fatalf("expected one POST, got %d", posts.Load())
	}
}

func decodeSubmitOutput(t *testing.T, out string) submitOutput {
	t.Helper()
	var result submitOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	return result
}

func requirePending(t *testing.T, engine *queue.Engine, id string) {
	t.Helper()
	rec, err := engine.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected queued record: %v", err)
	}
	if rec.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", rec.Status)
	}
}

func TestSubmitQueuesWithoutAttemptWhenOffline(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	out, _, err := runCLIWithInput(t, orderJSON(t, testsupport.SamplePayload(testsupport.FreshTimestamp())),
		[]string{"submit", "--id", "offline-1", "--json"}, missingSocket(t), configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	result := decodeSubmitOutput(t, out)
	if !result.Queued || result.Delivered || result.DaemonPoked || result.Attempts != 0 || result.ErrorMessage != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	requirePending(t, testsupport.NewEngine(t, cfg, testsupport.MustOpenStore(t, cfg)), "offline-1")
}

func TestSubmitQueuesAfterRetryableFailures(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg, configPath := newCLIConfig(t, testsupport.WithEndpoint(srv.URL))
	out, _, err := runCLIWithInput(t, orderJSON(t, testsupport.SamplePayload(testsupport.FreshTimestamp())),
		[]string{"submit", "--id", "queued-1", "--json"}, missingSocket(t), configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	result := decodeSubmitOutput(t, out)
	if !result.Queued || result.Delivered || result.Attempts == 0 || result.ErrorMessage == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if int(posts.Load()) != result.Attempts {
		t.Fatalf("expected %d POSTs, got %d", result.Attempts, posts.Load())
	}
	requirePending(t, testsupport.NewEngine(t, cfg, testsupport.MustOpenStore(t, cfg)), "queued-1")
}

func TestSubmitQueuedOrderNotifiesDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLIWithInput(t, orderJSON(t, testsupport.SamplePayload(testsupport.FreshTimestamp())),
		[]string{"submit", "--id", "poke-1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "saved to the queue")
	requireContains(t, out, "fieldsyncd will deliver it")
}

func TestSubmitRejectsInvalidOrder(t *testing.T) {
	_, configPath := newCLIConfig(t)
	payload := testsupport.SamplePayload(testsupport.FreshTimestamp())
	payload.Client = ""
	_, _, err := runCLIWithInput(t, orderJSON(t, payload), []string{"submit"}, missingSocket(t), configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "order is invalid")
}

func TestSubmitRejectsMalformedJSON(t *testing.T) {
	_, configPath := newCLIConfig(t)
	_, _, err := runCLIWithInput(t, bytes.NewReader([]byte(`{"client": "x", "unknown": 1}`)), []string{"submit"}, missingSocket(t), configPath)
	if err == nil {
		t.Fatal("expected decode error")
	}
	requireContains(t, err.Error(), "decode order")
}
