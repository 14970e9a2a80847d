package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldsync/internal/api"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
	"fieldsync/internal/workflow"
)

func newTestAPI(t *testing.T, token string) (*httptest.Server, *Daemon, *queue.Engine) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	engine := testsupport.NewEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	hub := notifications.NewHub(16)
	background := workflow.NewBackground(engine, testsupport.NewScriptedSubmitter(), hub, workflow.PolicyFrom(cfg), "", logging.NewNop())
	d, err := New(cfg, Deps{Engine: engine, Background: background, Hub: hub}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := &apiServer{daemon: d, logger: logging.NewNop()}
	ts := httptest.NewServer(srv.routes(token))
	t.Cleanup(ts.Close)
	return ts, d, engine
}

func getJSON(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAPIServerHandleQueue(t *testing.T) {
	ts, _, engine := newTestAPI(t, "")
	testsupport.Enqueue(t, engine, "o-1", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	testsupport.Enqueue(t, engine, "o-2", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)
	if _, err := engine.Update(context.Background(), "o-2", queue.Patch{Status: queue.Ptr(queue.StatusFailed)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var resp api.QueueListResponse
	if code := getJSON(t, ts.URL+"/api/queue", "", &resp); code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", code)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[0].Client != "Tienda La Esquina" {
		t.Fatalf("unexpected client: %q", resp.Items[0].Client)
	}

	resp = api.QueueListResponse{}
	if code := getJSON(t, ts.URL+"/api/queue?status=failed", "", &resp); code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", code)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "o-2" {
		t.Fatalf("status filter not applied: %+v", resp.Items)
	}

	if code := getJSON(t, ts.URL+"/api/queue?status=bogus", "", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", code)
	}
}

func TestAPIServerHandleQueueItem(t *testing.T) {
	ts, _, engine := newTestAPI(t, "")
	testsupport.Enqueue(t, engine, "o-1", testsupport.SamplePayload(testsupport.FreshTimestamp()), false)

	var resp api.QueueItemResponse
	if code := getJSON(t, ts.URL+"/api/queue/o-1", "", &resp); code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", code)
	}
	if resp.Item.ID != "o-1" || !resp.Item.LocationFresh || resp.Item.Total != "12.60" {
		t.Fatalf("unexpected item: %+v", resp.Item)
	}
	if code := getJSON(t, ts.URL+"/api/queue/missing", "", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestAPIServerMessages(t *testing.T) {
	ts, d, _ := newTestAPI(t, "")
	d.Hub().Post(notifications.SubmissionSucceeded("o-1", false))
	d.Hub().Post(notifications.SubmissionFailed("o-2", "boom"))

	var resp api.MessagesResponse
	if code := getJSON(t, ts.URL+"/api/messages?since=1", "", &resp); code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", code)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].SubmissionID != "o-2" || resp.Next != 2 {
		t.Fatalf("unexpected messages: %+v", resp)
	}

	resp = api.MessagesResponse{}
	if code := getJSON(t, ts.URL+"/api/messages?tail=1&limit=1", "", &resp); code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", code)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Error != "boom" {
		t.Fatalf("unexpected tail: %+v", resp)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	ts, _, _ := newTestAPI(t, "secret")

	if code := getJSON(t, ts.URL+"/api/status", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/status", "wrong", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", code)
	}
	var status api.DaemonStatus
	if code := getJSON(t, ts.URL+"/api/status", "secret", &status); code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}
	if status.Tag != "submission-queue" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if code := getJSON(t, ts.URL+"/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz should not require a token, got %d", code)
	}
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	_, d, _ := newTestAPI(t, "")
	if d.apiServer != nil || d.APIAddr() != "" {
		t.Fatal("expected api server to be disabled")
	}
}
