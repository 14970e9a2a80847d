package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
)

func TestMessageJSONShapes(t *testing.T) {
	cases := []struct {
		msg      notifications.Message
		present  []string
		excluded []string
	}{
		{notifications.LocationStale("s1"), []string{`"type":"LOCATION_STALE"`, `"submissionId":"s1"`}, []string{"duplicate", "error", "results"}},
		{notifications.SubmissionSucceeded("s2", false), []string{`"type":"SUBMISSION_SUCCESS"`, `"duplicate":false`}, []string{"error", "results"}},
		{notifications.SubmissionFailed("s3", "boom"), []string{`"type":"SUBMISSION_FAILED"`, `"error":"boom"`}, []string{"duplicate", "results", "retrying"}},
		{notifications.SubmissionRetrying("s4", "503"), []string{`"type":"SUBMISSION_FAILED"`, `"retrying":true`}, []string{"duplicate", "results"}},
		{notifications.QueueProcessed(notifications.Summary{Processed: 3, Succeeded: 1, Failed: 1, Stale: 1}),
			[]string{`"type":"QUEUE_PROCESSED"`, `"results":{"processed":3,"succeeded":1,"failed":1,"stale":1}`}, []string{"submissionId", "duplicate"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.msg.Type), func(t *testing.T) {
			data, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			text := string(data)
			for _, want := range tc.present {
				if !strings.Contains(text, want) {
					t.Fatalf("expected %s in %s", want, text)
				}
			}
			for _, unwanted := range tc.excluded {
				if strings.Contains(text, `"`+unwanted+`"`) {
					t.Fatalf("unexpected %s in %s", unwanted, text)
				}
			}
			var decoded notifications.Message
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded.Type != tc.msg.Type || decoded.SubmissionID != tc.msg.SubmissionID || decoded.Error != tc.msg.Error || decoded.Retrying != tc.msg.Retrying {
				t.Fatalf("decoded mismatch: %+v", decoded)
			}
		})
	}
}

func TestNtfyPushesOnlyActionableMessages(t *testing.T) {
	var mu sync.Mutex
	var titles []string
	var priorities []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		priorities = append(priorities, r.Header.Get("Priority"))
		mu.Unlock()
	}))
	defer srv.Close()

	svc := notifications.NewNtfy(srv.URL, srv.Client())
	ctx := context.Background()
	msgs := []notifications.Message{
		notifications.SubmissionSucceeded("ok", false),
		notifications.LocationStale("stale"),
		notifications.SubmissionRetrying("again", "503 Service Unavailable"),
		notifications.SubmissionFailed("bad", "rejected"),
		notifications.QueueProcessed(notifications.Summary{Processed: 1, Succeeded: 1}),
		notifications.QueueProcessed(notifications.Summary{Processed: 2, Failed: 1, Succeeded: 1}),
	}
	for _, msg := range msgs {
		if err := svc.Publish(ctx, msg); err != nil {
			t.Fatalf("Publish(%s) failed: %v", msg.Type, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(titles) != 3 {
		t.Fatalf("expected 3 pushes, got %v", titles)
	}
	if !strings.Contains(titles[1], "Order Failed") || priorities[1] != "high" {
		t.Fatalf("unexpected failure push: %q %q", titles[1], priorities[1])
	}
}

func TestNtfyReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	err := notifications.NewNtfy(srv.URL, srv.Client()).Publish(context.Background(), notifications.LocationStale("s"))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestRedisMirrorPublishesAndKeepsRecent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "orders")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	svc := notifications.NewRedis(client, "orders", 2)
	for _, id := range []string{"a", "b", "c"} {
		if err := svc.Publish(ctx, notifications.SubmissionSucceeded(id, false)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	received, err := sub.ReceiveMessage(recvCtx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var msg notifications.Message
	if err := json.Unmarshal([]byte(received.Payload), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != notifications.TypeSubmissionSuccess || msg.SubmissionID != "a" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	recent, err := mr.List(notifications.RecentKey("orders"))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || !strings.Contains(recent[0], `"submissionId":"c"`) {
		t.Fatalf("unexpected recent list: %v", recent)
	}
}

func TestServiceFansOutThroughHub(t *testing.T) {
	var pushes int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pushes++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.RedisAddr = mr.Addr()
	cfg.Notifications.RedisChannel = "fan"
	hub := notifications.NewHub(8)
	svc := notifications.NewService(&cfg, hub, logging.NewNop())

	err = svc.Publish(context.Background(), notifications.SubmissionFailed("x", "boom"))
	if err == nil {
		t.Fatal("expected ntfy failure to be reported")
	}
	msgs, _ := hub.Tail(0)
	if len(msgs) != 1 || msgs[0].Sequence != 1 {
		t.Fatalf("hub should receive the message regardless: %+v", msgs)
	}
	recent, _ := mr.List(notifications.RecentKey("fan"))
	if len(recent) != 1 || !strings.Contains(recent[0], `"seq":1`) {
		t.Fatalf("redis mirror should carry the hub sequence: %v", recent)
	}
	mu.Lock()
	defer mu.Unlock()
	if pushes != 1 {
		t.Fatalf("expected one ntfy push, got %d", pushes)
	}
}

func TestNoopService(t *testing.T) {
	if err := (notifications.Noop{}).Publish(context.Background(), notifications.LocationStale("x")); err != nil {
		t.Fatalf("noop returned %v", err)
	}
}
