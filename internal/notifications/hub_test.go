package notifications_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldsync/internal/notifications"
)

func TestHubFetchAfterSequence(t *testing.T) {
	hub := notifications.NewHub(10)
	for _, id := range []string{"a", "b", "c"} {
		hub.Post(notifications.LocationStale(id))
	}

	msgs, next, err := hub.Fetch(context.Background(), 1, 0, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].SubmissionID != "b" || next != 3 {
		t.Fatalf("unexpected fetch: %+v next=%d", msgs, next)
	}

	msgs, next, _ = hub.Fetch(context.Background(), 0, 1, false)
	if len(msgs) != 1 || next != 1 {
		t.Fatalf("limited fetch should resume from last returned sequence: %+v next=%d", msgs, next)
	}

	msgs, _, _ = hub.Fetch(context.Background(), 3, 0, false)
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after latest sequence, got %d", len(msgs))
	}
}

func TestHubFetchWaitsForMessage(t *testing.T) {
	hub := notifications.NewHub(10)
	done := make(chan []notifications.Message, 1)
	go func() {
		msgs, _, _ := hub.Fetch(context.Background(), 0, 0, true)
		done <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Post(notifications.SubmissionSucceeded("x", true))

	select {
	case msgs := <-done:
		if len(msgs) != 1 || !msgs[0].Duplicate || msgs[0].Sequence != 1 || msgs[0].Timestamp.IsZero() {
			t.Fatalf("unexpected messages: %+v", msgs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestHubFetchHonoursCancellation(t *testing.T) {
	hub := notifications.NewHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err := hub.Fetch(ctx, 0, 0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestHubEvictsOldest(t *testing.T) {
	hub := notifications.NewHub(2)
	for _, id := range []string{"a", "b", "c"} {
		hub.Post(notifications.LocationStale(id))
	}
	msgs, last := hub.Tail(0)
	if len(msgs) != 2 || msgs[0].SubmissionID != "b" || last != 3 {
		t.Fatalf("unexpected tail: %+v last=%d", msgs, last)
	}
	if hub.LastSequence() != 3 {
		t.Fatalf("LastSequence = %d", hub.LastSequence())
	}
}
