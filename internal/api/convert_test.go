package api_test

import (
	"testing"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/freshness"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
)

func TestFromSubmission(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	guard := freshness.Guard{Window: 90 * time.Second, Now: func() time.Time { return now }}
	ts := now.Add(-30 * time.Second).UnixMilli()
	attempt := now.Add(-time.Minute)

	rec := queue.Submission{
		ID:            "order-1",
		Payload:       testsupport.SamplePayload(&ts),
		Status:        queue.StatusPending,
		CreatedAt:     now.Add(-2 * time.Minute),
		LastAttemptAt: &attempt,
		RetryCount:    2,
		ErrorMessage:  "server error",
	}
	rec.Payload.PhotoIDs = []string{"p1"}

	dto := api.FromSubmission(rec, guard)
	if dto.ID != "order-1" || dto.Status != "pending" || dto.Total != "12.60" || dto.Products != 2 {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.CreatedAt != "2026-10-17T11:58:00.000Z" || dto.LastAttemptAt != "2026-10-17T11:59:00.000Z" {
		t.Fatalf("unexpected timestamps: %q %q", dto.CreatedAt, dto.LastAttemptAt)
	}
	if dto.Photos != 1 || dto.PhotosReady {
		t.Fatalf("unexpected photo state: %+v", dto)
	}
	if dto.LocationAgeSeconds == nil || *dto.LocationAgeSeconds != 30 || !dto.LocationFresh {
		t.Fatalf("unexpected location state: %+v", dto)
	}

	rec.Payload.Location.Timestamp = nil
	dto = api.FromSubmission(rec, guard)
	if dto.LocationAgeSeconds != nil || dto.LocationFresh {
		t.Fatalf("missing timestamp should be stale without age: %+v", dto)
	}
	rec.IsAdmin = true
	if dto = api.FromSubmission(rec, guard); !dto.LocationFresh {
		t.Fatal("admin submissions are always fresh")
	}
}

func TestFromStatsFillsStatuses(t *testing.T) {
	oldest := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	dto := api.FromStats(queue.Stats{
		Total:       3,
		ByStatus:    map[queue.Status]int{queue.StatusPending: 2, queue.StatusFailed: 1},
		Retried:     1,
		OldestAt:    &oldest,
		StorageKind: queue.StoreKindSQLite,
	})
	want := map[string]int{"pending": 2, "sending": 0, "locationStale": 0, "failed": 1}
	if len(dto.Counts) != len(want) {
		t.Fatalf("unexpected counts: %v", dto.Counts)
	}
	for status, count := range want {
		if dto.Counts[status] != count {
			t.Fatalf("count[%s] = %d, want %d", status, dto.Counts[status], count)
		}
	}
	if dto.OldestAt != "2026-10-17T08:00:00.000Z" || dto.Storage != queue.StoreKindSQLite {
		t.Fatalf("unexpected stats: %+v", dto)
	}
}
