package api

import (
	"time"

	"fieldsync/internal/freshness"
	"fieldsync/internal/queue"
)

// FromSubmission converts a queue record to its API representation.
func FromSubmission(rec queue.Submission, guard freshness.Guard) Submission {
	dto := Submission{
		ID:            rec.ID,
		Status:        string(rec.Status),
		Client:        rec.Payload.Client,
		Email:         rec.Payload.Email,
		Total:         rec.Payload.Total.StringFixed(2),
		Products:      len(rec.Payload.Products),
		Photos:        len(rec.Payload.PhotoIDs),
		PhotosReady:   rec.Payload.PhotosReady(),
		CreatedAt:     formatTime(rec.CreatedAt),
		RetryCount:    rec.RetryCount,
		ErrorMessage:  rec.ErrorMessage,
		IsAdmin:       rec.IsAdmin,
		LocationFresh: guard.Fresh(rec.IsAdmin, rec.Payload.Location.Timestamp),
	}
	if rec.LastAttemptAt != nil {
		dto.LastAttemptAt = formatTime(*rec.LastAttemptAt)
	}
	if age, ok := guard.Age(rec.Payload.Location.Timestamp); ok {
		seconds := int64(age / time.Second)
		dto.LocationAgeSeconds = &seconds
	}
	return dto
}

// FromSubmissions converts a slice of queue records into API DTOs.
func FromSubmissions(records []queue.Submission, guard freshness.Guard) []Submission {
	if len(records) == 0 {
		return nil
	}
	out := make([]Submission, 0, len(records))
	for _, rec := range records {
		out = append(out, FromSubmission(rec, guard))
	}
	return out
}

// FromStats converts queue stats, reporting zero for statuses with no records.
func FromStats(stats queue.Stats) QueueStats {
	dto := QueueStats{
		Total:   stats.Total,
		Counts:  make(map[string]int),
		Retried: stats.Retried,
		Storage: stats.StorageKind,
	}
	for _, status := range queue.AllStatuses() {
		if status == queue.StatusCompleted {
			continue
		}
		dto.Counts[string(status)] = stats.ByStatus[status]
	}
	if stats.OldestAt != nil {
		dto.OldestAt = formatTime(*stats.OldestAt)
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
