package ipc

import (
	"fieldsync/internal/api"
	"fieldsync/internal/notifications"
)

// Submission mirrors the HTTP API queue DTO for IPC callers.
type Submission = api.Submission

// QueueStats mirrors the HTTP API queue statistics.
type QueueStats = api.QueueStats

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon status information.
type StatusResponse = api.DaemonStatus

// ProcessQueueRequest asks the daemon to run a background pass now.
type ProcessQueueRequest struct{}

// ProcessQueueResponse carries the pass summary. Offline is set when the
// daemon refused to run because connectivity is down.
type ProcessQueueResponse struct {
	Results notifications.Summary `json:"results"`
	Offline bool                  `json:"offline"`
}

// SkipWaitingRequest cuts a running backoff sleep short.
type SkipWaitingRequest struct{}

// SkipWaitingResponse reports whether a sleep was interrupted. When false the
// daemon queued a pass instead.
type SkipWaitingResponse struct {
	Skipped bool `json:"skipped"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []Submission `json:"items"`
}

// QueueDescribeRequest fetches a single submission by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single submission.
type QueueDescribeResponse struct {
	Found bool       `json:"found"`
	Item  Submission `json:"item"`
}

// QueueStatsRequest fetches queue counters.
type QueueStatsRequest struct{}

// QueueStatsResponse reports queue counters.
type QueueStatsResponse struct {
	Stats QueueStats `json:"stats"`
}

// QueueRetryRequest returns failed submissions to pending. Empty list means
// all failed submissions.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports number of retried submissions.
type QueueRetryResponse struct {
	Updated int `json:"updated"`
}

// QueueRemoveRequest removes specific submissions by id.
type QueueRemoveRequest struct {
	IDs []string `json:"ids"`
}

// QueueRemoveResponse reports number of removed submissions.
type QueueRemoveResponse struct {
	Removed int `json:"removed"`
}

// QueueClearRequest removes every submission. Without Force the daemon
// refuses when retried or in-flight work would be lost.
type QueueClearRequest struct {
	Force bool `json:"force"`
}

// QueueClearResponse reports the outcome of a clear.
type QueueClearResponse = api.ClearResult

// UpdateLocationRequest attaches a new location reading to a submission.
type UpdateLocationRequest struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp *int64  `json:"timestamp"`
}

// UpdateLocationResponse returns the stored submission. Stale is set when
// the new reading is already outside the freshness window.
type UpdateLocationResponse struct {
	Item  Submission `json:"item"`
	Stale bool       `json:"stale"`
}

// MessagesRequest fetches daemon messages after a cursor.
type MessagesRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// MessagesResponse returns messages and the next cursor.
type MessagesResponse = api.MessagesResponse

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	JournalMode      string   `json:"journal_mode"`
	TotalItems       int      `json:"total_items"`
	Error            string   `json:"error"`
}
