package api

import "fieldsync/internal/notifications"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Submission describes a queued order in a transport-friendly format.
type Submission struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Client        string `json:"client"`
	Email         string `json:"email,omitempty"`
	Total         string `json:"total"`
	Products      int    `json:"products"`
	Photos        int    `json:"photos"`
	PhotosReady   bool   `json:"photosReady"`
	CreatedAt     string `json:"createdAt,omitempty"`
	LastAttemptAt string `json:"lastAttemptAt,omitempty"`
	RetryCount    int    `json:"retryCount"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	IsAdmin       bool   `json:"isAdmin"`
	// LocationAgeSeconds is omitted when the reading has no timestamp.
	LocationAgeSeconds *int64 `json:"locationAgeSeconds,omitempty"`
	LocationFresh      bool   `json:"locationFresh"`
}

// QueueStats summarizes queue contents.
type QueueStats struct {
	Total    int            `json:"total"`
	Counts   map[string]int `json:"counts"`
	Retried  int            `json:"retried"`
	OldestAt string         `json:"oldestAt,omitempty"`
	Storage  string         `json:"storage"`
}

// PassSummary reports the most recent background pass.
type PassSummary struct {
	notifications.Summary
	FinishedAt string `json:"finishedAt"`
	Error      string `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	Tag          string       `json:"tag"`
	Online       bool         `json:"online"`
	QueueDBPath  string       `json:"queueDbPath"`
	LockFilePath string       `json:"lockFilePath"`
	SocketPath   string       `json:"socketPath"`
	Queue        QueueStats   `json:"queue"`
	LastPass     *PassSummary `json:"lastPass,omitempty"`
	NextWakeAt   string       `json:"nextWakeAt,omitempty"`
}

// QueueListResponse wraps a collection of submissions.
type QueueListResponse struct {
	Items []Submission `json:"items"`
}

// QueueItemResponse wraps a single submission.
type QueueItemResponse struct {
	Item Submission `json:"item"`
}

// ClearResult reports the outcome of a clear request.
type ClearResult struct {
	Removed              int  `json:"removed"`
	RequiresConfirmation bool `json:"requiresConfirmation"`
}

// MessagesResponse carries daemon messages after a cursor.
type MessagesResponse struct {
	Messages []notifications.Message `json:"messages"`
	Next     uint64                  `json:"next"`
}
