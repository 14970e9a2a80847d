// Package api defines wire-format types and converters shared by the IPC
// service, the daemon HTTP surface and direct store access. It translates
// queue records into transport-friendly DTOs so the CLI can render them
// without depending on queue internals.
//
// # Key Types
//
// Submission: a queued order with status, retry bookkeeping and the age of
// its location reading.
//
// QueueStats: counts by status plus the oldest record and storage backend.
//
// DaemonStatus: daemon runtime information and the last background pass.
//
// # Converters
//
// FromSubmission: queue.Submission -> Submission, evaluated against a
// freshness guard.
//
// FromStats: queue.Stats -> QueueStats with every status present.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Money values are rendered as fixed two-decimal strings.
package api
