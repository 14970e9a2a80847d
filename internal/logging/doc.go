// Package logging assembles structured slog loggers and formatting helpers used
// across fieldsync.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so processor code tags log lines
// with submission IDs, lanes, and correlation IDs without repeating itself.
// NewNop is available for tests and wiring code that cannot fail.
package logging
