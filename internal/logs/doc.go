// Package logs reads fieldsync diagnostics for the CLI.
//
// Tail follows the per-process log files under log_dir with bounded memory; a
// negative offset means "last N lines". MessageClient reads the daemon's
// message hub over its HTTP API for hosts that cannot reach the unix socket.
package logs
