// Package daemon coordinates the long-running fieldsync process.
//
// It wires configuration, the queue engine, the background processor, and the
// message hub into a single lifecycle with flock-based locking to prevent
// multiple instances. Passes run at startup, on a periodic timer, when
// connectivity returns, and on request over IPC. Backoff sleeps inside a pass
// can be cut short with SkipWaiting.
//
// The daemon also serves a small HTTP surface for health checks, Prometheus
// metrics, queue inspection, and message long-polling.
//
// Keep orchestration logic here: delivery rules live in the workflow package
// while the daemon focuses on startup, shutdown, and triggers.
package daemon
