// Package services defines shared utilities consumed by the queue processors
// and the submit client.
//
// Key responsibilities:
//   - Context helpers that stamp submission IDs, processor lanes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell a
//     local storage failure apart from a rejected order or a flaky network.
package services
