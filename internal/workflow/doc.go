// Package workflow drains the submission queue.
//
// Foreground runs inside the CLI: it guards against overlapping passes with
// an in-flight flag and skips passes while offline. Background runs inside the
// daemon: it serializes passes with a mutex and posts a message for every
// outcome plus a summary per pass. Both share one attempt routine, so the
// freshness rule, retry accounting and backoff are identical on either side.
//
// Neither processor excludes the other. When both pick up the same record the
// endpoint's dedup by submission id turns the second delivery into a
// duplicate, which counts as success.
package workflow
