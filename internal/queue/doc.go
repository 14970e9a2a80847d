// Package queue persists order submissions awaiting delivery and owns their
// lifecycle.
//
// DurableStore is the only state shared between the foreground CLI and the
// daemon. SQLiteStore runs in WAL mode so both processes read each other's
// writes immediately; LogStore is a single-process append-only fallback used
// when SQLite cannot be opened. Every mutation is one statement against one
// record, so a race between processes can at worst lose one bookkeeping
// update and never corrupts other records.
//
// Engine layers the lifecycle on top: stamping new records, FIFO listing,
// partial updates, location refresh, manual retry, and an observer registry
// that fans out change notices.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
