// Package config loads, normalizes, and validates fieldsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FIELDSYNC_ENDPOINT. The Config type centralizes every knob the daemon and
// CLI need: where the queue database lives, how the submit endpoint is
// reached, and the retry and freshness policy both processors share.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
