package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape. There are no
// migrations: a mismatched database must be cleared.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different
// schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	version, found, err := s.readSchemaVersion(ctx)
	if err != nil {
		return err
	}
	switch {
	case !found:
		return s.createSchema(ctx)
	case version != schemaVersion:
		return fmt.Errorf("%w: %s has version %d, this build expects %d; clear the queue database to continue",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	default:
		return nil
	}
}

// readSchemaVersion reports found=false for a fresh database, including one
// whose schema_version table exists but was never populated.
func (s *SQLiteStore) readSchemaVersion(ctx context.Context) (int, bool, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("inspect sqlite_master: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

// createSchema applies schema.sql and stamps the version in one transaction
// so a crash never leaves tables without a version row.
func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		what string
		stmt string
		args []any
	}{
		{"create tables", schemaSQL, nil},
		{"clear version", "DELETE FROM schema_version", nil},
		{"stamp version", "INSERT INTO schema_version (version) VALUES (?)", []any{schemaVersion}},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.stmt, step.args...); err != nil {
			return fmt.Errorf("%s: %w", step.what, err)
		}
	}
	return tx.Commit()
}
