package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const submissionColumns = `id, payload, status, created_at, last_attempt_at, retry_count, error_message, is_admin`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(scanner rowScanner) (*Submission, error) {
	var (
		rec         Submission
		payload     string
		status      string
		createdAt   int64
		lastAttempt sql.NullInt64
		errorMsg    sql.NullString
		isAdmin     int
	)
	if err := scanner.Scan(&rec.ID, &payload, &status, &createdAt, &lastAttempt, &rec.RetryCount, &errorMsg, &isAdmin); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", rec.ID, err)
	}
	rec.Status = Status(status)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastAttempt.Valid {
		ts := time.UnixMilli(lastAttempt.Int64).UTC()
		rec.LastAttemptAt = &ts
	}
	rec.ErrorMessage = errorMsg.String
	rec.IsAdmin = isAdmin != 0
	return &rec, nil
}

func submissionArgs(rec Submission) ([]any, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var lastAttempt sql.NullInt64
	if rec.LastAttemptAt != nil {
		lastAttempt = sql.NullInt64{Int64: rec.LastAttemptAt.UnixMilli(), Valid: true}
	}
	var errorMsg sql.NullString
	if rec.ErrorMessage != "" {
		errorMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}
	isAdmin := 0
	if rec.IsAdmin {
		isAdmin = 1
	}
	return []any{
		rec.ID,
		string(payload),
		string(rec.Status),
		rec.CreatedAt.UnixMilli(),
		lastAttempt,
		rec.RetryCount,
		errorMsg,
		isAdmin,
	}, nil
}

// Add inserts a new submission.
func (s *SQLiteStore) Add(ctx context.Context, rec Submission) error {
	args, err := submissionArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Get fetches a submission by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Submission, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	rec, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return rec, nil
}

// Put upserts a submission.
func (s *SQLiteStore) Put(ctx context.Context, rec Submission) error {
	args, err := submissionArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             payload = excluded.payload,
             status = excluded.status,
             created_at = excluded.created_at,
             last_attempt_at = excluded.last_attempt_at,
             retry_count = excluded.retry_count,
             error_message = excluded.error_message,
             is_admin = excluded.is_admin`,
		args...,
	); err != nil {
		return fmt.Errorf("put submission: %w", err)
	}
	return nil
}

// Replace overwrites an existing submission without resurrecting a removed one.
func (s *SQLiteStore) Replace(ctx context.Context, rec Submission) error {
	args, err := submissionArgs(rec)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE submissions
         SET payload = ?, status = ?, created_at = ?, last_attempt_at = ?,
             retry_count = ?, error_message = ?, is_admin = ?
         WHERE id = ?`,
		args[1], args[2], args[3], args[4], args[5], args[6], args[7], args[0],
	)
	if err != nil {
		return fmt.Errorf("replace submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace submission: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	return nil
}

// Delete removes a submission; removing an absent id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM submissions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// All returns every stored submission ordered by creation time.
func (s *SQLiteStore) All(ctx context.Context) ([]Submission, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
