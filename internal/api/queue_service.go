package api

import (
	"context"
	"errors"

	"fieldsync/internal/queue"
)

// ErrConfirmationRequired is returned by Clear when records would be lost that
// have already been retried or are mid-send.
var ErrConfirmationRequired = errors.New("queue contains retried or in-flight submissions; confirmation required")

// QueueService exposes queue operations returning API DTOs. The daemon and
// direct store access share it so both paths behave identically.
type QueueService struct {
	engine *queue.Engine
}

// NewQueueService constructs a QueueService around engine.
func NewQueueService(engine *queue.Engine) *QueueService {
	if engine == nil {
		return nil
	}
	return &QueueService{engine: engine}
}

// List returns submissions filtered by status, oldest first.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]Submission, error) {
	if s == nil {
		return nil, nil
	}
	records, err := s.engine.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(statuses) > 0 {
		allowed := make(map[queue.Status]struct{}, len(statuses))
		for _, status := range statuses {
			allowed[status] = struct{}{}
		}
		filtered := records[:0]
		for _, rec := range records {
			if _, ok := allowed[rec.Status]; ok {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	return FromSubmissions(records, s.engine.Guard()), nil
}

// Describe fetches a single submission; nil when absent.
func (s *QueueService) Describe(ctx context.Context, id string) (*Submission, error) {
	if s == nil {
		return nil, nil
	}
	rec, err := s.engine.Get(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dto := FromSubmission(rec, s.engine.Guard())
	return &dto, nil
}

// Stats returns queue summary counts.
func (s *QueueService) Stats(ctx context.Context) (QueueStats, error) {
	if s == nil {
		return QueueStats{Counts: map[string]int{}}, nil
	}
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return FromStats(stats), nil
}

// Retry re-admits failed records; no ids means every failed record.
func (s *QueueService) Retry(ctx context.Context, ids []string) (int, error) {
	return s.engine.Retry(ctx, ids...)
}

// Remove deletes the given records and returns how many existed.
func (s *QueueService) Remove(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		if _, err := s.engine.Get(ctx, id); errors.Is(err, queue.ErrNotFound) {
			continue
		} else if err != nil {
			return removed, err
		}
		if err := s.engine.Remove(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear removes every record. Without force it refuses when the queue holds
// retried or in-flight records.
func (s *QueueService) Clear(ctx context.Context, force bool) (ClearResult, error) {
	if !force {
		needs, err := s.engine.ClearRequiresConfirmation(ctx)
		if err != nil {
			return ClearResult{}, err
		}
		if needs {
			return ClearResult{RequiresConfirmation: true}, ErrConfirmationRequired
		}
	}
	removed, err := s.engine.Clear(ctx)
	if err != nil {
		return ClearResult{}, err
	}
	return ClearResult{Removed: removed}, nil
}

// UpdateLocation refreshes a record's location. With queue.ErrStaleLocation
// the stored record is still returned.
func (s *QueueService) UpdateLocation(ctx context.Context, id string, loc queue.Location) (Submission, error) {
	rec, err := s.engine.UpdateLocation(ctx, id, loc)
	if err != nil && !errors.Is(err, queue.ErrStaleLocation) {
		return Submission{}, err
	}
	return FromSubmission(rec, s.engine.Guard()), err
}
