package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fieldsync/internal/freshness"
	"fieldsync/internal/logging"
)

// EventKind classifies a change notice.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventCleared EventKind = "cleared"
	// EventReload asks observers to re-read the queue after a processing pass.
	EventReload EventKind = "reload"
)

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind         EventKind
	SubmissionID string
	Status       Status
}

// Listener receives change notices. Listeners run synchronously on the
// mutating goroutine and must not block.
type Listener func(Event)

// Engine owns the lifecycle of queued submissions over a DurableStore.
type Engine struct {
	store  DurableStore
	guard  freshness.Guard
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]Listener
}

// NewEngine wires an engine around store.
func NewEngine(store DurableStore, guard freshness.Guard, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		guard:     guard,
		now:       time.Now,
		logger:    logging.NewComponentLogger(logger, "queue"),
		listeners: make(map[uint64]Listener),
	}
}

// SetClock overrides the engine clock. The freshness guard keeps its own.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Store exposes the underlying durable store.
func (e *Engine) Store() DurableStore { return e.store }

// Guard returns the freshness policy shared with the processors.
func (e *Engine) Guard() freshness.Guard { return e.guard }

// Now reads the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

func (e *Engine) stamp() time.Time {
	return time.UnixMilli(e.now().UnixMilli()).UTC()
}

// Add stamps a new pending submission and persists it.
func (e *Engine) Add(ctx context.Context, in NewSubmission) (Submission, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return Submission{}, errors.New("submission id is required")
	}
	rec := Submission{
		ID:         id,
		Payload:    in.Payload,
		Status:     StatusPending,
		CreatedAt:  e.stamp(),
		RetryCount: 0,
		IsAdmin:    in.IsAdmin,
	}
	if err := e.store.Add(ctx, rec); err != nil {
		return Submission{}, err
	}
	e.logger.Info("submission queued",
		logging.SubmissionID(rec.ID),
		logging.EventType("submission_queued"),
		logging.Bool("is_admin", rec.IsAdmin),
	)
	e.notify(Event{Kind: EventAdded, SubmissionID: rec.ID, Status: rec.Status})
	return rec, nil
}

// Get returns the submission or ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (Submission, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if rec == nil {
		return Submission{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *rec, nil
}

// List returns every stored submission in FIFO order.
func (e *Engine) List(ctx context.Context) ([]Submission, error) {
	records, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	sortFIFO(records)
	return records, nil
}

// Pending returns every record not completed, oldest first.
func (e *Engine) Pending(ctx context.Context) ([]Submission, error) {
	records, err := e.List(ctx)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, rec := range records {
		if rec.Status == StatusCompleted {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update merges patch into the stored record. It returns ErrNotFound when the
// record was removed, which callers treat as already resolved.
func (e *Engine) Update(ctx context.Context, id string, patch Patch) (Submission, error) {
	rec, err := e.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	patch.apply(&rec)
	if err := e.store.Replace(ctx, rec); err != nil {
		return Submission{}, err
	}
	e.notify(Event{Kind: EventUpdated, SubmissionID: rec.ID, Status: rec.Status})
	return rec, nil
}

// Remove deletes the record. Removing an absent id is not an error.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.notify(Event{Kind: EventRemoved, SubmissionID: id})
	return nil
}

// UpdateLocation stores a new reading. A fresh reading returns the record to
// pending with the error cleared; a reading that is itself stale is stored but
// the record stays parked and ErrStaleLocation is returned.
func (e *Engine) UpdateLocation(ctx context.Context, id string, loc Location) (Submission, error) {
	rec, err := e.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	patch := Patch{Location: &loc}
	fresh := e.guard.Fresh(rec.IsAdmin, loc.Timestamp)
	if fresh {
		patch.Status = Ptr(StatusPending)
		patch.ErrorMessage = Ptr("")
	} else {
		patch.Status = Ptr(StatusLocationStale)
		patch.ErrorMessage = Ptr(StaleLocationMessage)
	}
	updated, err := e.Update(ctx, id, patch)
	if err != nil {
		return Submission{}, err
	}
	if !fresh {
		return updated, ErrStaleLocation
	}
	return updated, nil
}

// IsLocationValid applies the freshness guard to rec.
func (e *Engine) IsLocationValid(rec Submission) bool {
	return e.guard.Fresh(rec.IsAdmin, rec.Payload.Location.Timestamp)
}

// Retry re-admits failed submissions with a reset retry counter. With no ids
// every failed record is retried. Records that are parked for a location
// refresh or currently sending are left alone.
func (e *Engine) Retry(ctx context.Context, ids ...string) (int, error) {
	var targets []Submission
	if len(ids) == 0 {
		records, err := e.List(ctx)
		if err != nil {
			return 0, err
		}
		for _, rec := range records {
			if rec.Status == StatusFailed {
				targets = append(targets, rec)
			}
		}
	} else {
		for _, id := range ids {
			rec, err := e.Get(ctx, id)
			if err != nil {
				return 0, err
			}
			targets = append(targets, rec)
		}
	}

	reset := 0
	for _, rec := range targets {
		if rec.Status != StatusFailed && rec.Status != StatusPending {
			continue
		}
		_, err := e.Update(ctx, rec.ID, Patch{
			Status:       Ptr(StatusPending),
			RetryCount:   Ptr(0),
			ErrorMessage: Ptr(""),
		})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// ReclaimSending returns records stuck in sending longer than lease to
// pending. A crashed sender leaves records in sending; reprocessing them is
// safe because the server dedups by id.
func (e *Engine) ReclaimSending(ctx context.Context, lease time.Duration) (int, error) {
	if lease <= 0 {
		return 0, nil
	}
	records, err := e.store.All(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := e.now().Add(-lease)
	reclaimed := 0
	for _, rec := range records {
		if rec.Status != StatusSending {
			continue
		}
		if rec.LastAttemptAt != nil && rec.LastAttemptAt.After(cutoff) {
			continue
		}
		_, err := e.Update(ctx, rec.ID, Patch{Status: Ptr(StatusPending)})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return reclaimed, err
		}
		reclaimed++
		e.logger.Warn("reclaimed expired sending lease",
			logging.SubmissionID(rec.ID),
			logging.EventType("sending_reclaimed"),
			logging.Duration("lease", lease),
		)
	}
	return reclaimed, nil
}

// ClearRequiresConfirmation reports whether clearing would discard a record
// that has been retried or is mid-send.
func (e *Engine) ClearRequiresConfirmation(ctx context.Context) (bool, error) {
	records, err := e.store.All(ctx)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.RetryCount > 0 || rec.Status == StatusSending {
			return true, nil
		}
	}
	return false, nil
}

// Clear removes every record and returns how many were deleted.
func (e *Engine) Clear(ctx context.Context) (int, error) {
	records, err := e.store.All(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			return 0, err
		}
	}
	e.logger.Info("queue cleared",
		logging.Int("removed", len(records)),
		logging.EventType("queue_cleared"),
	)
	e.notify(Event{Kind: EventCleared})
	return len(records), nil
}

type summarizer interface {
	Summarize(ctx context.Context) (Stats, error)
}

// Stats summarizes queue contents. Stores that aggregate natively are asked
// directly.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	if agg, ok := e.store.(summarizer); ok {
		stats, err := agg.Summarize(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.StorageKind = e.store.Kind()
		return stats, nil
	}
	records, err := e.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: make(map[Status]int), StorageKind: e.store.Kind()}
	for _, rec := range records {
		stats.Total++
		stats.ByStatus[rec.Status]++
		if rec.RetryCount > 0 {
			stats.Retried++
		}
	}
	if len(records) > 0 {
		oldest := records[0].CreatedAt
		stats.OldestAt = &oldest
	}
	return stats, nil
}

// Subscribe registers listener and returns a function that removes it.
func (e *Engine) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = listener
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Reload tells subscribers to re-read queue state.
func (e *Engine) Reload() {
	e.notify(Event{Kind: EventReload})
}

func (e *Engine) notify(evt Event) {
	e.mu.Lock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()
	for _, l := range listeners {
		l(evt)
	}
}
