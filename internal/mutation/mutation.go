package mutation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/submit"
)

const enqueueTimeout = 5 * time.Second

// Order is a new sales order as entered by the agent.
type Order struct {
	ID      string
	Payload queue.Payload
	IsAdmin bool
}

// Result describes where an order ended up.
type Result struct {
	ID        string
	Delivered bool
	Duplicate bool
	Queued    bool
	Record    *queue.Submission
	Attempts  int
	// LastError is the delivery failure that caused the order to be queued.
	LastError error
}

// Mutation delivers orders immediately when it can and queues them otherwise.
type Mutation struct {
	engine    *queue.Engine
	submitter submit.Submitter
	checker   connectivity.Checker
	immediate bool
	retries   int
	logger    *slog.Logger
	onQueued  func()
}

// New builds a mutation. A nil checker is treated as always online.
func New(cfg *config.Config, engine *queue.Engine, submitter submit.Submitter, checker connectivity.Checker, logger *slog.Logger) *Mutation {
	if checker == nil {
		checker = connectivity.Static(true)
	}
	m := &Mutation{
		engine:    engine,
		submitter: submitter,
		checker:   checker,
		immediate: true,
		retries:   1,
		logger:    logging.NewComponentLogger(logger, "mutation"),
	}
	if cfg != nil {
		m.immediate = cfg.Submit.Immediate
		m.retries = max(cfg.Submit.ImmediateRetries, 0)
	}
	return m
}

// OnQueued registers a callback invoked after an order is queued, typically
// to trigger a foreground pass.
func (m *Mutation) OnQueued(fn func()) {
	m.onQueued = fn
}

// Submit validates the order, tries the fast path and falls back to the queue.
// Permanent rejections on the fast path are returned and nothing is queued.
func (m *Mutation) Submit(ctx context.Context, order Order) (Result, error) {
	if err := Validate(order.Payload); err != nil {
		return Result{}, err
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		id = uuid.NewString()
	}
	result := Result{ID: id}
	ctx = services.WithSubmissionID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)

	if reason := m.fastPathBlocked(ctx, order); reason != "" {
		logger.Debug("fast path skipped", logging.String("reason", reason))
		return m.enqueue(ctx, order, result)
	}

	for attempt := 1; attempt <= m.retries+1; attempt++ {
		result.Attempts = attempt
		res, err := m.submitter.Submit(ctx, submit.Request{
			SubmissionID:  id,
			AttemptNumber: attempt,
			Payload:       order.Payload,
		})
		if err == nil {
			result.Delivered = true
			result.Duplicate = res.Duplicate
			outcome := metrics.OutcomeDelivered
			if res.Duplicate {
				outcome = metrics.OutcomeDuplicate
			}
			metrics.SubmitAttempts.WithLabelValues("immediate", outcome).Inc()
			logger.Info("order delivered",
				logging.EventType("order_delivered"),
				logging.Attempt(attempt),
				logging.Bool("duplicate", res.Duplicate),
			)
			return result, nil
		}
		result.LastError = err
		if ctx.Err() != nil {
			break
		}
		if submit.IsPermanent(err) {
			metrics.SubmitAttempts.WithLabelValues("immediate", metrics.OutcomeFailed).Inc()
			logging.WarnWithContext(logger, "order rejected by endpoint", "order_rejected",
				logging.Error(err),
				logging.ErrorHint("correct the order and submit again"),
				logging.Impact("order was not saved"),
			)
			return result, services.Wrap(services.ErrRejected, "submit", "deliver order", "", err)
		}
		logger.Info("immediate attempt failed",
			logging.EventType("order_attempt_failed"),
			logging.Attempt(attempt),
			logging.Error(err),
		)
	}
	return m.enqueue(ctx, order, result)
}

func (m *Mutation) fastPathBlocked(ctx context.Context, order Order) string {
	switch {
	case !m.immediate:
		return "immediate submit disabled"
	case !order.Payload.PhotosReady():
		return "photos still uploading"
	case !m.engine.Guard().Fresh(order.IsAdmin, order.Payload.Location.Timestamp):
		return "location stale"
	case !m.checker.Online(ctx):
		return "offline"
	}
	return ""
}

func (m *Mutation) enqueue(ctx context.Context, order Order, result Result) (Result, error) {
	// The order must be saved even when the caller has gone away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	rec, err := m.engine.Add(ctx, queue.NewSubmission{ID: result.ID, Payload: order.Payload, IsAdmin: order.IsAdmin})
	if errors.Is(err, queue.ErrDuplicateID) {
		existing, getErr := m.engine.Get(ctx, result.ID)
		if getErr != nil {
			return result, services.Wrap(services.ErrStorage, "submit", "queue order", "", getErr)
		}
		rec, err = existing, nil
	}
	if err != nil {
		return result, services.Wrap(services.ErrStorage, "submit", "queue order", "", err)
	}
	metrics.SubmitAttempts.WithLabelValues("immediate", metrics.OutcomeQueued).Inc()
	result.Queued = true
	result.Record = &rec
	if m.onQueued != nil {
		m.onQueued()
	}
	return result, nil
}
