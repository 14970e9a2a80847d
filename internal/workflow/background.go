package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/submit"
)

// ErrOffline is returned when a background pass is requested without connectivity.
var ErrOffline = errors.New("offline")

// Background drains the queue inside the daemon and reports every outcome as
// a message.
type Background struct {
	attempter
	publisher notifications.Service
	checker   connectivity.Checker
	sleep     Sleeper

	mu sync.Mutex
}

// NewBackground builds a background processor. tag labels its passes.
func NewBackground(engine *queue.Engine, submitter submit.Submitter, publisher notifications.Service, policy Policy, tag string, logger *slog.Logger) *Background {
	if publisher == nil {
		publisher = notifications.Noop{}
	}
	if tag == "" {
		tag = "submission-queue"
	}
	return &Background{
		attempter: attempter{
			engine:    engine,
			submitter: submitter,
			policy:    policy,
			lane:      tag,
			logger:    logging.NewComponentLogger(logger, "background"),
		},
		publisher: publisher,
		sleep:     SleepContext,
	}
}

// SetSleeper replaces the backoff sleeper.
func (b *Background) SetSleeper(sleep Sleeper) {
	if sleep != nil {
		b.sleep = sleep
	}
}

// SetChecker makes passes fail with ErrOffline while checker reports offline.
func (b *Background) SetChecker(checker connectivity.Checker) {
	b.checker = checker
}

// Tag returns the lane label.
func (b *Background) Tag() string { return b.lane }

// ProcessQueue runs one pass. Concurrent calls wait for the running pass and
// then run their own.
func (b *Background) ProcessQueue(ctx context.Context) (notifications.Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.checker != nil && !b.checker.Online(ctx) {
		return notifications.Summary{}, ErrOffline
	}

	ctx = services.WithLane(ctx, b.lane)
	logger := logging.WithContext(ctx, b.logger).With(logging.SyncTag(b.lane))
	started := time.Now()
	defer metrics.ObservePass(b.lane, started)

	var report PassReport
	b.reclaim(ctx)
	records, err := b.engine.Pending(ctx)
	if err != nil {
		return notifications.Summary{}, services.Wrap(services.ErrStorage, b.lane, "load pending", "read queue", err)
	}

	var passErr error
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		res, err := b.attempt(ctx, rec)
		if err != nil {
			passErr = err
			break
		}
		report.add(res)
		b.post(ctx, logger, res)
		if res.Outcome != OutcomeRetry {
			continue
		}
		if err := b.sleep(ctx, b.policy.Backoff(res.RetryCount)); err != nil {
			break
		}
	}

	summary := report.Summary()
	b.publish(context.WithoutCancel(ctx), logger, notifications.QueueProcessed(summary))

	logger.Info("background pass complete",
		logging.EventType("pass_complete"),
		logging.Int("processed", summary.Processed),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("stale", summary.Stale),
		logging.Duration("duration", time.Since(started)),
	)
	if passErr != nil {
		return summary, passErr
	}
	return summary, ctx.Err()
}

func (b *Background) post(ctx context.Context, logger *slog.Logger, res AttemptResult) {
	switch res.Outcome {
	case OutcomeStale:
		b.publish(ctx, logger, notifications.LocationStale(res.SubmissionID))
	case OutcomeDelivered:
		b.publish(ctx, logger, notifications.SubmissionSucceeded(res.SubmissionID, res.Duplicate))
	case OutcomeRetry:
		b.publish(ctx, logger, notifications.SubmissionRetrying(res.SubmissionID, errorText(res.Err)))
	case OutcomeFailed:
		b.publish(ctx, logger, notifications.SubmissionFailed(res.SubmissionID, errorText(res.Err)))
	}
}

func (b *Background) publish(ctx context.Context, logger *slog.Logger, msg notifications.Message) {
	msg.Tag = b.lane
	if err := b.publisher.Publish(ctx, msg); err != nil {
		logger.Debug("message publish failed",
			logging.String("message_type", string(msg.Type)),
			logging.Error(err),
		)
	}
}
