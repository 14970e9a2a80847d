package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/submit"
)

// LaneForeground labels passes driven by the CLI.
const LaneForeground = "foreground"

// Foreground drains the queue from an interactive process.
type Foreground struct {
	attempter
	checker      connectivity.Checker
	sleep        Sleeper
	pollInterval time.Duration

	inFlight atomic.Bool
	trigger  chan struct{}

	feedbackMu sync.RWMutex
	feedback   func(notifications.Message)
}

// NewForeground builds a foreground processor. A nil checker is treated as
// always online.
func NewForeground(engine *queue.Engine, submitter submit.Submitter, checker connectivity.Checker, policy Policy, logger *slog.Logger) *Foreground {
	if checker == nil {
		checker = connectivity.Static(true)
	}
	return &Foreground{
		attempter: attempter{
			engine:    engine,
			submitter: submitter,
			policy:    policy,
			lane:      LaneForeground,
			logger:    logging.NewComponentLogger(logger, "foreground"),
		},
		checker:      checker,
		sleep:        SleepContext,
		pollInterval: 30 * time.Second,
		trigger:      make(chan struct{}, 1),
	}
}

// SetSleeper replaces the backoff sleeper.
func (f *Foreground) SetSleeper(sleep Sleeper) {
	if sleep != nil {
		f.sleep = sleep
	}
}

// SetPollInterval sets the Run loop period. Non-positive values disable polling.
func (f *Foreground) SetPollInterval(d time.Duration) {
	f.pollInterval = d
}

// OnFeedback registers a callback for per-record user feedback.
func (f *Foreground) OnFeedback(fn func(notifications.Message)) {
	f.feedbackMu.Lock()
	f.feedback = fn
	f.feedbackMu.Unlock()
}

// Trigger requests a pass from Run. Requests coalesce while one is pending.
func (f *Foreground) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

// InFlight reports whether a pass is running.
func (f *Foreground) InFlight() bool {
	return f.inFlight.Load()
}

// ProcessQueue runs one pass. It is a no-op returning a report with Ran=false
// when another pass is in flight or the device is offline.
func (f *Foreground) ProcessQueue(ctx context.Context) (PassReport, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.logger.Debug("foreground pass already in flight")
		return PassReport{}, nil
	}
	defer f.inFlight.Store(false)

	if !f.checker.Online(ctx) {
		f.logger.Debug("offline; foreground pass skipped")
		return PassReport{}, nil
	}
	defer f.engine.Reload()

	ctx = services.WithLane(ctx, f.lane)
	started := time.Now()
	defer metrics.ObservePass(f.lane, started)

	report := PassReport{Ran: true}
	f.reclaim(ctx)
	records, err := f.engine.Pending(ctx)
	if err != nil {
		return report, services.Wrap(services.ErrStorage, f.lane, "load pending", "read queue", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		res, err := f.attempt(ctx, rec)
		if err != nil {
			return report, err
		}
		report.add(res)
		f.emit(res)
		if res.Outcome != OutcomeRetry {
			continue
		}
		if err := f.sleep(ctx, f.policy.Backoff(res.RetryCount)); err != nil {
			break
		}
	}

	f.logger.Info("foreground pass complete",
		logging.EventType("pass_complete"),
		logging.Int("processed", report.Processed),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("stale", report.Stale),
		logging.Duration("duration", time.Since(started)),
	)
	return report, ctx.Err()
}

func (f *Foreground) emit(res AttemptResult) {
	f.feedbackMu.RLock()
	fn := f.feedback
	f.feedbackMu.RUnlock()
	if fn == nil {
		return
	}
	switch res.Outcome {
	case OutcomeStale:
		fn(notifications.LocationStale(res.SubmissionID))
	case OutcomeDelivered:
		fn(notifications.SubmissionSucceeded(res.SubmissionID, res.Duplicate))
	case OutcomeFailed:
		fn(notifications.SubmissionFailed(res.SubmissionID, errorText(res.Err)))
	}
}

// Run processes the queue on every trigger and poll tick until ctx ends.
func (f *Foreground) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if f.pollInterval > 0 {
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.trigger:
		case <-tick:
		}
		if _, err := f.ProcessQueue(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			f.logger.Error("foreground pass failed",
				logging.Error(err),
				logging.EventType("pass_failed"),
				logging.ErrorHint("check queue database access"),
			)
		}
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
