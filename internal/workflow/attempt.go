package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
	"fieldsync/internal/submit"
)

// Outcome is the result of handling one record in a pass.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeStale
	OutcomeDelivered
	OutcomeRetry
	OutcomeFailed
	// OutcomeResolved means another pass already removed the record.
	OutcomeResolved
	// OutcomeCanceled means the pass ended mid-send; the record went back to
	// pending without a retry charge.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeStale:
		return "stale"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	case OutcomeResolved:
		return "resolved"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// AttemptResult describes how one record was handled.
type AttemptResult struct {
	SubmissionID string
	Outcome      Outcome
	Duplicate    bool
	RetryCount   int
	Err          error
}

const revertTimeout = 5 * time.Second

type attempter struct {
	engine    *queue.Engine
	submitter submit.Submitter
	policy    Policy
	lane      string
	logger    *slog.Logger
}

// attempt runs one record through the shared state machine. The returned
// error is reserved for store failures; delivery failures are reported in
// AttemptResult.Err.
func (a *attempter) attempt(ctx context.Context, rec queue.Submission) (AttemptResult, error) {
	result := AttemptResult{SubmissionID: rec.ID, RetryCount: rec.RetryCount}
	logger := logging.WithContext(services.WithSubmissionID(ctx, rec.ID), a.logger)

	switch rec.Status {
	case queue.StatusSending, queue.StatusFailed, queue.StatusCompleted:
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	if rec.Status == queue.StatusLocationStale || !a.engine.IsLocationValid(rec) {
		result.Outcome = OutcomeStale
		if rec.Status == queue.StatusLocationStale {
			return result, nil
		}
		_, err := a.engine.Update(ctx, rec.ID, queue.Patch{
			Status:       queue.Ptr(queue.StatusLocationStale),
			ErrorMessage: queue.Ptr(queue.StaleLocationMessage),
		})
		if errors.Is(err, queue.ErrNotFound) {
			result.Outcome = OutcomeResolved
			return result, nil
		}
		if err != nil {
			return result, services.Wrap(services.ErrStorage, a.lane, "park stale", "mark location stale", err)
		}
		metrics.StaleParked.Inc()
		logger.Info("submission parked for location refresh",
			logging.EventType("location_stale"),
		)
		return result, nil
	}

	sending, err := a.engine.Update(ctx, rec.ID, queue.Patch{
		Status:        queue.Ptr(queue.StatusSending),
		LastAttemptAt: queue.Ptr(a.engine.Now().UTC()),
	})
	if errors.Is(err, queue.ErrNotFound) {
		result.Outcome = OutcomeResolved
		return result, nil
	}
	if err != nil {
		return result, services.Wrap(services.ErrStorage, a.lane, "mark sending", "update submission", err)
	}

	res, submitErr := a.submitter.Submit(ctx, submit.Request{
		SubmissionID:  sending.ID,
		AttemptNumber: sending.RetryCount + 1,
		Payload:       sending.Payload,
	})

	if submitErr == nil {
		if err := a.engine.Remove(ctx, rec.ID); err != nil {
			return result, services.Wrap(services.ErrStorage, a.lane, "remove delivered", "delete submission", err)
		}
		outcome := metrics.OutcomeDelivered
		if res.Duplicate {
			outcome = metrics.OutcomeDuplicate
		}
		metrics.SubmitAttempts.WithLabelValues(a.lane, outcome).Inc()
		logger.Info("submission delivered",
			logging.EventType("submission_delivered"),
			logging.Bool("duplicate", res.Duplicate),
			logging.Attempt(sending.RetryCount+1),
		)
		result.Outcome = OutcomeDelivered
		result.Duplicate = res.Duplicate
		return result, nil
	}

	if ctx.Err() != nil {
		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
		defer cancel()
		_, err := a.engine.Update(revertCtx, rec.ID, queue.Patch{Status: queue.Ptr(queue.StatusPending)})
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			return result, services.Wrap(services.ErrStorage, a.lane, "revert canceled", "update submission", err)
		}
		result.Outcome = OutcomeCanceled
		result.Err = ctx.Err()
		return result, nil
	}

	count := sending.RetryCount + 1
	status := queue.StatusPending
	outcome := OutcomeRetry
	if count >= a.policy.MaxRetries || (a.policy.FailFast && submit.IsPermanent(submitErr)) {
		status = queue.StatusFailed
		outcome = OutcomeFailed
	}
	_, err = a.engine.Update(ctx, rec.ID, queue.Patch{
		Status:       queue.Ptr(status),
		RetryCount:   queue.Ptr(count),
		ErrorMessage: queue.Ptr(submitErr.Error()),
	})
	if errors.Is(err, queue.ErrNotFound) {
		result.Outcome = OutcomeResolved
		return result, nil
	}
	if err != nil {
		return result, services.Wrap(services.ErrStorage, a.lane, "record failure", "update submission", err)
	}

	result.Outcome = outcome
	result.RetryCount = count
	result.Err = submitErr
	if outcome == OutcomeFailed {
		metrics.SubmitAttempts.WithLabelValues(a.lane, metrics.OutcomeFailed).Inc()
		logging.WarnWithContext(logger, "submission failed permanently", "submission_failed",
			logging.Int("retry_count", count),
			logging.Error(submitErr),
			logging.ErrorHint("inspect the error and run queue retry once resolved"),
			logging.Impact("order will not be sent until retried"),
		)
	} else {
		metrics.SubmitAttempts.WithLabelValues(a.lane, metrics.OutcomeRetry).Inc()
		logger.Info("submission attempt failed; will retry",
			logging.EventType("submission_retry"),
			logging.Int("retry_count", count),
			logging.Error(submitErr),
		)
	}
	return result, nil
}

func (a *attempter) reclaim(ctx context.Context) {
	if _, err := a.engine.ReclaimSending(ctx, a.policy.SendingLease); err != nil {
		logging.WarnWithContext(a.logger, "reclaim sending leases failed", "sending_reclaim_failed",
			logging.Error(err),
			logging.ErrorHint("check queue database access"),
			logging.Impact("records stuck in sending wait for the next pass"),
		)
	}
}

// PassReport summarizes one foreground pass.
type PassReport struct {
	Ran       bool
	Processed int
	Succeeded int
	Duplicate int
	Failed    int
	Retrying  int
	Stale     int
	Skipped   int
	StaleIDs  []string
}

// Summary folds the report into the shape posted to listeners. Records still
// awaiting a retry count as failed for this pass.
func (r PassReport) Summary() notifications.Summary {
	return notifications.Summary{
		Processed: r.Processed,
		Succeeded: r.Succeeded,
		Failed:    r.Failed + r.Retrying,
		Stale:     r.Stale,
	}
}

func (r *PassReport) add(res AttemptResult) {
	switch res.Outcome {
	case OutcomeSkipped, OutcomeResolved, OutcomeCanceled:
		r.Skipped++
		return
	}
	r.Processed++
	switch res.Outcome {
	case OutcomeStale:
		r.Stale++
		r.StaleIDs = append(r.StaleIDs, res.SubmissionID)
	case OutcomeDelivered:
		r.Succeeded++
		if res.Duplicate {
			r.Duplicate++
		}
	case OutcomeRetry:
		r.Retrying++
	case OutcomeFailed:
		r.Failed++
	}
}
