package workflow

import (
	"context"
	"time"

	"fieldsync/internal/config"
)

// Policy controls retry accounting and pacing.
type Policy struct {
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	SendingLease time.Duration
	// FailFast marks permanent rejections failed on the first attempt instead
	// of charging them against MaxRetries.
	FailFast bool
}

// PolicyFrom reads the retry policy from configuration.
func PolicyFrom(cfg *config.Config) Policy {
	return Policy{
		MaxRetries:   cfg.Queue.MaxRetries,
		BackoffBase:  cfg.BackoffBase(),
		BackoffCap:   cfg.BackoffCap(),
		SendingLease: cfg.SendingLease(),
		FailFast:     cfg.Submit.PermanentFailurePolicy == config.PermanentPolicyFailFast,
	}
}

// Backoff returns min(base * 2^retryCount, cap).
func (p Policy) Backoff(retryCount int) time.Duration {
	if p.BackoffBase <= 0 {
		return 0
	}
	delay := p.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if p.BackoffCap > 0 && delay >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if p.BackoffCap > 0 && delay > p.BackoffCap {
		return p.BackoffCap
	}
	return delay
}

// Sleeper pauses between attempts. It returns early with ctx.Err() when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
