package submit

import (
	"errors"

	"github.com/sony/gobreaker"
)

// CircuitBreaker guards calls to the submit endpoint.
type CircuitBreaker interface {
	Execute(fn func() error) error
}

type noopBreaker struct{}

func (noopBreaker) Execute(fn func() error) error {
	return fn()
}

// NoopBreaker returns a breaker that never opens.
func NoopBreaker() CircuitBreaker {
	return noopBreaker{}
}

type gobreakerWrapper struct {
	cb *gobreaker.CircuitBreaker
}

func (g *gobreakerWrapper) Execute(fn func() error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Kind: KindUnavailable, Message: "circuit open", Err: err}
	}
	return err
}

// NewCircuitBreaker returns a gobreaker-backed breaker when enabled. Only
// retryable failures count against it; a rejected order says nothing about
// endpoint health.
func NewCircuitBreaker(cfg Config) CircuitBreaker {
	if !cfg.CircuitBreaker {
		return NoopBreaker()
	}
	settings := gobreaker.Settings{
		Name:        "submit-endpoint",
		MaxRequests: 1,
		Timeout:     cfg.BreakerRecovery,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.BreakerMinRequests) {
				return false
			}
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	}
	return &gobreakerWrapper{cb: gobreaker.NewCircuitBreaker(settings)}
}
