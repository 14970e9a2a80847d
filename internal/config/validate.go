package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSubmit(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSubmit() error {
	if c.Submit.Endpoint != "" {
		parsed, err := url.Parse(c.Submit.Endpoint)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("submit.endpoint must be an absolute URL, got %q", c.Submit.Endpoint)
		}
	}
	switch c.Submit.PermanentFailurePolicy {
	case PermanentPolicyUniform, PermanentPolicyFailFast:
	default:
		return fmt.Errorf("submit.permanent_failure_policy must be %q or %q", PermanentPolicyUniform, PermanentPolicyFailFast)
	}
	if c.Submit.CircuitBreaker {
		if err := ensurePositiveMap(map[string]int{
			"submit.breaker_min_requests":     c.Submit.BreakerMinRequests,
			"submit.breaker_failures":         c.Submit.BreakerFailures,
			"submit.breaker_recovery_seconds": c.Submit.BreakerRecoverySeconds,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.freshness_window_seconds": c.Queue.FreshnessWindowSeconds,
		"queue.max_retries":              c.Queue.MaxRetries,
		"queue.backoff_base_seconds":     c.Queue.BackoffBaseSeconds,
		"queue.backoff_cap_seconds":      c.Queue.BackoffCapSeconds,
		"queue.sending_lease_seconds":    c.Queue.SendingLeaseSeconds,
		"queue.poll_interval_seconds":    c.Queue.PollIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Queue.BackoffCapSeconds < c.Queue.BackoffBaseSeconds {
		return errors.New("queue.backoff_cap_seconds must be >= queue.backoff_base_seconds")
	}
	if c.Queue.SendingLeaseSeconds <= c.Submit.TimeoutSeconds {
		return errors.New("queue.sending_lease_seconds must be greater than submit.timeout_seconds")
	}
	switch c.Queue.Fallback {
	case FallbackAuto, FallbackNever, FallbackAlways:
	default:
		return fmt.Errorf("queue.fallback must be one of %s", strings.Join([]string{FallbackAuto, FallbackNever, FallbackAlways}, ", "))
	}
	return nil
}

func (c *Config) validateSync() error {
	return ensurePositiveMap(map[string]int{
		"sync.periodic_interval_seconds":     c.Sync.PeriodicIntervalSeconds,
		"sync.connectivity_interval_seconds": c.Sync.ConnectivityIntervalSeconds,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
