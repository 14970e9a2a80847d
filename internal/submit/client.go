package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/queue"
)

const maxResponseBytes = 64 << 10

// Request is one delivery attempt of a queued order.
type Request struct {
	SubmissionID  string
	AttemptNumber int
	Payload       queue.Payload
}

// Result is an accepted outcome. Duplicate is set when the endpoint already
// had the order, which counts as success.
type Result struct {
	Duplicate bool
	Status    int
}

// Submitter delivers orders to the submit endpoint.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

// Config holds client settings.
type Config struct {
	Endpoint           string
	APIToken           string
	Timeout            time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	CircuitBreaker     bool
	BreakerMinRequests int
	BreakerFailures    int
	BreakerRecovery    time.Duration
}

// ConfigFrom extracts client settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Endpoint:           cfg.Submit.Endpoint,
		APIToken:           cfg.Submit.APIToken,
		Timeout:            cfg.SubmitTimeout(),
		RateLimitPerMinute: cfg.Submit.RateLimitPerMinute,
		RateLimitBurst:     cfg.Submit.RateLimitBurst,
		CircuitBreaker:     cfg.Submit.CircuitBreaker,
		BreakerMinRequests: cfg.Submit.BreakerMinRequests,
		BreakerFailures:    cfg.Submit.BreakerFailures,
		BreakerRecovery:    time.Duration(cfg.Submit.BreakerRecoverySeconds) * time.Second,
	}
}

// Client posts orders to the submit endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *RateLimiter
	breaker CircuitBreaker
	logger  *slog.Logger
}

// NewClient builds a client. The per-attempt deadline comes from cfg.Timeout
// through the request context rather than the http.Client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		breaker: NewCircuitBreaker(cfg),
		logger:  logging.NewComponentLogger(logger, "submit"),
	}
}

type wireRequest struct {
	queue.Payload
	SubmissionID  string `json:"submissionId"`
	AttemptNumber int    `json:"attemptNumber"`
}

type wireResponse struct {
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error"`
}

// Submit performs one delivery attempt bounded by the configured timeout.
// When ctx itself ends, ctx.Err() is returned so callers can tell
// cancellation apart from a delivery failure.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return Result{}, &Error{Kind: KindUnavailable, Message: "submit endpoint not configured"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &Error{Kind: KindThrottled, Message: "client rate limit", Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	started := time.Now()
	var result Result
	err := c.breaker.Execute(func() error {
		var doErr error
		result, doErr = c.do(attemptCtx, req)
		return doErr
	})
	metrics.SubmitLatency.Observe(time.Since(started).Seconds())

	if err != nil && ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil {
		c.logger.Debug("submit attempt failed",
			logging.SubmissionID(req.SubmissionID),
			logging.Attempt(req.AttemptNumber),
			logging.Error(err),
		)
		return Result{}, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(wireRequest{
		Payload:       req.Payload,
		SubmissionID:  req.SubmissionID,
		AttemptNumber: req.AttemptNumber,
	})
	if err != nil {
		return Result{}, &Error{Kind: KindRejected, Message: "encode order", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.SubmissionID)
	if token := strings.TrimSpace(c.cfg.APIToken); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	var decoded wireResponse
	if readErr == nil && len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return Result{Duplicate: true, Status: resp.StatusCode}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// A truncated body still means the order was accepted.
		return Result{Duplicate: decoded.Duplicate, Status: resp.StatusCode}, nil
	}

	msg := strings.TrimSpace(decoded.Error)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return Result{}, &Error{Kind: ClassifyStatus(resp.StatusCode), Status: resp.StatusCode, Message: msg}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: fmt.Sprintf("network failure: %v", err), Err: err}
}
