package submit_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/submit"
	"fieldsync/internal/testsupport"
)

func newClient(t *testing.T, url string, mutate func(*submit.Config)) *submit.Client {
	t.Helper()
	cfg := submit.Config{Endpoint: url, APIToken: "secret", Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	return submit.NewClient(cfg, logging.NewNop())
}

func request() submit.Request {
	return submit.Request{SubmissionID: "sub-1", AttemptNumber: 3, Payload: testsupport.SamplePayload(testsupport.FreshTimestamp())}
}

func TestSubmitSendsIdempotencyFields(t *testing.T) {
	var body map[string]any
	var auth, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		key = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL, nil).Submit(context.Background(), request())
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if res.Duplicate || res.Status != http.StatusCreated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if auth != "Bearer secret" || key != "sub-1" {
		t.Fatalf("unexpected headers auth=%q key=%q", auth, key)
	}
	if body["submissionId"] != "sub-1" || body["attemptNumber"] != float64(3) {
		t.Fatalf("missing idempotency fields: %v", body)
	}
	if body["client"] != "Tienda La Esquina" {
		t.Fatalf("payload fields should be inlined: %v", body)
	}
	if total, ok := body["total"].(float64); !ok || total != 12.6 {
		t.Fatalf("expected numeric total, got %#v", body["total"])
	}
	products, _ := body["products"].([]any)
	if len(products) == 0 {
		t.Fatalf("expected products in body: %v", body)
	}
	if price, ok := products[0].(map[string]any)["price"].(float64); !ok || price != 0.75 {
		t.Fatalf("expected numeric price, got %#v", products[0])
	}
}

func TestSubmitDuplicateOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"conflict status", http.StatusConflict, `{"error":"exists"}`},
		{"duplicate flag", http.StatusOK, `{"duplicate":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			res, err := newClient(t, srv.URL, nil).Submit(context.Background(), request())
			if err != nil {
				t.Fatalf("duplicate must not be an error: %v", err)
			}
			if !res.Duplicate {
				t.Fatalf("expected duplicate result, got %+v", res)
			}
		})
	}
}

func TestSubmitClassifiesFailures(t *testing.T) {
	cases := []struct {
		status    int
		kind      submit.Kind
		retryable bool
	}{
		{http.StatusInternalServerError, submit.KindServer, true},
		{http.StatusBadGateway, submit.KindServer, true},
		{http.StatusTooManyRequests, submit.KindThrottled, true},
		{http.StatusRequestTimeout, submit.KindThrottled, true},
		{http.StatusTooEarly, submit.KindThrottled, true},
		{http.StatusBadRequest, submit.KindRejected, false},
		{http.StatusUnprocessableEntity, submit.KindRejected, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := newClient(t, srv.URL, nil).Submit(context.Background(), request())
			var submitErr *submit.Error
			if !errors.As(err, &submitErr) {
				t.Fatalf("expected *submit.Error, got %v", err)
			}
			if submitErr.Kind != tc.kind || submitErr.Status != tc.status || submitErr.Message != "nope" {
				t.Fatalf("unexpected error %+v", submitErr)
			}
			if submit.IsRetryable(err) != tc.retryable {
				t.Fatalf("retryable = %v, want %v", submit.IsRetryable(err), tc.retryable)
			}
			if submit.IsPermanent(err) == tc.retryable {
				t.Fatalf("permanent flag inconsistent for %d", tc.status)
			}
			if tc.retryable && !errors.Is(err, services.ErrTransient) {
				t.Fatalf("expected transient marker for %d", tc.status)
			}
			if !tc.retryable && !errors.Is(err, services.ErrRejected) {
				t.Fatalf("expected rejected marker for %d", tc.status)
			}
		})
	}
}

func TestSubmitTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newClient(t, srv.URL, func(cfg *submit.Config) { cfg.Timeout = 50 * time.Millisecond })
	_, err := client.Submit(context.Background(), request())
	var submitErr *submit.Error
	if !errors.As(err, &submitErr) || submitErr.Kind != submit.KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !submit.IsRetryable(err) || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("timeout should be retryable: %v", err)
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url, nil).Submit(context.Background(), request())
	var submitErr *submit.Error
	if !errors.As(err, &submitErr) || submitErr.Kind != submit.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestSubmitReturnsParentCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := newClient(t, srv.URL, nil).Submit(ctx, request())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubmitWithoutEndpointIsQueueable(t *testing.T) {
	_, err := newClient(t, "", nil).Submit(context.Background(), request())
	if !submit.IsRetryable(err) {
		t.Fatalf("missing endpoint should leave orders queueable: %v", err)
	}
}

func TestCircuitBreakerOpensOnRepeatedServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, func(cfg *submit.Config) {
		cfg.CircuitBreaker = true
		cfg.BreakerMinRequests = 2
		cfg.BreakerFailures = 2
		cfg.BreakerRecovery = time.Minute
	})
	for i := 0; i < 2; i++ {
		if _, err := client.Submit(context.Background(), request()); err == nil {
			t.Fatal("expected server error")
		}
	}
	_, err := client.Submit(context.Background(), request())
	var submitErr *submit.Error
	if !errors.As(err, &submitErr) || submitErr.Kind != submit.KindUnavailable {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if !submit.IsRetryable(err) {
		t.Fatal("open circuit must stay queueable")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("endpoint calls = %d, want 2", got)
	}
}

func TestCircuitBreakerIgnoresRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, func(cfg *submit.Config) {
		cfg.CircuitBreaker = true
		cfg.BreakerMinRequests = 1
		cfg.BreakerFailures = 1
		cfg.BreakerRecovery = time.Minute
	})
	for i := 0; i < 3; i++ {
		_, _ = client.Submit(context.Background(), request())
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("rejections should not trip the breaker; calls = %d", got)
	}
}
