package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fieldsync/internal/metrics"
)

func TestHandlerExposesCollectors(t *testing.T) {
	metrics.SubmitAttempts.WithLabelValues("background", metrics.OutcomeDelivered).Inc()
	metrics.ObservePass("background", time.Now())
	metrics.SetQueueDepth(map[string]int{"pending": 3}, []string{"pending", "failed"})

	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"fieldsync_submit_attempts_total", "fieldsync_pass_duration_seconds", "fieldsync_queue_depth"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("pending")); got != 3 {
		t.Fatalf("pending depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("failed")); got != 0 {
		t.Fatalf("failed depth = %v, want 0", got)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	metrics.Register()
	metrics.Register()
}
