// Package metrics holds the Prometheus collectors shared by the processors,
// the submit client and the daemon HTTP surface.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmitAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_submit_attempts_total",
		Help: "Delivery attempts by lane and outcome",
	}, []string{"lane", "outcome"})
	SubmitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldsync_submit_duration_seconds",
		Help:    "Submit endpoint round-trip time",
		Buckets: prometheus.DefBuckets,
	})
	PassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_passes_total",
		Help: "Processing passes by lane",
	}, []string{"lane"})
	PassDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldsync_pass_duration_seconds",
		Help:    "Wall time of a processing pass",
		Buckets: []float64{.05, .1, .5, 1, 2, 5, 15, 30, 60, 120},
	}, []string{"lane"})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldsync_queue_depth",
		Help: "Stored submissions by status",
	}, []string{"status"})
	MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_messages_published_total",
		Help: "Daemon messages posted by type",
	}, []string{"type"})
	StaleParked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldsync_location_stale_total",
		Help: "Submissions parked for a location refresh",
	})
)

// Outcome labels for SubmitAttempts.
const (
	OutcomeDelivered = "delivered"
	OutcomeDuplicate = "duplicate"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeQueued    = "queued"
)

// Register adds every collector to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmitAttempts,
			SubmitLatency,
			PassesTotal,
			PassDuration,
			QueueDepth,
			MessagesPublished,
			StaleParked,
		)
	})
}

// Handler exposes /metrics with the singleton registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// ObservePass records one finished pass for lane.
func ObservePass(lane string, started time.Time) {
	PassesTotal.WithLabelValues(lane).Inc()
	PassDuration.WithLabelValues(lane).Observe(time.Since(started).Seconds())
}

// SetQueueDepth replaces the depth gauges with counts.
func SetQueueDepth(counts map[string]int, statuses []string) {
	for _, status := range statuses {
		QueueDepth.WithLabelValues(status).Set(float64(counts[status]))
	}
}
