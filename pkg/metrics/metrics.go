// Package metrics provides Prometheus metrics for the ticketbridge engine.
// It defines counters and histograms for export throughput, API traffic,
// rate limiting, sync cycles, and conflict detection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsExported tracks canonical records written per export run.
	// Labels: source (adapter name), entity (tickets/messages/customers/...)
	RecordsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketbridge_records_exported_total",
			Help: "Total number of canonical records exported",
		},
		[]string{"source", "entity"},
	)

	// ExportDuration tracks the duration of full export runs in seconds.
	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketbridge_export_duration_seconds",
			Help:    "Duration of export runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"source"},
	)

	// APIRequests tracks outbound API requests.
	// Labels: source, method, status (HTTP status code as string)
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketbridge_api_requests_total",
			Help: "Total number of outbound API requests",
		},
		[]string{"source", "method", "status"},
	)

	// RateLimitWaits tracks 429 backoff sleeps per source.
	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketbridge_rate_limit_waits_total",
			Help: "Total number of rate-limit backoff sleeps",
		},
		[]string{"source"},
	)

	// HydrationFailures tracks non-fatal sub-resource hydration failures.
	HydrationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketbridge_hydration_failures_total",
			Help: "Total number of non-fatal sub-resource hydration failures",
		},
		[]string{"source", "resource"},
	)

	// SyncCycles tracks sync worker cycles by outcome.
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketbridge_sync_cycles_total",
			Help: "Total number of sync cycles",
		},
		[]string{"status"},
	)

	// ConflictsDetected tracks conflicts found by the detector.
	// Labels: reason (hosted_deleted/hosted_newer)
	ConflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketbridge_conflicts_detected_total",
			Help: "Total number of conflicts detected between local changes and hosted state",
		},
		[]string{"reason"},
	)
)

// Timer measures the duration of an operation for histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveExport records the elapsed time into ExportDuration for the source.
func (t *Timer) ObserveExport(source string) time.Duration {
	elapsed := time.Since(t.start)
	ExportDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	return elapsed
}
