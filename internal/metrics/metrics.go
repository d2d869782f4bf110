// Package metrics exposes the Prometheus collectors for the admission
// service on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "launchwave",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchwave",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchwave",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchwave",
			Subsystem: "admission",
			Name:      "signups_total",
			Help:      "Total number of processed signups by outcome.",
		},
		[]string{"outcome"}, // admitted, fallback
	)

	testerDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launchwave",
			Subsystem: "admission",
			Name:      "tester_denied_total",
			Help:      "Total number of tester requests dropped on capacity.",
		},
	)

	promoted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launchwave",
			Subsystem: "waves",
			Name:      "promoted_total",
			Help:      "Total number of signups promoted between waves.",
		},
	)

	removed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launchwave",
			Subsystem: "waves",
			Name:      "removed_total",
			Help:      "Total number of fallback signups bulk-removed.",
		},
	)
)

func init() {
	Registry.MustRegister(httpInFlight, httpRequests, httpDuration, admissions, testerDenied, promoted, removed)
}

// IncrementInFlight marks a request as started.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight marks a request as finished.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAdmission counts a processed signup by outcome.
func RecordAdmission(outcome string) { admissions.WithLabelValues(outcome).Inc() }

// RecordTesterDenied counts a tester request dropped on capacity.
func RecordTesterDenied() { testerDenied.Inc() }

// RecordPromoted counts promoted signups.
func RecordPromoted(n int) { promoted.Add(float64(n)) }

// RecordRemoved counts bulk-removed signups.
func RecordRemoved(n int) { removed.Add(float64(n)) }

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
