// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Presence metrics
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_transitions_total",
			Help: "Presence transitions applied, by outcome",
		},
		[]string{"outcome"}, // "opened", "closed", "continued", "zombie_repaired", "noop"
	)

	// Ingest metrics
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ingest_events_total",
			Help: "Live feed events handled, by result",
		},
		[]string{"kind", "result"}, // kind: "presence", "entity"; result: "applied", "stale", "invalid", "unknown", "error"
	)

	FeedErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_feed_errors_total",
			Help: "Transient live feed errors",
		},
	)

	// Reconciliation metrics
	ReconcileCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_reconcile_cycles_total",
			Help: "Reconciliation cycles run, by result",
		},
		[]string{"result"}, // "ok", "fetch_failed", "error"
	)

	ReconcileCorrectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_reconcile_corrections_total",
			Help: "Discrepancies found by reconciliation, by type",
		},
		[]string{"correction"}, // "marked_offline", "marked_online", "ignored_unknown"
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_reconcile_duration_seconds",
			Help:    "Duration of one reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActivePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_active_pollers",
			Help: "Groups with a running reconciliation poller",
		},
	)

	// Upstream API metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_upstream_requests_total",
			Help: "Requests made to the authoritative server API",
		},
		[]string{"endpoint", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	PanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_api_panics_total",
			Help: "Handler panics recovered by the API",
		},
	)

	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_sse_clients",
			Help: "Connected event stream clients",
		},
	)
)

// RecordAPIRequest records one HTTP request
func RecordAPIRequest(method string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordCycle records one reconciliation cycle
func RecordCycle(result string, duration time.Duration, offline, online, unknown int) {
	ReconcileCyclesTotal.WithLabelValues(result).Inc()
	ReconcileDuration.Observe(duration.Seconds())
	ReconcileCorrectionsTotal.WithLabelValues("marked_offline").Add(float64(offline))
	ReconcileCorrectionsTotal.WithLabelValues("marked_online").Add(float64(online))
	ReconcileCorrectionsTotal.WithLabelValues("ignored_unknown").Add(float64(unknown))
}
