package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                sync.Once
	httpRequestsTotal           *prometheus.CounterVec
	httpLatencySeconds          *prometheus.HistogramVec
	httpErrorsTotal             *prometheus.CounterVec
	sweepRunsTotal              *prometheus.CounterVec
	sweepTransitionsTotal       *prometheus.CounterVec
	sweepItemErrorsTotal        *prometheus.CounterVec
	peerEdgesCreatedTotal       *prometheus.CounterVec
	peerSubmissionsSkipped      *prometheus.CounterVec
	notificationsPublishedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		sweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Sweep cycles by outcome (ok, partial, skipped, error).",
		}, []string{"outcome"})

		sweepTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_transitions_total",
			Help: "Entities moved or reminded by the sweeper.",
		}, []string{"kind"})

		sweepItemErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_item_errors_total",
			Help: "Per-item sweep failures by stage.",
		}, []string{"stage"})

		peerEdgesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_edges_created_total",
			Help: "Peer review edges created by matching mode.",
		}, []string{"mode"})

		peerSubmissionsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_submissions_skipped_total",
			Help: "Submissions skipped during random matching by reason.",
		}, []string{"reason"})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notification intents handed to the store by event type.",
		}, []string{"type"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			sweepRunsTotal,
			sweepTransitionsTotal,
			sweepItemErrorsTotal,
			peerEdgesCreatedTotal,
			peerSubmissionsSkipped,
			notificationsPublishedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SweepRuns exposes the sweep cycle counter.
func SweepRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepRunsTotal
}

// SweepTransitions exposes the per-kind sweep transition counter.
func SweepTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepTransitionsTotal
}

// SweepItemErrors exposes the per-stage sweep failure counter.
func SweepItemErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepItemErrorsTotal
}

// PeerEdgesCreated exposes the matching edge counter.
func PeerEdgesCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return peerEdgesCreatedTotal
}

// PeerSubmissionsSkipped exposes the matching skip counter.
func PeerSubmissionsSkipped() *prometheus.CounterVec {
	RegisterMetrics()
	return peerSubmissionsSkipped
}

// NotificationsPublished exposes the notification intent counter.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}
