package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the captioning service.
// A nil *Metrics is valid: every Record method is a no-op, so components
// can run unobserved in tests.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionDuration prometheus.Histogram

	// Chunk pipeline metrics
	ChunksReceived prometheus.Counter
	ChunksDropped  *prometheus.CounterVec
	GateDecisions  *prometheus.CounterVec

	// Dispatch metrics
	Dispatches      *prometheus.CounterVec
	BackendDuration prometheus.Histogram
	DedupHits       prometheus.Counter
	Retries         prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates all metrics and registers them with the given registerer.
// Passing prometheus.DefaultRegisterer wires the process-wide registry;
// tests pass a fresh prometheus.NewRegistry to avoid duplicate
// registration across cases.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caption_active_sessions",
			Help: "Current number of active capture sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_sessions_stopped_total",
			Help: "Total number of capture sessions stopped",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_session_duration_seconds",
			Help:    "Duration of capture sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Chunk pipeline metrics
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_chunks_received_total",
			Help: "Total number of audio chunks received from capture",
		}),
		ChunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_chunks_dropped_total",
			Help: "Total number of chunks dropped before dispatch",
		}, []string{"reason"}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_gate_decisions_total",
			Help: "Total number of speech gate decisions",
		}, []string{"decision"}),

		// Dispatch metrics
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_dispatches_total",
			Help: "Total number of backend dispatches",
		}, []string{"operation", "outcome"}),
		BackendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caption_backend_duration_seconds",
			Help:    "Duration of backend requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		DedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_dedup_hits_total",
			Help: "Total number of requests coalesced with an in-flight duplicate",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "caption_retries_total",
			Help: "Total number of backend request retries",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caption_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caption_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionStopped increments the sessions stopped counter and records duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkReceived increments the chunks received counter
func (m *Metrics) RecordChunkReceived() {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
}

// RecordChunkDropped records a chunk dropped before dispatch. reason is
// "busy", "interval" or "silent".
func (m *Metrics) RecordChunkDropped(reason string) {
	if m == nil {
		return
	}
	m.ChunksDropped.WithLabelValues(reason).Inc()
}

// RecordGateDecision records one speech gate decision
func (m *Metrics) RecordGateDecision(hasSpeech bool) {
	if m == nil {
		return
	}
	decision := "silent"
	if hasSpeech {
		decision = "speech"
	}
	m.GateDecisions.WithLabelValues(decision).Inc()
}

// RecordDispatch records a backend dispatch outcome
func (m *Metrics) RecordDispatch(operation string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Dispatches.WithLabelValues(operation, outcome).Inc()
	m.BackendDuration.Observe(durationSeconds)
}

// RecordDedupHit increments the dedup hits counter
func (m *Metrics) RecordDedupHit() {
	if m == nil {
		return
	}
	m.DedupHits.Inc()
}

// RecordRetry increments the retry counter
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
