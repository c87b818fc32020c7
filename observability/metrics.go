package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Authentication outcomes recorded by Metrics.AuthAttempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics collects gateway metrics. A nil *Metrics is valid and records nothing,
// which keeps unit tests free of registry plumbing.
type Metrics struct {
	authAttempts     *prometheus.CounterVec
	authzDecisions   *prometheus.CounterVec
	jwksFetches      *prometheus.CounterVec
	jwksFetchSeconds prometheus.Histogram
	activeSessions   prometheus.Gauge
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by credential source, outcome and reason.",
		}, []string{"source", "outcome", "reason"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "authz",
			Name:      "decisions_total",
			Help:      "Authorization decisions by operation and result.",
		}, []string{"operation", "result"}),
		jwksFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "jwks",
			Name:      "fetches_total",
			Help:      "JWKS document fetches by outcome.",
		}, []string{"outcome"}),
		jwksFetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "jwks",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of JWKS document fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live local sessions.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		m.authAttempts,
		m.authzDecisions,
		m.jwksFetches,
		m.jwksFetchSeconds,
		m.activeSessions,
		m.requestDuration,
	)
	return m
}

// AuthAttempt records one authentication attempt.
func (m *Metrics) AuthAttempt(source, outcome, reason string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(source, outcome, reason).Inc()
}

// AuthzDecision records one policy decision.
func (m *Metrics) AuthzDecision(operation string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.authzDecisions.WithLabelValues(operation, result).Inc()
}

// JWKSFetch records a key set fetch and its latency.
func (m *Metrics) JWKSFetch(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.jwksFetches.WithLabelValues(outcome).Inc()
	m.jwksFetchSeconds.Observe(took.Seconds())
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// ObserveRequest records the latency of a served request.
func (m *Metrics) ObserveRequest(method, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, status).Observe(took.Seconds())
}
