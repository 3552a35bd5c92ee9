// Package metrics holds the Prometheus collectors for the session core and
// the HTTP surface. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionguard"

type Metrics struct {
	gatherer prometheus.Gatherer

	tokensIssued       prometheus.Counter
	tokenVerifications *prometheus.CounterVec
	revocations        prometheus.Counter
	refreshRotations   *prometheus.CounterVec
	auditAppends       prometheus.Counter
	auditFailures      *prometheus.CounterVec
	auditDivergence    prometheus.Gauge

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "access_tokens_issued_total",
			Help: "Access tokens signed.",
		}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "token_verifications_total",
			Help: "Access token verifications by outcome.",
		}, []string{"outcome"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "token_revocations_total",
			Help: "Revocation entries written.",
		}),
		refreshRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "refresh_rotations_total",
			Help: "Refresh token rotations by result.",
		}, []string{"result"}),
		auditAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_appends_total",
			Help: "Audit entries persisted.",
		}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_write_failures_total",
			Help: "Audit entries lost by cause.",
		}, []string{"cause"}),
		auditDivergence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "audit_chain_divergence_index",
			Help: "Index of the first diverging audit entry at the last check, -1 when intact.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.auditDivergence.Set(-1)

	reg.MustRegister(
		m.tokensIssued, m.tokenVerifications, m.revocations, m.refreshRotations,
		m.auditAppends, m.auditFailures, m.auditDivergence,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) TokenIssued() {
	if m != nil {
		m.tokensIssued.Inc()
	}
}

// TokenVerified counts a verification; outcome is "ok" or a failure reason.
func (m *Metrics) TokenVerified(outcome string) {
	if m != nil {
		m.tokenVerifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) TokenRevoked() {
	if m != nil {
		m.revocations.Inc()
	}
}

// RefreshRotated counts a rotation; result is "ok" or a ledger reason.
func (m *Metrics) RefreshRotated(result string) {
	if m != nil {
		m.refreshRotations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AuditAppended() {
	if m != nil {
		m.auditAppends.Inc()
	}
}

// AuditFailed counts a lost audit entry; cause is "write", "queue_full",
// "closed" or "encode".
func (m *Metrics) AuditFailed(cause string) {
	if m != nil {
		m.auditFailures.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) AuditDivergence(index int) {
	if m != nil {
		m.auditDivergence.Set(float64(index))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records RPS, latency and in-flight requests. The route label
// is the matched ServeMux pattern, which keeps cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
