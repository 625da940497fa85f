package wsapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments of the gateway.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	sessions      prometheus.Gauge
	auditFailures prometheus.Counter
	rateLimited   prometheus.Counter
	abandoned     prometheus.Counter
}

// NewMetrics registers the gateway metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "wsapi",
			Name:      "requests_total",
			Help:      "Remote API requests by method and status.",
		}, []string{"method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graylogic",
			Subsystem: "wsapi",
			Name:      "request_duration_seconds",
			Help:      "Time to handle a remote API request, audit excluded.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "graylogic",
			Subsystem: "wsapi",
			Name:      "active_sessions",
			Help:      "Open remote API connections.",
		}),
		auditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "wsapi",
			Name:      "audit_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "wsapi",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-connection rate limit.",
		}),
		abandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "wsapi",
			Name:      "abandoned_requests_total",
			Help:      "Requests answered before their handler returned.",
		}),
	}
}

// The helpers below are nil-safe so a Server runs without metrics.

func (m *Metrics) observe(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}

func (m *Metrics) auditFailed() {
	if m != nil {
		m.auditFailures.Inc()
	}
}

func (m *Metrics) limited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) abandon() {
	if m != nil {
		m.abandoned.Inc()
	}
}
