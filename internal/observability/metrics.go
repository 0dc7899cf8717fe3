package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes used as metric labels
const (
	LoginSuccess  = "success"
	LoginRejected = "rejected"
	LoginError    = "error"
)

// Metrics is what services and middleware record into.
type Metrics interface {
	RecordLogin(outcome string)
	RecordLogout(sessions int)
	SetActiveSessions(n int)
	RecordRateLimited(route string)
	RecordAuditDropped()
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Collector is the Prometheus implementation of Metrics.
type Collector struct {
	logins         *prometheus.CounterVec
	logouts        prometheus.Counter
	activeSessions prometheus.Gauge
	rateLimited    *prometheus.CounterVec
	auditDropped   prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_logins_total",
			Help: "Sign-in attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_logouts_total",
			Help: "Sessions revoked through logout.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "records_active_sessions",
			Help: "Live session tokens held in memory.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "records_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.logins,
		c.logouts,
		c.activeSessions,
		c.rateLimited,
		c.auditDropped,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordLogin counts a sign-in attempt
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordLogout counts revoked sessions
func (c *Collector) RecordLogout(sessions int) {
	c.logouts.Add(float64(sessions))
}

// SetActiveSessions sets the live session gauge
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordRateLimited counts a throttled request
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// RecordAuditDropped counts an audit event lost to a full buffer
func (c *Collector) RecordAuditDropped() {
	c.auditDropped.Inc()
}

// RecordHTTPRequest records status and latency of a served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopMetrics discards everything. Used when metrics are disabled and in tests.
type NopMetrics struct{}

func (NopMetrics) RecordLogin(string)                                    {}
func (NopMetrics) RecordLogout(int)                                      {}
func (NopMetrics) SetActiveSessions(int)                                 {}
func (NopMetrics) RecordRateLimited(string)                              {}
func (NopMetrics) RecordAuditDropped()                                   {}
func (NopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
