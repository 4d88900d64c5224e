package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the registry and every collector the service exports.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	submissions     *prometheus.CounterVec
	statusUpdates   *prometheus.CounterVec
	manualEntries   *prometheus.CounterVec
	adminLogins     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartscan",
			Name:      "submissions_total",
			Help:      "Attendance submissions by outcome.",
		}, []string{"outcome"}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartscan",
			Name:      "status_updates_total",
			Help:      "Admin status updates by new status and result.",
		}, []string{"status", "result"}),
		manualEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartscan",
			Name:      "manual_entries_total",
			Help:      "Faculty-entered records by status.",
		}, []string{"status"}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartscan",
			Name:      "admin_logins_total",
			Help:      "Admin login attempts by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "smartscan",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions,
		m.statusUpdates,
		m.manualEntries,
		m.adminLogins,
		m.requestDuration,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StatusUpdate(status string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.statusUpdates.WithLabelValues(status, result).Inc()
}

func (m *Metrics) ManualEntry(status string) {
	if m == nil {
		return
	}
	m.manualEntries.WithLabelValues(status).Inc()
}

func (m *Metrics) AdminLogin(ok bool) {
	if m == nil {
		return
	}
	result := "denied"
	if ok {
		result = "ok"
	}
	m.adminLogins.WithLabelValues(result).Inc()
}

// GinMiddleware records request latency keyed by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestDuration.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
