package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrivia/accounts/internal/server/middleware"
)

// Auth attempt surfaces.
const (
	SurfaceAPI = "api"
	SurfaceWeb = "web"
)

// Auth attempt outcomes.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeStatusRefused      = "status_refused"
	OutcomeNotAdmin           = "not_admin"
	OutcomeError              = "error"
)

// Metrics owns a private Prometheus registry and the server's collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	authAttempts *prometheus.CounterVec
}

// New creates and registers the server metrics plus the standard Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrivia_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agrivia_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrivia_auth_attempts_total",
			Help: "Total number of login attempts",
		}, []string{"surface", "outcome"}),
	}
	reg.MustRegister(m.requests, m.duration, m.authAttempts)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Instrument counts and times requests by route pattern, never by raw path,
// so account IDs in URLs do not explode label cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewStatusRecorder(w)

		next.ServeHTTP(ww, r)

		route := middleware.RoutePattern(r)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// AuthAttempt records one login attempt.
func (m *Metrics) AuthAttempt(surface, outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(surface, outcome).Inc()
}
