package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the platform behind a private
// registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	checksTotal     *prometheus.CounterVec
	checkDuration   *prometheus.HistogramVec
	auditEnqueued   prometheus.Counter
	auditFallback   prometheus.Counter
	auditQueueDepth prometheus.Gauge
}

// NewMetrics initializes the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_access_cache_hits_total",
		Help: "Access cache hits per key family.",
	}, []string{"family"})
	cacheMisses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_access_cache_misses_total",
		Help: "Access cache misses per key family.",
	}, []string{"family"})
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_checks_total",
		Help: "Access checks by outcome.",
	}, []string{"outcome"})
	checkDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_check_duration_seconds",
		Help:    "Access check duration by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	auditEnqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_enqueued_total",
		Help: "Audit records handed to the sink consumer.",
	})
	auditFallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_sync_fallback_total",
		Help: "Audit records persisted synchronously because the queue was full.",
	})
	auditQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aegis_audit_queue_depth",
		Help: "Records currently buffered in the audit sink.",
	})
	registry.MustRegister(requests, duration, cacheHits, cacheMisses, checks, checkDuration,
		auditEnqueued, auditFallback, auditQueueDepth)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		checksTotal:     checks,
		checkDuration:   checkDuration,
		auditEnqueued:   auditEnqueued,
		auditFallback:   auditFallback,
		auditQueueDepth: auditQueueDepth,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// CacheHit implements the access cache recorder.
func (m *Metrics) CacheHit(family string) {
	if m != nil {
		m.cacheHits.WithLabelValues(family).Inc()
	}
}

// CacheMiss implements the access cache recorder.
func (m *Metrics) CacheMiss(family string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(family).Inc()
	}
}

// CheckCompleted implements the resolver recorder.
func (m *Metrics) CheckCompleted(outcome string, elapsed time.Duration) {
	if m != nil {
		m.checksTotal.WithLabelValues(outcome).Inc()
		m.checkDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

// AuditEnqueued implements the audit sink recorder.
func (m *Metrics) AuditEnqueued() {
	if m != nil {
		m.auditEnqueued.Inc()
	}
}

// AuditFallback implements the audit sink recorder.
func (m *Metrics) AuditFallback() {
	if m != nil {
		m.auditFallback.Inc()
	}
}

// AuditQueueDepth implements the audit sink recorder.
func (m *Metrics) AuditQueueDepth(depth int) {
	if m != nil {
		m.auditQueueDepth.Set(float64(depth))
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
