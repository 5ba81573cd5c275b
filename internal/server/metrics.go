package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tartampluch/smart-village/internal/config"
)

// Metrics holds the HTTP and domain collectors on a private registry, so several
// servers (and tests) never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	imported *prometheus.CounterVec
	sms      *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.MetricNamespace,
			Name:      config.MetricInFlight,
			Help:      "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.MetricNamespace,
			Name:      config.MetricRequests,
			Help:      "Total number of HTTP requests.",
		}, []string{config.MetricLabelMethod, config.MetricLabelRoute, config.MetricLabelStatus}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.MetricNamespace,
			Name:      config.MetricDuration,
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{config.MetricLabelMethod, config.MetricLabelRoute, config.MetricLabelStatus}),
		imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.MetricNamespace,
			Name:      config.MetricImportedRecords,
			Help:      "Records processed by imports and restores, by outcome.",
		}, []string{config.MetricLabelOutcome}),
		sms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.MetricNamespace,
			Name:      config.MetricSMS,
			Help:      "SMS deliveries, by result.",
		}, []string{config.MetricLabelResult}),
	}
	m.registry.MustRegister(
		m.inFlight, m.requests, m.duration, m.imported, m.sms,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument measures every request. The route label is chi's pattern, so
// /records/42 and /records/43 share a series.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)
		m.duration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(r.Method, route, status).Inc()
	})
}

// ObserveImport counts import outcomes.
func (m *Metrics) ObserveImport(inserted, updated, skipped, failed int) {
	m.imported.WithLabelValues(config.LogKeyInserted).Add(float64(inserted))
	m.imported.WithLabelValues(config.LogKeyUpdated).Add(float64(updated))
	m.imported.WithLabelValues(config.LogKeySkipped).Add(float64(skipped))
	m.imported.WithLabelValues(config.LogKeyFailed).Add(float64(failed))
}

// ObserveSMS counts deliveries.
func (m *Metrics) ObserveSMS(sent, failed int) {
	m.sms.WithLabelValues(config.LogKeySent).Add(float64(sent))
	m.sms.WithLabelValues(config.LogKeyFailed).Add(float64(failed))
}

// statusWriter records the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
