package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestCount      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	predictionCount   *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	rejectedUploads   *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry so that several
// handlers, as in tests, never clash on registration.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			}, []string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"path"},
		),
		predictionCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictions_total",
				Help: "Predictions served, by model and label",
			}, []string{"model", "label"},
		),
		inferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inference_duration_seconds",
				Help:    "Time spent inside one model call",
				Buckets: prometheus.DefBuckets,
			}, []string{"model"},
		),
		rejectedUploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rejected_uploads_total",
				Help: "Uploads rejected before inference, by reason",
			}, []string{"reason"},
		),
	}

	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.predictionCount,
		m.inferenceDuration,
		m.rejectedUploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// unmatchedPath labels requests that hit no route, keeping the path label
// bounded.
const unmatchedPath = "unmatched"

// Middleware records count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := unmatchedPath
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requestCount.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observePrediction(model, label string, took time.Duration) {
	m.predictionCount.WithLabelValues(model, label).Inc()
	m.inferenceDuration.WithLabelValues(model).Observe(took.Seconds())
}

func (m *Metrics) observeRejection(reason string) {
	m.rejectedUploads.WithLabelValues(reason).Inc()
}
