package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

type DetectorMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	modelLoadTotal    *prometheus.CounterVec
	modelLoadDuration prometheus.Histogram
	modelLoadProgress prometheus.Gauge
	modelReady        prometheus.Gauge

	classificationsTotal   *prometheus.CounterVec
	classificationDuration prometheus.Histogram
	classificationFailures *prometheus.CounterVec
}

func NewDetectorMetrics(service string) *DetectorMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detector",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "detector",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "detector",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	modelLoadTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detector",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	modelLoadDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "detector",
			Subsystem:   "model",
			Name:        "load_duration_seconds",
			Help:        "Wall-clock time from load start to ready or failure.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
			ConstLabels: constLabels,
		},
	)
	modelLoadProgress := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "detector",
			Subsystem:   "model",
			Name:        "load_progress_ratio",
			Help:        "Latest reported load progress in [0,1].",
			ConstLabels: constLabels,
		},
	)
	modelReady := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "detector",
			Subsystem:   "model",
			Name:        "ready",
			Help:        "1 once the model is ready to classify.",
			ConstLabels: constLabels,
		},
	)
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detector",
			Subsystem: "classification",
			Name:      "total",
			Help:      "Completed classifications by label.",
		},
		[]string{"service", "label"},
	)
	classificationDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "detector",
			Subsystem:   "classification",
			Name:        "duration_seconds",
			Help:        "Classification latency including generation.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			ConstLabels: constLabels,
		},
	)
	classificationFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detector",
			Subsystem: "classification",
			Name:      "failures_total",
			Help:      "Failed classifications by failure kind.",
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		modelLoadTotal,
		modelLoadDuration,
		modelLoadProgress,
		modelReady,
		classificationsTotal,
		classificationDuration,
		classificationFailures,
	)

	return &DetectorMetrics{
		registry:               registry,
		service:                service,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		modelLoadTotal:         modelLoadTotal,
		modelLoadDuration:      modelLoadDuration,
		modelLoadProgress:      modelLoadProgress,
		modelReady:             modelReady,
		classificationsTotal:   classificationsTotal,
		classificationDuration: classificationDuration,
		classificationFailures: classificationFailures,
	}
}

func (m *DetectorMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *DetectorMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *DetectorMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := routeLabel(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

var knownRoutes = map[string]struct{}{
	"/healthz":     {},
	"/readyz":      {},
	"/metrics":     {},
	"/v1/model":    {},
	"/v1/classify": {},
}

// routeLabel keeps the path label bounded: unrouted paths share one series.
func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

func (m *DetectorMetrics) ObserveLoadProgress(p domain.LoadProgress) {
	if p.HasFraction() {
		m.modelLoadProgress.Set(float64(p.Percent()) / 100)
	}
}

func (m *DetectorMetrics) RecordModelLoad(duration time.Duration, err error) {
	outcome := "ready"
	if err != nil {
		outcome = domain.Describe(err).Kind
	} else {
		m.modelReady.Set(1)
		m.modelLoadProgress.Set(1)
	}
	m.modelLoadTotal.WithLabelValues(m.service, outcome).Inc()
	m.modelLoadDuration.Observe(duration.Seconds())
}

func (m *DetectorMetrics) RecordClassification(label domain.Label, duration time.Duration) {
	if !label.Valid() {
		label = domain.LabelUnknown
	}
	m.classificationsTotal.WithLabelValues(m.service, string(label)).Inc()
	m.classificationDuration.Observe(duration.Seconds())
}

func (m *DetectorMetrics) RecordClassificationFailure(err error) {
	if err == nil {
		return
	}
	m.classificationFailures.WithLabelValues(m.service, domain.Describe(err).Kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
