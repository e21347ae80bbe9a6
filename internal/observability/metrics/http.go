package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mjamiv/plan-viz/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	uploadBytes prometheus.Histogram
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planviz",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planviz",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "planviz",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planviz",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total finished processing runs by stage type, provider and status.",
		},
		[]string{"service", "stage_type", "provider", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "planviz",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Processing run duration in seconds by stage type and provider.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "stage_type", "provider"},
	)
	uploadBytes := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "planviz",
			Subsystem: "http",
			Name:      "upload_bytes",
			Help:      "Distribution of uploaded document sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		runsTotal,
		runDuration,
		uploadBytes,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		uploadBytes:     uploadBytes,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path parameters so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/process/"):
		return "/process/{document_id}"
	case strings.HasPrefix(path, "/ocr/"):
		return "/ocr/{document_id}"
	case strings.HasPrefix(path, "/detect/"):
		return "/detect/{document_id}"
	case strings.HasPrefix(path, "/layout/"):
		return "/layout/{document_id}"
	case strings.HasPrefix(path, "/vlm/"):
		return "/vlm/{document_id}"
	case strings.HasPrefix(path, "/results/"):
		if strings.HasSuffix(path, "/export.csv") {
			return "/results/{document_id}/export.csv"
		}
		if strings.HasSuffix(path, "/export.json") {
			return "/results/{document_id}/export.json"
		}
		if strings.HasSuffix(path, "/export.xlsx") {
			return "/results/{document_id}/export.xlsx"
		}
		return "/results/{document_id}"
	case strings.HasPrefix(path, "/metrics/"):
		if strings.Contains(path, "/compare/") {
			return "/metrics/{document_id}/compare/{stage_type}"
		}
		return "/metrics/{document_id}"
	case strings.HasPrefix(path, "/files/"):
		return "/files/{path}"
	default:
		return path
	}
}

// ObserveRun records a finished run. It satisfies the analyzer's observer
// contract.
func (m *HTTPServerMetrics) ObserveRun(stageType, provider string, status domain.RunStatus, elapsed time.Duration) {
	if provider == "" {
		provider = "none"
	}
	m.runsTotal.WithLabelValues("api", stageType, provider, string(status)).Inc()
	m.runDuration.WithLabelValues("api", stageType, provider).Observe(elapsed.Seconds())
}

func (m *HTTPServerMetrics) ObserveUploadSize(bytes int64) {
	if bytes < 0 {
		return
	}
	m.uploadBytes.Observe(float64(bytes))
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
