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
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	jobsSubmittedTotal *prometheus.CounterVec
	jobPollsTotal      *prometheus.CounterVec
	questionsTotal     *prometheus.CounterVec
	questionSources    *prometheus.HistogramVec
	questionDuration   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medvoice",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medvoice",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "medvoice",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobsSubmittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medvoice",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Total accepted job submissions by input kind.",
		},
		[]string{"service", "kind"},
	)
	jobPollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medvoice",
			Subsystem: "jobs",
			Name:      "polls_total",
			Help:      "Total job status polls by observed state.",
		},
		[]string{"service", "state"},
	)
	questionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medvoice",
			Subsystem: "qa",
			Name:      "questions_total",
			Help:      "Total answered questions by corpus source.",
		},
		[]string{"service", "source"},
	)
	questionSources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medvoice",
			Subsystem: "qa",
			Name:      "retrieved_chunks",
			Help:      "Distribution of chunks handed to the model per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "source"},
	)
	questionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medvoice",
			Subsystem: "qa",
			Name:      "duration_seconds",
			Help:      "Question answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "source"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		jobsSubmittedTotal,
		jobPollsTotal,
		questionsTotal,
		questionSources,
		questionDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		jobsSubmittedTotal: jobsSubmittedTotal,
		jobPollsTotal:      jobPollsTotal,
		questionsTotal:     questionsTotal,
		questionSources:    questionSources,
		questionDuration:   questionDuration,
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

// normalizePath keeps job ids and owner ids out of label values.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/jobs/upload/"):
		return "/v1/jobs/upload/{owner_id}"
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{job_id}"
	case strings.HasPrefix(path, "/v1/owners/"):
		rest := strings.TrimPrefix(path, "/v1/owners/")
		if idx := strings.Index(rest, "/"); idx >= 0 {
			return "/v1/owners/{owner_id}" + rest[idx:]
		}
		return "/v1/owners/{owner_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordJobSubmitted(service, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.jobsSubmittedTotal.WithLabelValues(service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordJobPoll(service, state string) {
	if state == "" {
		state = "unknown"
	}
	m.jobPollsTotal.WithLabelValues(service, state).Inc()
}

func (m *HTTPServerMetrics) RecordQuestion(service, source string, sourceCount int, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	m.questionsTotal.WithLabelValues(service, source).Inc()
	m.questionSources.WithLabelValues(service, source).Observe(float64(sourceCount))
	m.questionDuration.WithLabelValues(service, source).Observe(duration.Seconds())
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
