// Package metrics exposes Prometheus collectors for the PayFlow client.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the client's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	backendInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "payflow",
			Subsystem: "backend",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight backend requests.",
		},
	)

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payflow",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of backend requests issued.",
		},
		[]string{"method", "path", "status"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payflow",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "path"},
	)

	storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payflow",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by store, operation and result.",
		},
		[]string{"store", "op", "result"},
	)

	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payflow",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by event.",
		},
		[]string{"event"},
	)

	daemonRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payflow",
			Subsystem: "daemon",
			Name:      "http_requests_total",
			Help:      "Requests served by the daemon status endpoint.",
		},
		[]string{"method", "path", "status"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payflow",
			Subsystem: "daemon",
			Name:      "job_runs_total",
			Help:      "Scheduled refresh job runs.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		backendInFlight,
		backendRequests,
		backendDuration,
		storeOperations,
		sessionTransitions,
		daemonRequests,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// BackendStarted marks a backend request as in flight and returns a func that
// records its outcome. status 0 means no response was received.
func BackendStarted(method, path string) func(status int) {
	start := time.Now()
	backendInFlight.Inc()
	return func(status int) {
		backendInFlight.Dec()
		method := strings.ToUpper(method)
		route := CanonicalPath(path)
		code := "none"
		if status > 0 {
			code = strconv.Itoa(status)
		}
		backendRequests.WithLabelValues(method, route, code).Inc()
		backendDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RecordStoreOperation counts a store operation outcome.
func RecordStoreOperation(store, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(store, op, result).Inc()
}

// RecordSessionEvent counts a session transition such as login or logout.
func RecordSessionEvent(event string) {
	sessionTransitions.WithLabelValues(event).Inc()
}

// RecordJobRun counts a scheduled daemon job run.
func RecordJobRun(job string, success bool) {
	if job == "" {
		job = "unknown"
	}
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}

// InstrumentHandler wraps the daemon's handler with request counting.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		RecordDaemonRequest(r.Method, CanonicalPath(r.URL.Path), rec.status)
	})
}

// RecordDaemonRequest counts a request served by the daemon. route should be
// a template or canonical path so label cardinality stays bounded.
func RecordDaemonRequest(method, route string, status int) {
	daemonRequests.WithLabelValues(strings.ToUpper(method), route, strconv.Itoa(status)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// CanonicalPath collapses identifier segments so label cardinality stays
// bounded: "/api/wallets/42" becomes "/api/wallets/:id".
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		if isIdentifier(part) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isIdentifier(segment string) bool {
	if segment == "" {
		return false
	}
	digits := 0
	for _, r := range segment {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits == len(segment) {
		return true
	}
	// qrIds, request numbers and uuids mix letters and digits.
	return digits > 0 && len(segment) >= 8
}
