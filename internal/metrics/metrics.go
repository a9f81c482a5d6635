package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanray_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oceanray_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	raysTracedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oceanray_rays_traced_total",
			Help: "Total rays integrated to completion.",
		},
	)

	raysTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oceanray_rays_truncated_total",
			Help: "Rays terminated by the integration step cap.",
		},
	)

	traceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oceanray_trace_duration_seconds",
			Help:    "Wall-clock duration of one fan trace.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	assemblyDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oceanray_assembly_duration_seconds",
			Help:    "Wall-clock duration of one field assembly.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	requestsRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanray_requests_routed_total",
			Help: "Propagation requests by execution path and outcome.",
		},
		[]string{"path", "outcome"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanray_jobs_total",
			Help: "Jobs by terminal state.",
		},
		[]string{"state"},
	)

	jobQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oceanray_job_queue_depth",
			Help: "Jobs waiting in the orchestrator queue.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanray_stream_connections_total",
			Help: "Progress stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oceanray_streams_active",
			Help: "Currently open progress streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oceanray_stream_messages_total",
			Help: "Progress messages sent over all streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanray_stream_errors_total",
			Help: "Progress stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oceanray_stream_bytes_total",
			Help: "Bytes written over all progress streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		raysTracedTotal,
		raysTruncatedTotal,
		traceDurationSeconds,
		assemblyDurationSeconds,
		requestsRoutedTotal,
		jobsTotal,
		jobQueueDepth,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamErrorsTotal,
		streamBytesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTrace records one completed fan trace.
func ObserveTrace(duration time.Duration, rays, truncated int) {
	traceDurationSeconds.Observe(duration.Seconds())
	raysTracedTotal.Add(float64(rays))
	raysTruncatedTotal.Add(float64(truncated))
}

// ObserveAssembly records one completed field assembly.
func ObserveAssembly(duration time.Duration) {
	assemblyDurationSeconds.Observe(duration.Seconds())
}

// IncRouted counts a routing decision ("sync" or "queued") and its
// outcome ("ok", "error" or "rejected").
func IncRouted(path, outcome string) {
	requestsRoutedTotal.WithLabelValues(path, outcome).Inc()
}

// IncJobState counts a job reaching a terminal state.
func IncJobState(state string) {
	jobsTotal.WithLabelValues(state).Inc()
}

// SetQueueDepth updates the queued-jobs gauge.
func SetQueueDepth(n int) {
	jobQueueDepth.Set(float64(n))
}

// IncStreamConnections counts a stream lifecycle event.
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

// IncStreamsActive increments the active stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the active stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts one sent progress message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes accumulates bytes written over streams.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are the exact paths exported as their own label.
var knownRoutes = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/api/v1/propagate": true,
	"/api/v1/presets":   true,
}

// normalizeRoute collapses parameterized and unknown paths so the
// per-path label set stays bounded (bots probing random URLs must not
// mint new series).
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/jobs/"); ok {
		switch {
		case strings.HasSuffix(rest, "/events"):
			return "/api/v1/jobs/{id}/events"
		case strings.HasSuffix(rest, "/result"):
			return "/api/v1/jobs/{id}/result"
		case !strings.Contains(rest, "/"):
			return "/api/v1/jobs/{id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Flush and deadline support through the middleware chain.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
