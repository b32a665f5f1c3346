// Package telemetry registers the service's Prometheus collectors and the
// HTTP instrumentation middleware. Scrape endpoint is mounted in main.
package telemetry

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequests counts finished requests by method, route and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingua_http_requests_total",
			Help: "Finished HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency by route.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingua_http_request_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// GenJobsEnqueued counts accepted generation submissions.
	GenJobsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingua_generation_jobs_enqueued_total",
			Help: "Generation jobs accepted into the queue.",
		},
	)

	// GenJobs counts completed generation jobs by outcome.
	GenJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingua_generation_jobs_total",
			Help: "Completed generation jobs by outcome.",
		},
		[]string{"outcome"},
	)

	// GenDuration observes end-to-end generation job duration.
	GenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lingua_generation_seconds",
			Help:    "Generation job duration in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// DeltasPublished counts streamed text deltas.
	DeltasPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingua_stream_deltas_total",
			Help: "Text deltas published to thread streams.",
		},
	)

	// StreamSubscribers tracks currently attached delta subscribers.
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingua_stream_subscribers",
			Help: "Currently attached delta stream subscribers.",
		},
	)

	// ApprovalResolutions counts approval decisions by outcome.
	ApprovalResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingua_approval_resolutions_total",
			Help: "Approval resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)

	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(GenJobsEnqueued)
	prometheus.MustRegister(GenJobs)
	prometheus.MustRegister(GenDuration)
	prometheus.MustRegister(DeltasPublished)
	prometheus.MustRegister(StreamSubscribers)
	prometheus.MustRegister(ApprovalResolutions)
	prometheus.MustRegister(heapAlloc)
	prometheus.MustRegister(gcPauseTotal)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE responses keep streaming when wrapped.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware instruments a handler, labeling by the supplied route pattern.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
