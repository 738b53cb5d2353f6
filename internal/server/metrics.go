package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint name rather than
// the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts completed /api/query requests by outcome:
	// "ok", "timeout" or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records retrieval plus generation time per request.
	queryDurationSeconds *prometheus.HistogramVec

	// queriesInFlight is the number of questions currently being answered.
	queriesInFlight prometheus.Gauge

	// ingestSourcesTotal counts sources handled by /api/ingest by status.
	ingestSourcesTotal *prometheus.CounterVec

	// rateLimitedTotal counts requests rejected with 429, by route.
	rateLimitedTotal *prometheus.CounterVec

	// httpRequestsTotal counts all instrumented requests by method, handler
	// and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of instrumented requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/query requests.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		queriesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "query",
			Name:      "in_flight",
			Help:      "Number of /api/query requests currently being answered.",
		}),

		ingestSourcesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "sources_total",
			Help:      "Sources handled by /api/ingest, partitioned by status.",
		}, []string{"status"}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit, partitioned by route.",
		}, []string{"route"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeQuery records one finished /api/query request.
func (m *serverMetrics) observeQuery(outcome string, d time.Duration) {
	m.queryRequestsTotal.WithLabelValues(outcome).Inc()
	m.queryDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// instrument records request count and latency for next under name.
func (m *serverMetrics) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		m.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
