// Package telemetry owns the pipeline's Prometheus metrics and the failure
// reporter used by the index and orchestrator. Every degraded operation
// (an existence check that answered false on error, a query that returned no
// results because the store failed) goes through Reporter, so failures are
// always logged and counted even when the caller keeps going.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Operation names used as the "op" label and in log lines.
const (
	OpExists   = "exists"
	OpIngest   = "ingest"
	OpLoad     = "load"
	OpEmbed    = "embed"
	OpQuery    = "query"
	OpGenerate = "generate"
	OpDelete   = "delete"
)

// Metrics holds the pipeline metrics. All methods are no-ops on a nil
// receiver so components can run without metrics in tests.
type Metrics struct {
	// chunksTotal counts chunks seen by ingest, partitioned by outcome:
	// "added" or "skipped" (document already indexed).
	chunksTotal *prometheus.CounterVec

	// embeddedTextsTotal counts texts sent to the embedding model.
	embeddedTextsTotal prometheus.Counter

	// failuresTotal counts reported failures by operation.
	failuresTotal *prometheus.CounterVec

	// queryDurationSeconds is the latency of index queries including embedding.
	queryDurationSeconds prometheus.Histogram

	// answersTotal counts orchestrator runs by outcome: "ok" or "error".
	answersTotal *prometheus.CounterVec

	// contextDocuments records how many chunks each answer was grounded on.
	contextDocuments prometheus.Histogram
}

// NewMetrics registers the pipeline metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks processed by ingest, partitioned by outcome.",
		}, []string{"outcome"}),

		embeddedTextsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "embed",
			Name:      "texts_total",
			Help:      "Texts sent to the embedding model.",
		}),

		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "failures_total",
			Help:      "Reported pipeline failures, partitioned by operation.",
		}, []string{"op"}),

		queryDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "query_duration_seconds",
			Help:      "Latency of index queries including query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),

		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "agent",
			Name:      "answers_total",
			Help:      "Completed question runs, partitioned by outcome.",
		}, []string{"outcome"}),

		contextDocuments: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "agent",
			Name:      "context_documents",
			Help:      "Number of context chunks each answer was generated from.",
			Buckets:   []float64{0, 1, 2, 3, 5, 7, 10, 20},
		}),
	}
}

// ChunksAdded records chunks committed to the index.
func (m *Metrics) ChunksAdded(n int) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues("added").Add(float64(n))
}

// ChunksSkipped records chunks not ingested because their document was
// already indexed.
func (m *Metrics) ChunksSkipped(n int) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues("skipped").Add(float64(n))
}

// TextsEmbedded records texts sent to the embedding model.
func (m *Metrics) TextsEmbedded(n int) {
	if m == nil {
		return
	}
	m.embeddedTextsTotal.Add(float64(n))
}

// QueryObserved records one query latency in seconds.
func (m *Metrics) QueryObserved(seconds float64) {
	if m == nil {
		return
	}
	m.queryDurationSeconds.Observe(seconds)
}

// AnswerObserved records one orchestrator run.
func (m *Metrics) AnswerObserved(ok bool, contextDocs int) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.answersTotal.WithLabelValues(outcome).Inc()
	m.contextDocuments.Observe(float64(contextDocs))
}

func (m *Metrics) failure(op string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(op).Inc()
}

// Reporter receives failures that a component absorbed instead of returning.
type Reporter interface {
	Report(ctx context.Context, op string, err error)
}

// LogReporter logs failures at WARN and counts them in Metrics.
type LogReporter struct {
	log     *slog.Logger
	metrics *Metrics
}

// NewLogReporter returns a LogReporter. A nil log uses the context logger at
// report time; nil metrics disables counting.
func NewLogReporter(log *slog.Logger, metrics *Metrics) *LogReporter {
	return &LogReporter{log: log, metrics: metrics}
}

// Report logs and counts err under op.
func (r *LogReporter) Report(ctx context.Context, op string, err error) {
	log := r.log
	if log == nil {
		log = logging.FromContext(ctx)
	}
	log.WarnContext(ctx, "pipeline failure", "op", op, "error", err)
	r.metrics.failure(op)
}
