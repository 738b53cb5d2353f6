package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/logging"
)

func TestLogReporter_LogsAndCounts(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	var buf bytes.Buffer
	r := NewLogReporter(logging.NewWithOptions(logging.Options{Writer: &buf}), m)

	r.Report(context.Background(), OpQuery, errors.New("connection refused"))
	r.Report(context.Background(), OpQuery, errors.New("connection refused"))
	r.Report(context.Background(), OpExists, errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.failuresTotal.WithLabelValues(OpQuery)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failuresTotal.WithLabelValues(OpExists)))
	assert.Equal(t, 3, strings.Count(buf.String(), `"msg":"pipeline failure"`))
	assert.Contains(t, buf.String(), `"op":"exists"`)
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ChunksAdded(5)
	m.ChunksSkipped(5)
	m.TextsEmbedded(5)
	m.AnswerObserved(true, 3)
	m.AnswerObserved(false, 0)
	m.QueryObserved(0.01)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.chunksTotal.WithLabelValues("added")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.chunksTotal.WithLabelValues("skipped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.embeddedTextsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.answersTotal.WithLabelValues("error")))

	n, err := testutil.GatherAndCount(reg, "docqa_index_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChunksAdded(1)
		m.ChunksSkipped(1)
		m.TextsEmbedded(1)
		m.QueryObserved(1)
		m.AnswerObserved(true, 1)
		NewLogReporter(logging.Discard(), nil).Report(context.Background(), OpLoad, errors.New("x"))
	})
}
