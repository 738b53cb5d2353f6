package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/ingestion"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "ask", "ingest", "serve", "inspect", "reset", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestResetCmd_RequiresYes(t *testing.T) {
	t.Parallel()

	cmd := NewResetCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestPrintReport(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	printReport(&out, &ingestion.Report{Results: []ingestion.Result{
		{Source: "a.pdf", Status: ingestion.StatusAdded, Chunks: 5},
		{Source: "b.pdf", Status: ingestion.StatusFailed, Error: "load failed"},
	}})

	got := out.String()
	assert.Contains(t, got, "added")
	assert.Contains(t, got, "a.pdf")
	assert.Contains(t, got, "load failed")
	assert.Contains(t, got, "1 added, 0 skipped, 0 empty, 1 failed, 5 chunks indexed")
}

func TestPrintAnswer(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	printAnswer(&out, "Within 30 days.", 7)
	assert.Equal(t, "Answer: Within 30 days.\nUsed 7 context documents\n", out.String())
}

func TestIngestRoots(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"/srv/manuals"}, ingestRoots([]string{"/srv/manuals"}, []string{"docs"}))
	assert.Equal(t, []string{"docs", "handbook.pdf"},
		ingestRoots(nil, []string{"docs", " ", "https://example.com/a.pdf", "handbook.pdf"}))
	assert.Empty(t, ingestRoots(nil, []string{"https://example.com/a.pdf"}))
}
