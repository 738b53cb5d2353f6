// Package ingestion runs the index build over a list of sources. Each source
// is fingerprinted, skipped when already indexed, chunked and committed to the
// index store; the outcome of every source is collected into a Report. This
// pipeline is invoked by `docqa ingest`, before `docqa chat`/`ask`, and by the
// HTTP ingest endpoint.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Status is the outcome of one source.
type Status string

const (
	// StatusAdded means the source's chunks were committed.
	StatusAdded Status = "added"
	// StatusSkipped means the source was already indexed.
	StatusSkipped Status = "skipped"
	// StatusEmpty means the source had no text left after cleaning.
	StatusEmpty Status = "empty"
	// StatusFailed means the source could not be loaded or committed.
	StatusFailed Status = "failed"
)

// Indexer is the part of the index store the pipeline needs.
// *index.Store satisfies it.
type Indexer interface {
	Exists(ctx context.Context, fingerprint string) bool
	Ingest(ctx context.Context, chunks []rag.Chunk) (int, error)
}

// Result describes what happened to one source.
type Result struct {
	Source      string        `json:"source"`
	Fingerprint string        `json:"fingerprint"`
	Status      Status        `json:"status"`
	Chunks      int           `json:"chunks"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Report collects the per-source results of a run, in input order.
type Report struct {
	Results []Result `json:"results"`
}

// Count returns how many sources ended with status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// ChunksAdded returns the total number of entries committed.
func (r *Report) ChunksAdded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusAdded {
			n += res.Chunks
		}
	}
	return n
}

// Pipeline orchestrates the fingerprint → load → chunk → ingest flow for a
// set of sources.
type Pipeline struct {
	// index persists the chunks.
	index Indexer

	// producer loads and chunks a source.
	producer index.ChunkProducer
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(idx Indexer, producer index.ChunkProducer) (*Pipeline, error) {
	if idx == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if producer == nil {
		return nil, fmt.Errorf("ingestion: producer must not be nil")
	}
	return &Pipeline{index: idx, producer: producer}, nil
}

// Run ingests every source in order. A source that fails to load or commit is
// recorded as failed and the run continues. A dimension mismatch or a
// cancelled context stops the run; the partial report is returned with the
// error. Progress is reported via the optional progress callback.
func (p *Pipeline) Run(ctx context.Context, sources []string, progress func(msg string)) (*Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)
	report := &Report{Results: make([]Result, 0, len(sources))}
	seen := make(map[string]bool, len(sources))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		res := Result{Source: src, Fingerprint: p.producer.Fingerprint(src)}

		if seen[res.Fingerprint] || p.index.Exists(ctx, res.Fingerprint) {
			res.Status = StatusSkipped
			seen[res.Fingerprint] = true
			res.Duration = time.Since(start)
			report.Results = append(report.Results, res)
			progress(fmt.Sprintf("skipped %s (already indexed)", src))
			continue
		}
		seen[res.Fingerprint] = true

		progress(fmt.Sprintf("loading %s", src))
		chunks, err := p.producer.LoadAndSplit(ctx, src)
		if err != nil {
			res.Status, res.Error = StatusFailed, err.Error()
			res.Duration = time.Since(start)
			report.Results = append(report.Results, res)
			log.Warn("ingestion: load failed", slog.String("source", src), slog.Any("error", err))
			progress(fmt.Sprintf("failed %s: %v", src, err))
			continue
		}
		if len(chunks) == 0 {
			res.Status = StatusEmpty
			res.Duration = time.Since(start)
			report.Results = append(report.Results, res)
			progress(fmt.Sprintf("no text in %s", src))
			continue
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", src, len(chunks)))

		n, err := p.index.Ingest(ctx, chunks)
		res.Duration = time.Since(start)
		if err != nil {
			res.Status, res.Error = StatusFailed, err.Error()
			report.Results = append(report.Results, res)
			if errors.Is(err, rag.ErrDimensionMismatch) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, fmt.Errorf("ingestion: %s: %w", src, err)
			}
			log.Warn("ingestion: commit failed", slog.String("source", src), slog.Any("error", err))
			progress(fmt.Sprintf("failed %s: %v", src, err))
			continue
		}

		res.Chunks = n
		res.Status = StatusAdded
		if n == 0 {
			// Another writer committed the same document in the meantime.
			res.Status = StatusSkipped
		}
		report.Results = append(report.Results, res)
		log.Info("ingestion: source committed",
			slog.String("source", src),
			slog.Int("chunks", n),
			slog.Duration("duration", res.Duration),
		)
		progress(fmt.Sprintf("ingested %d chunks from %s", n, src))
	}

	return report, nil
}

// supportedExts are the file types picked up when a directory is expanded.
var supportedExts = []string{".pdf", ".txt", ".md"}

// ExpandSources replaces every local directory in sources with the supported
// files beneath it, sorted by path. Files and remote URLs pass through
// unchanged; paths that cannot be read are kept so the load step reports them.
func ExpandSources(sources []string) []string {
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if chunker.IsRemote(src) {
			out = append(out, src)
			continue
		}

		var found []string
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if d.IsDir() {
				return nil
			}
			if slices.Contains(supportedExts, strings.ToLower(filepath.Ext(path))) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil || len(found) == 0 {
			out = append(out, src)
			continue
		}
		slices.Sort(found)
		out = append(out, found...)
	}
	return out
}
