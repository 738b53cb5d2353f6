package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/telemetry"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// app holds the constructed clients for one command invocation. Every
// dependency is built here from Settings and injected; nothing is global.
type app struct {
	settings config.Settings
	log      *slog.Logger

	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	vectors  rag.VectorStore
	chunker  *chunker.Chunker
	index    *index.Store
	pipeline *ingestion.Pipeline

	// closers run in reverse order on Close.
	closers []func()
}

// newApp parses Settings and builds the logger, metrics, vector store,
// checkpoints, embedder, chunker and index store. Generation is built
// separately by newAgent so index-only commands do not need a chat model.
func newApp(ctx context.Context) (*app, error) {
	s, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log := logging.NewWithOptions(logging.Options{Level: s.Log.Level, Format: s.Log.Format})

	a := &app{settings: s, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = telemetry.NewMetrics(a.registry)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	s := a.settings
	log := a.log

	embCfg := s.Embedding.Resolve(s.Provider)
	if err := embedder.Validate(embCfg, log); err != nil {
		return err
	}
	emb, err := embedder.New(embCfg)
	if err != nil {
		return err
	}
	log.Info("embedder initialised",
		slog.String("provider", embCfg.Provider),
		slog.String("model", embCfg.Model),
		slog.Int("dimensions", embCfg.Dimensions),
	)

	switch s.Index.Backend {
	case "qdrant":
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       s.Qdrant.Host,
			Port:       s.Qdrant.Port,
			Collection: s.Index.Collection,
			VectorSize: uint64(embCfg.Dimensions), //nolint:gosec // validated positive
			APIKey:     s.Qdrant.APIKey,
			UseTLS:     s.Qdrant.TLS,
		})
		if err != nil {
			return fmt.Errorf("could not open Qdrant collection %q at %s:%d: %w",
				s.Index.Collection, s.Qdrant.Host, s.Qdrant.Port, err)
		}
		a.vectors = qs
	default:
		ls, err := rag.OpenLocalStore(ctx, rag.LocalConfig{
			Dir:        s.Index.Dir,
			Collection: s.Index.Collection,
		})
		if err != nil {
			return fmt.Errorf("could not open index %q in %s: %w", s.Index.Collection, s.Index.Dir, err)
		}
		a.vectors = ls
	}
	a.closers = append(a.closers, func() { _ = a.vectors.Close() })
	log.Info("vector store ready",
		slog.String("backend", s.Index.Backend),
		slog.String("collection", s.Index.Collection),
	)

	var checkpoints store.CheckpointStore
	if s.Index.Checkpoints {
		path, err := store.DefaultDBPath(s.Index.Dir)
		if err == nil {
			var cs *store.SQLiteStore
			if cs, err = store.Open(path); err == nil {
				checkpoints = cs
				a.closers = append(a.closers, func() { _ = cs.Close() })
			}
		}
		if err != nil {
			log.Warn("checkpoints: disabled, ingestion will not be resumable", slog.Any("error", err))
		}
	}

	loader := chunker.NewLoader(chunker.ExecRunner{})
	if s.RemoteSources {
		loader = loader.WithFetcher(&chunker.Fetcher{UserAgent: embCfg.UserAgent})
	}
	a.chunker = chunker.New(chunker.Config{
		ChunkSize:     s.Chunking.ChunkSize,
		ChunkOverlap:  s.Chunking.ChunkOverlap,
		MinLineLength: s.Chunking.MinLineLength,
	}, loader)

	a.index, err = index.New(index.Config{
		VectorStore:    a.vectors,
		Embedder:       emb,
		Producer:       a.chunker,
		Checkpoints:    checkpoints,
		Reporter:       telemetry.NewLogReporter(log, a.metrics),
		Metrics:        a.metrics,
		Collection:     s.Index.Collection,
		Dimension:      embCfg.Dimensions,
		EmbedBatchSize: s.Index.EmbedBatchSize,
		QueryCacheTTL:  s.Index.QueryCacheTTL,
	})
	if err != nil {
		return err
	}

	a.pipeline, err = ingestion.NewPipeline(a.index, a.chunker)
	return err
}

// newAgent builds the chat model and the orchestrator, and registers the
// Langfuse callback handler when it is configured.
func (a *app) newAgent(ctx context.Context) (*agent.Agent, error) {
	pcfg := a.settings.Provider
	if err := pcfg.Validate(); err != nil {
		return nil, err
	}
	chatModel, err := provider.New(ctx, &pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	a.log.Info("provider initialised",
		slog.String("provider", string(pcfg.Backend)),
		slog.String("model", pcfg.ModelName()),
	)

	handler, flush, ok := tracing.Setup(tracing.Config{
		PublicKey: a.settings.Tracing.PublicKey,
		SecretKey: a.settings.Tracing.SecretKey,
		Host:      a.settings.Tracing.Host,
	})
	if ok {
		callbacks.AppendGlobalHandlers(handler)
		a.closers = append(a.closers, flush)
		a.log.Info("langfuse tracing enabled")
	} else {
		a.log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
	}

	return agent.New(ctx, &agent.Config{
		ChatModel:        chatModel,
		Index:            a.index,
		TopK:             a.settings.TopK,
		MaxContextTokens: a.settings.MaxContextTokens,
		Reporter:         telemetry.NewLogReporter(a.log, a.metrics),
		Metrics:          a.metrics,
	})
}

// ingest runs the pipeline over sources and prints one line per source to
// out. Per-source failures are reported, not returned; the error is non-nil
// only when the run stopped early.
func (a *app) ingest(ctx context.Context, sources []string, out io.Writer) (*ingestion.Report, error) {
	sources = ingestion.ExpandSources(sources)
	if len(sources) == 0 {
		return &ingestion.Report{}, nil
	}
	report, err := a.pipeline.Run(ctx, sources, func(msg string) {
		a.log.Info(msg)
	})
	if report != nil {
		printReport(out, report)
	}
	var dm *rag.DimensionMismatch
	if errors.As(err, &dm) {
		return report, fmt.Errorf("%w (run `docqa reset --yes` to rebuild the collection with the current embedding model)", err)
	}
	return report, err
}

// pingers returns the readiness checks for the configured dependencies.
func (a *app) pingers() []server.Pinger {
	var ps []server.Pinger
	if p, ok := a.vectors.(server.Pinger); ok {
		ps = append(ps, p)
	}
	s := a.settings
	if s.Provider.Backend == provider.BackendOllama {
		ps = append(ps, server.NewOllamaPinger("ollama", s.Provider.Ollama.Host))
	}
	if emb := s.Embedding.Resolve(s.Provider); emb.Provider == "ollama" && emb.Endpoint != s.Provider.Ollama.Host {
		ps = append(ps, server.NewOllamaPinger("embedder", emb.Endpoint))
	}
	return ps
}

// Close releases every resource in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// printReport writes a per-source summary table.
func printReport(out io.Writer, r *ingestion.Report) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, res := range r.Results {
		line := fmt.Sprintf("%s\t%s\t%d chunks", res.Status, res.Source, res.Chunks)
		if res.Error != "" {
			line += "\t" + res.Error
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%d added, %d skipped, %d empty, %d failed, %d chunks indexed\n",
		r.Count(ingestion.StatusAdded), r.Count(ingestion.StatusSkipped),
		r.Count(ingestion.StatusEmpty), r.Count(ingestion.StatusFailed), r.ChunksAdded())
}
