package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
)

// NewServeCmd constructs the `docqa serve` command, which exposes question
// answering and ingestion over HTTP.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP server.

Endpoints:
  POST /api/query    {"question": "..."} → answer and context chunks
  POST /api/ingest   {"sources": ["..."]} → per-source ingestion report
  GET  /api/health   liveness
  GET  /api/ready    readiness of the vector store and Ollama backends
  GET  /metrics      Prometheus metrics

Set DOCQA_API_KEY to require "Authorization: Bearer <key>" on /api/query.
POST /api/ingest is only served when DOCQA_API_KEY is set, and only reads
files under DOCQA_INGEST_ROOTS (default: the local DOCQA_SOURCES entries).
http(s) sources additionally need DOCQA_REMOTE_SOURCES=true. Sources in
DOCQA_SOURCES are ingested before listening.

Examples:
  docqa serve
  docqa serve --port 9090
  DOCQA_API_KEY=s3cret docqa serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()
			ctx = logging.WithLogger(ctx, a.log)

			if _, err := a.ingest(ctx, a.settings.Sources, cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			qa, err := a.newAgent(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			s := a.settings.Server
			if cmd.Flags().Changed("host") {
				s.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.Port = port
			}

			srv, err := server.New(qa, a.pipeline, &server.Config{
				Host:            s.Host,
				Port:            s.Port,
				Logger:          a.log,
				Pingers:         a.pingers(),
				Index:           a.index,
				QueryLimit:      server.RateLimit{RPS: s.QueryRateLimit, Burst: s.QueryRateBurst},
				IngestLimit:     server.RateLimit{RPS: s.IngestRateLimit, Burst: s.IngestRateBurst},
				IngestRoots:     ingestRoots(s.IngestRoots, a.settings.Sources),
				AllowRemote:     a.settings.RemoteSources,
				APIKey:          s.APIKey,
				MetricsRegistry: a.registry,
				MetricsGatherer: a.registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			a.log.Info("serve starting",
				slog.String("provider", string(a.settings.Provider.Backend)),
				slog.String("collection", a.settings.Index.Collection),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides DOCQA_PORT)")

	return cmd
}

// ingestRoots returns roots, or the local entries of sources when roots is
// empty.
func ingestRoots(roots, sources []string) []string {
	if len(roots) > 0 {
		return roots
	}
	var out []string
	for _, src := range sources {
		if src = strings.TrimSpace(src); src != "" && !chunker.IsRemote(src) {
			out = append(out, src)
		}
	}
	return out
}
