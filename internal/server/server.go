// Package server exposes the question-answering pipeline over a JSON HTTP
// API. It is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// maxRequestBytes caps JSON request bodies.
const maxRequestBytes = 1 << 20

// New constructs a Server. a answers questions. ing serves POST /api/ingest,
// which is only registered when ing is non-nil and cfg.APIKey is set.
func New(a asker, ing ingester, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.IngestTimeout == 0 {
		cfg.IngestTimeout = 10 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.IngestTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		asker:   a,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		index:   cfg.Index,
		sources: newSourcePolicy(cfg.IngestRoots, cfg.AllowRemote),
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	queryRL := newRouteLimiter("query", cfg.QueryLimit, s.metrics.rateLimitedTotal)
	ingestRL := newRouteLimiter("ingest", cfg.IngestLimit, s.metrics.rateLimitedTotal)

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", s.metrics.instrument("query",
		requireAPIKey(cfg.APIKey, queryRL.middleware(http.HandlerFunc(s.handleQuery)))))

	switch {
	case ing == nil:
	case cfg.APIKey == "":
		log.Warn("server: DOCQA_API_KEY is not set, POST /api/ingest is disabled")
	default:
		s.ingester = ing
		mux.Handle("POST /api/ingest", s.metrics.instrument("ingest",
			requireAPIKey(cfg.APIKey, ingestRL.middleware(http.HandlerFunc(s.handleIngest)))))
	}
	if cfg.APIKey == "" {
		log.Warn("server: DOCQA_API_KEY is not set, POST /api/query is unauthenticated")
	}

	mux.Handle("GET /api/health", s.metrics.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.metrics.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server: stopped")
		return nil
	}
}

// handleQuery handles POST /api/query. It runs one question through the
// retrieve-then-generate pipeline and returns the answer with its context.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queriesInFlight.Inc()
	start := time.Now()
	state, err := s.asker.Ask(ctx, req.Question)
	s.metrics.queriesInFlight.Dec()

	outcome := "ok"
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			outcome, status = "timeout", http.StatusGatewayTimeout
		case errors.Is(err, rag.ErrGeneration):
			outcome, status = "error", http.StatusBadGateway
		default:
			outcome = "error"
		}
		s.metrics.observeQuery(outcome, time.Since(start))
		log.Warn("query failed", slog.String("outcome", outcome), slog.Any("error", err))
		writeError(w, status, err.Error())
		return
	}
	s.metrics.observeQuery(outcome, time.Since(start))

	resp := queryResponse{
		Answer:           state.Answer,
		ContextDocuments: len(state.Context),
		Context:          make([]contextChunk, 0, len(state.Context)),
	}
	for _, c := range state.Context {
		resp.Context = append(resp.Context, contextChunk{
			ID:          c.ID,
			Text:        c.Text,
			Source:      c.SourceURI,
			PageNumber:  c.PageNumber,
			StartOffset: c.StartOffset,
			Score:       c.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIngest handles POST /api/ingest. Every source, and every document a
// directory expands to, must pass the source policy before anything is read.
// Each source is reported as added, skipped, empty or failed.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sources := make([]string, 0, len(req.Sources))
	for _, src := range req.Sources {
		if src = strings.TrimSpace(src); src != "" {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, "sources is required")
		return
	}
	if err := s.sources.checkAll(sources); err != nil {
		log.Warn("ingest refused", slog.Any("error", err))
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	// A directory under a root may still hold symlinks that lead out of it.
	expanded := ingestion.ExpandSources(sources)
	if err := s.sources.checkAll(expanded); err != nil {
		log.Warn("ingest refused", slog.Any("error", err))
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.IngestTimeout)
	defer cancel()

	report, err := s.ingester.Run(ctx, expanded, func(msg string) {
		log.Debug("ingest progress", slog.String("msg", msg))
	})

	resp := ingestResponse{}
	if report != nil {
		resp.Added = report.Count(ingestion.StatusAdded)
		resp.Skipped = report.Count(ingestion.StatusSkipped)
		resp.Empty = report.Count(ingestion.StatusEmpty)
		resp.Failed = report.Count(ingestion.StatusFailed)
		resp.ChunksAdded = report.ChunksAdded()
		resp.Results = report.Results
		for _, res := range report.Results {
			s.metrics.ingestSourcesTotal.WithLabelValues(string(res.Status)).Inc()
		}
	}

	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, rag.ErrDimensionMismatch):
			status = http.StatusConflict
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		log.Warn("ingest stopped", slog.Any("error", err))
		resp.Error = err.Error()
		writeJSON(w, status, resp)
		return
	}

	log.Info("ingest finished",
		slog.Int("added", resp.Added),
		slog.Int("skipped", resp.Skipped),
		slog.Int("failed", resp.Failed),
		slog.Int("chunks_added", resp.ChunksAdded),
	)
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON decodes a size-capped request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an errorResponse.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
