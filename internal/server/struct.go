package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/ingestion"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed IngestTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds one POST /api/query (default: 2m).
	QueryTimeout time.Duration
	// IngestTimeout bounds one POST /api/ingest (default: 10m).
	IngestTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// QueryLimit throttles POST /api/query per client IP. A zero value
	// disables limiting.
	QueryLimit RateLimit
	// IngestLimit throttles POST /api/ingest per client IP, independently of
	// QueryLimit. A zero value disables limiting.
	IngestLimit RateLimit
	// Index, when set, adds collection statistics to GET /api/ready.
	Index indexStatter
	// IngestRoots are the files and directories POST /api/ingest may read.
	// Local sources outside them are refused with 403.
	IngestRoots []string
	// AllowRemote lets POST /api/ingest fetch http(s) sources.
	AllowRemote bool
	// APIKey is the Bearer token required on /api/query and /api/ingest.
	// If empty, /api/query is open and /api/ingest is not registered.
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker answers one question. *agent.Agent satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, question string) (agent.QueryState, error)
}

// ingester indexes a list of sources. *ingestion.Pipeline satisfies it.
type ingester interface {
	Run(ctx context.Context, sources []string, progress func(msg string)) (*ingestion.Report, error)
}

// Server exposes question answering and ingestion over HTTP.
type Server struct {
	// asker answers POST /api/query.
	asker asker
	// ingester serves POST /api/ingest. Nil disables the route.
	ingester ingester
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// index reports collection statistics for GET /api/ready. May be nil.
	index indexStatter
	// sources decides which sources POST /api/ingest accepts.
	sources *sourcePolicy
	// metrics holds the server's Prometheus collectors.
	metrics *serverMetrics
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language query.
	Question string `json:"question"`
}

// contextChunk is one retrieved chunk in a query response.
type contextChunk struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Source      string  `json:"source"`
	PageNumber  int     `json:"page"`
	StartOffset int     `json:"start_offset"`
	Score       float32 `json:"score"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	Answer string `json:"answer"`
	// ContextDocuments is the number of chunks the answer was generated from.
	ContextDocuments int            `json:"context_documents"`
	Context          []contextChunk `json:"context"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Sources are paths or directories under the ingest roots, or http(s)
	// URLs when remote sources are allowed.
	Sources []string `json:"sources"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	Added       int                `json:"added"`
	Skipped     int                `json:"skipped"`
	Empty       int                `json:"empty"`
	Failed      int                `json:"failed"`
	ChunksAdded int                `json:"chunks_added"`
	Results     []ingestion.Result `json:"results"`
	// Error is set when the run stopped early; Results then holds the
	// sources processed before the stop.
	Error string `json:"error,omitempty"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
