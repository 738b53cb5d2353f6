package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/provider"
)

// Settings is the typed view of the merged environment. It is parsed once at
// startup and handed to the constructors in cmd/docqa.
type Settings struct {
	Provider  provider.Config
	Embedding embedder.Config
	Index     IndexSettings
	Qdrant    QdrantSettings
	Chunking  ChunkingSettings
	Server    ServerSettings
	Tracing   TracingSettings
	Log       LogSettings

	// Sources are ingested before queries are served.
	Sources []string `env:"DOCQA_SOURCES" envSeparator:","`
	// TopK is the number of chunks retrieved per question.
	TopK int `env:"DOCQA_TOP_K" envDefault:"7"`
	// MaxContextTokens is the prompt size above which a warning is logged.
	MaxContextTokens int `env:"DOCQA_MAX_CONTEXT_TOKENS" envDefault:"6000"`
	// RemoteSources allows http(s) URLs as sources. Off unless enabled.
	RemoteSources bool `env:"DOCQA_REMOTE_SOURCES"`
}

// IndexSettings configures the persisted index.
type IndexSettings struct {
	// Backend is local or qdrant.
	Backend    string `env:"DOCQA_VECTOR_BACKEND" envDefault:"local"`
	Dir        string `env:"DOCQA_INDEX_DIR" envDefault:"./docqa_index"`
	Collection string `env:"DOCQA_COLLECTION" envDefault:"pdf_content"`
	// EmbedBatchSize is the number of texts per embedding request.
	EmbedBatchSize int `env:"DOCQA_EMBED_BATCH_SIZE" envDefault:"32"`
	// QueryCacheTTL caches query embeddings. Negative disables the cache.
	QueryCacheTTL time.Duration `env:"DOCQA_QUERY_CACHE_TTL" envDefault:"10m"`
	// Checkpoints enables resumable ingestion.
	Checkpoints bool `env:"DOCQA_CHECKPOINTS" envDefault:"true"`
}

// QdrantSettings configures the remote vector engine.
type QdrantSettings struct {
	Host   string `env:"QDRANT_HOST" envDefault:"localhost"`
	Port   int    `env:"QDRANT_PORT" envDefault:"6334"`
	APIKey string `env:"QDRANT_API_KEY"`
	TLS    bool   `env:"QDRANT_TLS"`
}

// ChunkingSettings configures cleaning and splitting.
type ChunkingSettings struct {
	ChunkSize     int `env:"DOCQA_CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap  int `env:"DOCQA_CHUNK_OVERLAP" envDefault:"200"`
	MinLineLength int `env:"DOCQA_MIN_LINE_LENGTH" envDefault:"10"`
}

// ServerSettings configures docqa serve.
type ServerSettings struct {
	Host   string `env:"DOCQA_HOST" envDefault:"127.0.0.1"`
	Port   int    `env:"DOCQA_PORT" envDefault:"8080"`
	APIKey string `env:"DOCQA_API_KEY"`
	// QueryRateLimit is the sustained per-IP rate on POST /api/query in
	// requests per second. Zero disables limiting.
	QueryRateLimit float64 `env:"DOCQA_RATE_LIMIT" envDefault:"5"`
	QueryRateBurst int     `env:"DOCQA_RATE_BURST" envDefault:"10"`
	// IngestRateLimit is the per-IP rate on POST /api/ingest, with its own
	// budget. Zero disables limiting.
	IngestRateLimit float64 `env:"DOCQA_INGEST_RATE_LIMIT" envDefault:"0.05"`
	IngestRateBurst int     `env:"DOCQA_INGEST_RATE_BURST" envDefault:"2"`
	// IngestRoots are the files and directories POST /api/ingest may read.
	// Empty falls back to the local entries of DOCQA_SOURCES.
	IngestRoots []string `env:"DOCQA_INGEST_ROOTS" envSeparator:","`
}

// TracingSettings configures Langfuse.
type TracingSettings struct {
	PublicKey string `env:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `env:"LANGFUSE_SECRET_KEY"`
	Host      string `env:"LANGFUSE_HOST" envDefault:"http://localhost:3000"`
}

// LogSettings configures structured logging.
type LogSettings struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// FromEnv parses Settings from the process environment and checks the values
// that have no sensible fallback.
func FromEnv() (Settings, error) {
	s, err := env.ParseAs[Settings]()
	if err != nil {
		return Settings{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	var errs []error
	switch s.Index.Backend {
	case "local", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("config: DOCQA_VECTOR_BACKEND must be local or qdrant, got %q", s.Index.Backend))
	}
	if s.Index.Collection == "" {
		errs = append(errs, errors.New("config: DOCQA_COLLECTION must not be empty"))
	}
	if s.Chunking.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("config: DOCQA_CHUNK_SIZE must be positive, got %d", s.Chunking.ChunkSize))
	}
	if s.Chunking.ChunkOverlap < 0 || s.Chunking.ChunkOverlap >= s.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("config: DOCQA_CHUNK_OVERLAP must be within [0, %d), got %d",
			s.Chunking.ChunkSize, s.Chunking.ChunkOverlap))
	}
	if s.TopK <= 0 {
		errs = append(errs, fmt.Errorf("config: DOCQA_TOP_K must be positive, got %d", s.TopK))
	}
	return errors.Join(errs...)
}

// LoadDotEnv loads path (default ".env") into the environment. Variables
// that are already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}
