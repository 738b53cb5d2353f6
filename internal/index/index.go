// Package index is the persistent, deduplicated store of embedded chunks.
// It sits between the chunker, the embedding model and a rag.VectorStore:
// ingestion is idempotent per document fingerprint, all-or-nothing, and
// resumable through checkpoints; queries never fail, they degrade to an empty
// result and report the cause.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/telemetry"
)

const (
	// DefaultEmbedBatchSize is the number of chunk texts sent per Embed call.
	DefaultEmbedBatchSize = 32
	// DefaultQueryCacheTTL bounds how long a query embedding is reused.
	DefaultQueryCacheTTL = 10 * time.Minute
)

var (
	// ErrMixedSources is returned by Ingest when the chunks do not all share
	// one source fingerprint.
	ErrMixedSources = errors.New("index: chunks belong to more than one source")
	// ErrInvalidTopK is returned by Query for k <= 0.
	ErrInvalidTopK = errors.New("index: k must be positive")
	// ErrNoProducer is returned by IngestSource when no ChunkProducer is set.
	ErrNoProducer = errors.New("index: no chunk producer configured")
)

// entryNamespace scopes the name-based entry IDs.
var entryNamespace = uuid.MustParse("5b0c6f5e-8f0a-4a4e-9a51-0d0c9a7e2f11")

// ChunkProducer turns a source path into chunks. *chunker.Chunker satisfies it.
type ChunkProducer interface {
	// Fingerprint returns the fingerprint the produced chunks will carry.
	Fingerprint(source string) string
	// LoadAndSplit loads and chunks source.
	LoadAndSplit(ctx context.Context, source string) ([]rag.Chunk, error)
}

// Config wires a Store. VectorStore and Embedder are required.
type Config struct {
	VectorStore rag.VectorStore
	Embedder    rag.Embedder

	// Producer is used by IngestSource. Optional.
	Producer ChunkProducer
	// Checkpoints enables resumable ingestion. Optional.
	Checkpoints store.CheckpointStore
	// Reporter receives absorbed failures. Defaults to a LogReporter.
	Reporter telemetry.Reporter
	// Metrics is optional.
	Metrics *telemetry.Metrics

	// Collection names the collection in errors and logs.
	Collection string
	// Dimension, when non-zero, is the embedding dimension the model is
	// expected to produce.
	Dimension int
	// EmbedBatchSize defaults to DefaultEmbedBatchSize.
	EmbedBatchSize int
	// QueryCacheTTL defaults to DefaultQueryCacheTTL. Negative disables the cache.
	QueryCacheTTL time.Duration
}

// Store is the index store. It is safe for concurrent use: adding a
// document's entries and deleting the collection take the write lock, queries
// the read lock.
type Store struct {
	vs          rag.VectorStore
	emb         rag.Embedder
	producer    ChunkProducer
	checkpoints store.CheckpointStore
	reporter    telemetry.Reporter
	metrics     *telemetry.Metrics
	queryCache  *cache.Cache

	collection string
	dimension  int
	batchSize  int

	mu sync.RWMutex
}

// New returns a Store for cfg.
func New(cfg Config) (*Store, error) {
	if cfg.VectorStore == nil {
		return nil, errors.New("index: vector store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.QueryCacheTTL == 0 {
		cfg.QueryCacheTTL = DefaultQueryCacheTTL
	}
	if cfg.Reporter == nil {
		cfg.Reporter = telemetry.NewLogReporter(nil, cfg.Metrics)
	}

	s := &Store{
		vs:          cfg.VectorStore,
		emb:         cfg.Embedder,
		producer:    cfg.Producer,
		checkpoints: cfg.Checkpoints,
		reporter:    cfg.Reporter,
		metrics:     cfg.Metrics,
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		batchSize:   cfg.EmbedBatchSize,
	}
	if cfg.QueryCacheTTL > 0 {
		s.queryCache = cache.New(cfg.QueryCacheTTL, 2*cfg.QueryCacheTTL)
	}
	return s, nil
}

// Exists reports whether any entry carries fingerprint. Store errors are
// reported and answered with false.
func (s *Store) Exists(ctx context.Context, fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(ctx, fingerprint)
}

func (s *Store) exists(ctx context.Context, fingerprint string) bool {
	found, err := s.vs.HasFingerprint(ctx, fingerprint)
	if err != nil {
		s.reporter.Report(ctx, telemetry.OpExists, &rag.StoreFailure{Op: telemetry.OpExists, Err: err})
		return false
	}
	return found
}

// IngestSource chunks source with the configured producer and ingests the
// result. An already indexed source is skipped without loading it. A source
// that cannot be loaded is reported and counts as zero chunks.
func (s *Store) IngestSource(ctx context.Context, source string) (int, error) {
	if s.producer == nil {
		return 0, ErrNoProducer
	}
	if s.Exists(ctx, s.producer.Fingerprint(source)) {
		return 0, nil
	}
	chunks, err := s.producer.LoadAndSplit(ctx, source)
	if err != nil {
		if errors.Is(err, rag.ErrLoad) {
			s.reporter.Report(ctx, telemetry.OpLoad, err)
			return 0, nil
		}
		return 0, err
	}
	return s.Ingest(ctx, chunks)
}

// Ingest embeds and persists the chunks of one document and returns the
// number of entries added. A document whose fingerprint is already present
// is skipped with no embedding calls. Every embedding is checked against the
// collection dimension before anything is written, and all entries are added
// in one atomic batch.
//
// Embedding runs without holding the store lock, so queries are served while
// a document is being embedded. The presence and dimension checks are
// repeated under the write lock right before the batch is added; a document
// indexed concurrently in the meantime is skipped.
//
// Embedded batches are checkpointed when a CheckpointStore is configured, so
// an ingest interrupted by cancellation or a failure resumes where it
// stopped. Cancellation is honoured between embedding batches.
func (s *Store) Ingest(ctx context.Context, chunks []rag.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	fingerprint := chunks[0].SourceFingerprint
	for _, c := range chunks[1:] {
		if c.SourceFingerprint != fingerprint {
			return 0, ErrMixedSources
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	indexed := s.exists(ctx, fingerprint)
	want, err := s.pinnedDimension(ctx)
	s.mu.RUnlock()
	if indexed {
		s.metrics.ChunksSkipped(len(chunks))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	vectors, err := s.embedAll(ctx, fingerprint, chunks, want)
	if err != nil {
		return 0, err
	}

	entries := make([]rag.Entry, len(chunks))
	for i, c := range chunks {
		c.ID = entryID(fingerprint, c, i)
		c.Score = 0
		entries[i] = rag.Entry{Chunk: c, Embedding: vectors[i]}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exists(ctx, fingerprint) {
		s.clearCheckpoints(ctx, fingerprint)
		s.metrics.ChunksSkipped(len(chunks))
		return 0, nil
	}
	pinned, err := s.pinnedDimension(ctx)
	if err != nil {
		return 0, err
	}
	if got := len(vectors[0]); pinned != 0 && got != pinned {
		return 0, &rag.DimensionMismatch{Collection: s.collection, Want: pinned, Got: got}
	}
	if err := s.vs.AddBatch(ctx, entries); err != nil {
		var dm *rag.DimensionMismatch
		if errors.As(err, &dm) {
			return 0, err
		}
		return 0, &rag.StoreFailure{Op: "add", Err: err}
	}

	s.clearCheckpoints(ctx, fingerprint)
	s.metrics.ChunksAdded(len(entries))
	return len(entries), nil
}

// pinnedDimension returns the dimension new entries must have: the
// collection's when it holds entries, else the configured one (0 when
// neither is known). A configured dimension that disagrees with a non-empty
// collection is a mismatch.
func (s *Store) pinnedDimension(ctx context.Context) (int, error) {
	want, err := s.vs.Dimension(ctx)
	if err != nil {
		return 0, &rag.StoreFailure{Op: "dimension", Err: err}
	}
	if want == 0 {
		return s.dimension, nil
	}
	if s.dimension != 0 && s.dimension != want {
		return 0, &rag.DimensionMismatch{Collection: s.collection, Want: want, Got: s.dimension}
	}
	return want, nil
}

func (s *Store) clearCheckpoints(ctx context.Context, fingerprint string) {
	if s.checkpoints == nil {
		return
	}
	if err := s.checkpoints.Clear(ctx, fingerprint); err != nil {
		s.reporter.Report(ctx, telemetry.OpIngest, err)
	}
}

// embedAll returns one vector per chunk, reusing checkpointed vectors whose
// chunk text is unchanged and embedding the rest batch by batch.
func (s *Store) embedAll(ctx context.Context, fingerprint string, chunks []rag.Chunk, want int) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	if s.checkpoints != nil {
		staged, err := s.checkpoints.Load(ctx, fingerprint)
		if err != nil {
			s.reporter.Report(ctx, telemetry.OpIngest, err)
		}
		for pos, st := range staged {
			if pos < 0 || pos >= len(chunks) || st.TextHash != store.TextHash(chunks[pos].Text) {
				continue
			}
			if want != 0 && len(st.Embedding) != want {
				continue
			}
			vectors[pos] = st.Embedding
		}
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+s.batchSize, len(chunks))

		var (
			texts   []string
			missing []int
		)
		for i := start; i < end; i++ {
			if vectors[i] == nil {
				texts = append(texts, chunks[i].Text)
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 {
			continue
		}

		got, err := s.emb.Embed(ctx, texts)
		if err != nil {
			s.reporter.Report(ctx, telemetry.OpEmbed, err)
			return nil, fmt.Errorf("index: embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(got) != len(texts) {
			return nil, fmt.Errorf("index: embedder returned %d vectors for %d texts", len(got), len(texts))
		}
		for j, vec := range got {
			if len(vec) == 0 {
				return nil, fmt.Errorf("index: embedder returned an empty vector for chunk %d", missing[j])
			}
			if want == 0 {
				want = len(vec)
			}
			if len(vec) != want {
				return nil, &rag.DimensionMismatch{Collection: s.collection, Want: want, Got: len(vec)}
			}
			vectors[missing[j]] = vec
		}
		s.metrics.TextsEmbedded(len(texts))

		if s.checkpoints != nil {
			batchTexts := make([]string, 0, end-start)
			for i := start; i < end; i++ {
				batchTexts = append(batchTexts, chunks[i].Text)
			}
			if err := s.checkpoints.SaveBatch(ctx, fingerprint, start, batchTexts, vectors[start:end]); err != nil {
				s.reporter.Report(ctx, telemetry.OpIngest, err)
			}
		}
	}
	return vectors, nil
}

// entryID derives a stable ID from the chunk's position in its document.
func entryID(fingerprint string, c rag.Chunk, ordinal int) string {
	name := fmt.Sprintf("%s/%d/%d/%d", fingerprint, c.PageNumber, c.StartOffset, ordinal)
	return uuid.NewSHA1(entryNamespace, []byte(name)).String()
}

// Query returns at most k chunks ordered by descending similarity to text.
// All chunks are returned when k exceeds the collection size. Embedding and
// store failures are reported and yield an empty result with a nil error.
func (s *Store) Query(ctx context.Context, text string, k int) ([]rag.Chunk, error) {
	if k <= 0 {
		return nil, ErrInvalidTopK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	defer func() { s.metrics.QueryObserved(time.Since(start).Seconds()) }()

	vec, err := s.embedQuery(ctx, text)
	if err != nil {
		s.reporter.Report(ctx, telemetry.OpEmbed, err)
		return []rag.Chunk{}, nil
	}
	results, err := s.vs.Search(ctx, vec, k)
	if err != nil {
		s.reporter.Report(ctx, telemetry.OpQuery, &rag.StoreFailure{Op: telemetry.OpQuery, Err: err})
		return []rag.Chunk{}, nil
	}
	if results == nil {
		results = []rag.Chunk{}
	}
	return results, nil
}

func (s *Store) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.queryCache != nil {
		if v, ok := s.queryCache.Get(text); ok {
			return v.([]float32), nil
		}
	}
	vecs, err := s.emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("index: embedder returned %d vectors for 1 query", len(vecs))
	}
	if s.queryCache != nil {
		s.queryCache.SetDefault(text, vecs[0])
	}
	return vecs[0], nil
}

// DeleteCollection removes every entry and the pinned dimension, and drops
// any ingestion checkpoints.
func (s *Store) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.vs.DeleteCollection(ctx); err != nil {
		return &rag.StoreFailure{Op: telemetry.OpDelete, Err: err}
	}
	if s.checkpoints != nil {
		if err := s.checkpoints.ClearAll(ctx); err != nil {
			s.reporter.Report(ctx, telemetry.OpDelete, err)
		}
	}
	return nil
}

// Stats returns the collection's entry count and dimension.
func (s *Store) Stats(ctx context.Context) (rag.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.vs.Stats(ctx)
	if err != nil {
		return rag.Stats{}, &rag.StoreFailure{Op: "stats", Err: err}
	}
	return st, nil
}

// Peek returns up to n stored chunks.
func (s *Store) Peek(ctx context.Context, n int) ([]rag.Chunk, error) {
	if n <= 0 {
		return []rag.Chunk{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, err := s.vs.Peek(ctx, n)
	if err != nil {
		return nil, &rag.StoreFailure{Op: "peek", Err: err}
	}
	return chunks, nil
}
