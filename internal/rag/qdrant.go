package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written on every Qdrant point.
const (
	payloadText        = "text"
	payloadFingerprint = "source_fingerprint"
	payloadSourceURI   = "source_uri"
	payloadPage        = "page"
	payloadStartOffset = "start_offset"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Required: Qdrant pins it at collection creation.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	// Keyword index so fingerprint filters do not scan the whole collection.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		FieldName:      payloadFingerprint,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s: %w", payloadFingerprint, err)
	}
	return nil
}

func fingerprintFilter(fingerprint string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadFingerprint, fingerprint)},
	}
}

// AddBatch upserts every entry in one request and waits for it to be applied.
// If the request fails, points already written for the batch's fingerprints
// are removed so no fingerprint is left half-populated.
func (s *QdrantStore) AddBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	want := int(s.cfg.VectorSize)
	points := make([]*qdrant.PointStruct, 0, len(entries))
	fingerprints := make(map[string]struct{})
	for _, e := range entries {
		if len(e.Embedding) != want {
			return &DimensionMismatch{Collection: s.cfg.Collection, Want: want, Got: len(e.Embedding)}
		}
		c := e.Chunk
		fingerprints[c.SourceFingerprint] = struct{}{}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:        c.Text,
				payloadFingerprint: c.SourceFingerprint,
				payloadSourceURI:   c.SourceURI,
				payloadPage:        int64(c.PageNumber),
				payloadStartOffset: int64(c.StartOffset),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err == nil {
		return nil
	}

	for fp := range fingerprints {
		// The caller's context may already be cancelled; roll back regardless.
		_, _ = s.client.Delete(context.WithoutCancel(ctx), &qdrant.DeletePoints{
			CollectionName: s.cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(fingerprintFilter(fp)),
		})
	}
	return fmt.Errorf("qdrant: upsert failed: %w", err)
}

// HasFingerprint counts points matching the fingerprint payload.
func (s *QdrantStore) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         fingerprintFilter(fingerprint),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n > 0, nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("qdrant: topK must be positive, got %d", topK)
	}
	if want := int(s.cfg.VectorSize); len(queryEmbedding) != want {
		return nil, &DimensionMismatch{Collection: s.cfg.Collection, Want: want, Got: len(queryEmbedding)}
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		c := chunkFromPayload(r.GetPayload())
		c.ID = r.GetId().GetUuid()
		c.Score = r.GetScore()
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func chunkFromPayload(p map[string]*qdrant.Value) Chunk {
	return Chunk{
		Text:              p[payloadText].GetStringValue(),
		SourceFingerprint: p[payloadFingerprint].GetStringValue(),
		SourceURI:         p[payloadSourceURI].GetStringValue(),
		PageNumber:        int(p[payloadPage].GetIntegerValue()),
		StartOffset:       int(p[payloadStartOffset].GetIntegerValue()),
	}
}

// Dimension returns the vector size configured on the collection.
func (s *QdrantStore) Dimension(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: collection info failed: %w", err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return int(size), nil
}

// Stats reports the exact point count and vector size.
func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return Stats{}, fmt.Errorf("qdrant: count failed: %w", err)
	}
	dim, err := s.Dimension(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Collection: s.cfg.Collection, Count: int(n), Dimension: dim}, nil
}

// Peek scrolls the first n points of the collection.
func (s *QdrantStore) Peek(ctx context.Context, n int) ([]Chunk, error) {
	if n <= 0 {
		return []Chunk{}, nil
	}
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          qdrant.PtrOf(uint32(n)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}
	chunks := make([]Chunk, 0, len(points))
	for _, p := range points {
		c := chunkFromPayload(p.GetPayload())
		c.ID = p.GetId().GetUuid()
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DeleteCollection drops the collection and recreates it empty.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: delete collection %q: %w", s.cfg.Collection, err)
	}
	return s.ensureCollection(ctx)
}

// Name identifies the store in readiness reports.
func (s *QdrantStore) Name() string { return "qdrant" }

// Ping calls the Qdrant health check endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
