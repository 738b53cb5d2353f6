// Package rag defines the shared types and backend interfaces of the
// retrieval pipeline: chunks, index entries, vector storage, and embedding.
// Concrete engines (local SQLite, Qdrant) satisfy VectorStore so the index
// and agent layers never depend on a specific backend.
package rag

import (
	"context"
)

// Chunk is a contiguous span of cleaned document text, the unit of retrieval.
type Chunk struct {
	// ID is the stable entry identifier assigned at ingest time.
	// Empty for chunks that have not been indexed yet.
	ID string

	// Text is the chunk content. Never empty for a produced chunk.
	Text string

	// SourceFingerprint identifies the document this chunk was cut from.
	SourceFingerprint string

	// SourceURI is the path the document was loaded from.
	SourceURI string

	// StartOffset is the character offset of Text within the cleaned page text.
	StartOffset int

	// PageNumber is the 1-based page the chunk came from, 0 for unpaginated sources.
	PageNumber int

	// Score is the similarity assigned during a query. Zero when not computed.
	Score float32
}

// Entry pairs a chunk with its embedding. Entries are immutable once added.
type Entry struct {
	Chunk     Chunk
	Embedding []float32
}

// Stats summarises the contents of a collection.
type Stats struct {
	// Collection is the collection name.
	Collection string

	// Count is the number of entries stored.
	Count int

	// Dimension is the pinned embedding dimension, 0 while the collection is empty.
	Dimension int
}

// VectorStore is the vector engine contract: batch add, existence by
// fingerprint, similarity search and collection removal.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// AddBatch persists all entries atomically. Either every entry becomes
	// visible or none does. Returns *DimensionMismatch when a vector does not
	// match the collection's pinned dimension.
	AddBatch(ctx context.Context, entries []Entry) error

	// HasFingerprint reports whether any entry carries the given fingerprint.
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)

	// Search returns at most topK chunks ordered by descending cosine similarity.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Chunk, error)

	// Dimension returns the pinned embedding dimension, 0 when none is pinned.
	Dimension(ctx context.Context) (int, error)

	// Stats returns the entry count and dimension of the collection.
	Stats(ctx context.Context) (Stats, error)

	// Peek returns up to n stored chunks in insertion order.
	Peek(ctx context.Context, n int) ([]Chunk, error)

	// DeleteCollection removes every entry and the pinned dimension.
	DeleteCollection(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
