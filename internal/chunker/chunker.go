// Package chunker turns a source document into retrieval chunks: it loads the
// document page by page, cleans each page, tags it with the document
// fingerprint, and splits it into overlapping chunks with recorded offsets.
package chunker

import (
	"context"
	"fmt"
	"maps"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Metadata keys set on the schema.Documents flowing through the chunker.
const (
	MetaSourceURI   = "source_uri"
	MetaFingerprint = "source_fingerprint"
	MetaPage        = "page"
	MetaStartOffset = "start_offset"
)

// Config controls cleaning and splitting.
type Config struct {
	// ChunkSize is the maximum chunk length in characters. Defaults to 1000.
	ChunkSize int

	// ChunkOverlap is how many characters consecutive chunks may share.
	// Defaults to 200.
	ChunkOverlap int

	// MinLineLength drops cleaned lines with this many characters or fewer.
	// Defaults to 10.
	MinLineLength int

	// Separators overrides DefaultSeparators.
	Separators []string
}

// Chunker implements load-and-split over an eino document.Loader.
type Chunker struct {
	loader   document.Loader
	splitter *Splitter
	cfg      Config
}

// New returns a Chunker. A nil loader uses NewLoader(ExecRunner{}).
func New(cfg Config, loader document.Loader) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.MinLineLength == 0 {
		cfg.MinLineLength = 10
	}
	if loader == nil {
		loader = NewLoader(ExecRunner{})
	}
	return &Chunker{
		loader:   loader,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators),
		cfg:      cfg,
	}
}

// Fingerprint returns the fingerprint LoadAndSplit stamps on the chunks of
// source, without loading it.
func (c *Chunker) Fingerprint(source string) string {
	return Fingerprint(source)
}

// LoadAndSplit produces the chunks of source. Load failures are returned as
// *rag.LoadFailure. A document with no text after cleaning yields no chunks.
func (c *Chunker) LoadAndSplit(ctx context.Context, source string) ([]rag.Chunk, error) {
	pages, err := c.loader.Load(ctx, document.Source{URI: source})
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(source)
	blocks := make([]*schema.Document, 0, len(pages))
	for _, page := range pages {
		text := Clean(page.Content, c.cfg.MinLineLength)
		if text == "" {
			continue
		}
		meta := make(map[string]any, len(page.MetaData)+2)
		maps.Copy(meta, page.MetaData)
		meta[MetaFingerprint] = fingerprint
		meta[MetaSourceURI] = source
		blocks = append(blocks, &schema.Document{ID: page.ID, Content: text, MetaData: meta})
	}

	docs, err := c.splitter.Transform(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("chunker: split %s: %w", source, err)
	}

	chunks := make([]rag.Chunk, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, rag.Chunk{
			Text:              d.Content,
			SourceFingerprint: fingerprint,
			SourceURI:         source,
			StartOffset:       metaInt(d.MetaData, MetaStartOffset),
			PageNumber:        metaInt(d.MetaData, MetaPage),
		})
	}
	return chunks, nil
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
