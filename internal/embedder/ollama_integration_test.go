//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

// TestOllamaEmbedder_Integration embeds a question and two passages against a
// locally running Ollama and checks the related passage ranks higher.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model, UserAgent: "docqa-go-test"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"What is the refund policy?",
		"Customers may request a full refund within 30 days of purchase.",
		"The warehouse is located next to the river and opens at 8am.",
	}
	vecs, err := emb.Embed(ctx, texts)
	require.NoError(t, err, "ensure Ollama is running and %q is pulled", model)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		require.NotEmpty(t, v, "embedding[%d]", i)
	}

	related := rag.CosineSimilarity(vecs[0], vecs[1])
	unrelated := rag.CosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	t.Logf("model=%s dim=%d related=%.3f unrelated=%.3f", model, len(vecs[0]), related, unrelated)
}
