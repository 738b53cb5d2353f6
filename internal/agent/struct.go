package agent

import (
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// QueryState is the per-question state carried through the pipeline. Each
// step returns a new value; a QueryState handed to a caller is never mutated
// afterwards.
type QueryState struct {
	// Question is the user's query text.
	Question string `json:"question"`
	// Context holds the retrieved chunks in retrieval order. Append-only.
	Context []rag.Chunk `json:"context"`
	// Answer is empty until generation completes.
	Answer string `json:"answer"`
}

// withContext returns a copy of s with chunks appended to its context.
func (s QueryState) withContext(chunks []rag.Chunk) QueryState {
	merged := make([]rag.Chunk, 0, len(s.Context)+len(chunks))
	merged = append(merged, s.Context...)
	merged = append(merged, chunks...)
	s.Context = merged
	return s
}

// withAnswer returns a copy of s with the answer set.
func (s QueryState) withAnswer(answer string) QueryState {
	s.Answer = answer
	return s
}

// ContextText joins the context chunk texts with a single space, in
// retrieval order.
func (s QueryState) ContextText() string {
	texts := make([]string, len(s.Context))
	for i, c := range s.Context {
		texts[i] = c.Text
	}
	return strings.Join(texts, " ")
}
