// Package agent answers questions over the index. Each question runs through
// a two-step eino graph: retrieve pulls the top-k chunks from the index store,
// generate formats them with the question into a fixed prompt and asks the
// chat model for an answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/telemetry"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 7

// Graph node names.
const (
	nodeRetrieve = "retrieve"
	nodeGenerate = "generate"
)

const systemPrompt = "You are a helpful agent assisting the user with their query. " +
	"Use the context provided to answer the query."

const userPrompt = `Context: {context}
Question: {question}

Please provide a comprehensive answer to the question based on the context.`

// answerTemplate is the fixed two-field prompt.
var answerTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage(systemPrompt),
	schema.UserMessage(userPrompt),
)

// Retriever returns the top-k chunks for a question. *index.Store satisfies
// it; implementations degrade to an empty result rather than failing.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]rag.Chunk, error)
}

// Config holds the dependencies required to construct an Agent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Index supplies context chunks.
	Index Retriever

	// TopK is the number of chunks retrieved per question.
	// Defaults to DefaultTopK if zero.
	TopK int

	// MaxContextTokens is the estimated prompt size above which a warning is
	// logged. Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// Reporter receives per-question failures. Defaults to a LogReporter.
	Reporter telemetry.Reporter

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Agent runs the retrieve-then-generate pipeline. It is safe for concurrent
// use; every call to Ask works on its own QueryState.
type Agent struct {
	// runnable is the compiled retrieve → generate graph.
	runnable compose.Runnable[QueryState, QueryState]

	chatModel        model.BaseChatModel
	index            Retriever
	topK             int
	maxContextTokens int
	reporter         telemetry.Reporter
	metrics          *telemetry.Metrics
}

// New constructs an Agent from the provided Config.
func New(ctx context.Context, cfg *Config) (*Agent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("agent: Index must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = telemetry.NewLogReporter(nil, cfg.Metrics)
	}

	a := &Agent{
		chatModel:        cfg.ChatModel,
		index:            cfg.Index,
		topK:             topK,
		maxContextTokens: maxCtx,
		reporter:         reporter,
		metrics:          cfg.Metrics,
	}

	g := compose.NewGraph[QueryState, QueryState]()
	if err := g.AddLambdaNode(nodeRetrieve, compose.InvokableLambda(a.retrieve)); err != nil {
		return nil, fmt.Errorf("agent: add %s node: %w", nodeRetrieve, err)
	}
	if err := g.AddLambdaNode(nodeGenerate, compose.InvokableLambda(a.generate)); err != nil {
		return nil, fmt.Errorf("agent: add %s node: %w", nodeGenerate, err)
	}
	for _, edge := range [][2]string{
		{compose.START, nodeRetrieve},
		{nodeRetrieve, nodeGenerate},
		{nodeGenerate, compose.END},
	} {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("agent: add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}

	runnable, err := g.Compile(ctx, compose.WithGraphName("docqa"))
	if err != nil {
		return nil, fmt.Errorf("agent: compile graph: %w", err)
	}
	a.runnable = runnable
	return a, nil
}

// Ask answers question. The returned state carries the retrieved context and
// the answer. Any failure, including a panic inside the pipeline, is returned
// as an error so an interactive caller can report it and keep going.
func (a *Agent) Ask(ctx context.Context, question string) (state QueryState, err error) {
	log := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			state, err = QueryState{}, fmt.Errorf("agent: pipeline panic: %v", r)
		}
		if err != nil {
			a.reporter.Report(ctx, telemetry.OpGenerate, err)
			a.metrics.AnswerObserved(false, 0)
			return
		}
		a.metrics.AnswerObserved(true, len(state.Context))
		log.Debug("question answered",
			slog.Int("context_documents", len(state.Context)),
			slog.Int("answer_chars", len(state.Answer)),
		)
	}()

	state, err = a.runnable.Invoke(ctx, QueryState{Question: question, Context: []rag.Chunk{}})
	if err != nil {
		var gf *rag.GenerationFailure
		if errors.As(err, &gf) {
			return QueryState{}, gf
		}
		return QueryState{}, &rag.GenerationFailure{Err: err}
	}
	return state, nil
}

// retrieve appends the top-k chunks for the question to the context. It never
// fails the pipeline: an empty result still proceeds to generation.
func (a *Agent) retrieve(ctx context.Context, in QueryState) (QueryState, error) {
	chunks, err := a.index.Query(ctx, in.Question, a.topK)
	if err != nil {
		a.reporter.Report(ctx, telemetry.OpQuery, err)
		chunks = nil
	}
	return in.withContext(chunks), nil
}

// generate formats the prompt from the joined context and the question and
// stores the model's text as the answer.
func (a *Agent) generate(ctx context.Context, in QueryState) (QueryState, error) {
	msgs, err := answerTemplate.Format(ctx, map[string]any{
		"context":  in.ContextText(),
		"question": in.Question,
	})
	if err != nil {
		return in, &rag.GenerationFailure{Err: fmt.Errorf("format prompt: %w", err)}
	}

	if est, over := budget.Exceeds(msgs, a.maxContextTokens); over {
		logging.FromContext(ctx).Warn("budget: prompt exceeds the context token budget",
			slog.Int("estimated_tokens", est),
			slog.Int("max_tokens", a.maxContextTokens),
			slog.Int("context_documents", len(in.Context)),
		)
	}

	reply, err := a.chatModel.Generate(ctx, msgs)
	if err != nil {
		return in, &rag.GenerationFailure{Err: err}
	}
	return in.withAnswer(answerText(reply)), nil
}

// answerText extracts the textual payload of a reply, falling back to the
// message's string form when it carries no content.
func answerText(reply *schema.Message) string {
	if reply == nil {
		return ""
	}
	if reply.Content != "" {
		return reply.Content
	}
	return reply.String()
}
