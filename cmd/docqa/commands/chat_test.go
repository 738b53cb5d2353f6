package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/rag"
)

// scriptedAsker answers from a map and records the questions it saw.
type scriptedAsker struct {
	answers   map[string]agent.QueryState
	fail      map[string]error
	questions []string
}

func (s *scriptedAsker) Ask(_ context.Context, q string) (agent.QueryState, error) {
	s.questions = append(s.questions, q)
	if err, ok := s.fail[q]; ok {
		return agent.QueryState{}, err
	}
	return s.answers[q], nil
}

func TestRunREPL_AnswersUntilExit(t *testing.T) {
	t.Parallel()

	qa := &scriptedAsker{answers: map[string]agent.QueryState{
		"What is the refund window?": {
			Answer:  "30 days.",
			Context: []rag.Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		},
	}}
	var out strings.Builder

	err := runREPL(t.Context(), strings.NewReader("What is the refund window?\nEXIT now\nnever asked\n"), &out, qa)
	require.NoError(t, err)

	assert.Equal(t, []string{"What is the refund window?"}, qa.questions)
	assert.Equal(t,
		replPrompt+"Answer: 30 days.\nUsed 3 context documents\n"+replPrompt,
		out.String())
}

func TestRunREPL_ErrorKeepsLooping(t *testing.T) {
	t.Parallel()

	qa := &scriptedAsker{
		answers: map[string]agent.QueryState{"second": {Answer: "ok", Context: []rag.Chunk{}}},
		fail:    map[string]error{"first": &rag.GenerationFailure{Err: errors.New("model offline")}},
	}
	var out strings.Builder

	require.NoError(t, runREPL(t.Context(), strings.NewReader("first\nsecond\nexit\n"), &out, qa))

	got := out.String()
	assert.Contains(t, got, "Error: generation: model offline\n")
	assert.Contains(t, got, "Answer: ok\nUsed 0 context documents\n")
	assert.Equal(t, []string{"first", "second"}, qa.questions)
}

func TestRunREPL_EndOfInputAndBlankLines(t *testing.T) {
	t.Parallel()

	qa := &scriptedAsker{answers: map[string]agent.QueryState{}}
	var out strings.Builder

	require.NoError(t, runREPL(t.Context(), strings.NewReader("\n   \n"), &out, qa))

	assert.Empty(t, qa.questions)
	assert.Equal(t, strings.Repeat(replPrompt, 3)+"\n", out.String())
}

func TestRunREPL_ExitMatchesSubstring(t *testing.T) {
	t.Parallel()

	qa := &scriptedAsker{answers: map[string]agent.QueryState{}}
	var out strings.Builder

	require.NoError(t, runREPL(t.Context(), strings.NewReader("how do I Exit the building?\nnext\n"), &out, qa))
	assert.Empty(t, qa.questions)
}

func TestRunREPL_StopsWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	qa := &scriptedAsker{answers: map[string]agent.QueryState{}}
	var out strings.Builder

	require.NoError(t, runREPL(ctx, strings.NewReader("question\n"), &out, qa))
	assert.Empty(t, qa.questions)
}
