package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"), // 4 overhead + 1 (role) + 2 (content) = 7
		schema.UserMessage("hello world"),
	}
	got := EstimateMessages(msgs)
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	// Two messages: 14
	if got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_Exceeds(t *testing.T) {
	t.Parallel()
	// A 7000-token system prompt is over the default budget.
	big := []*schema.Message{schema.SystemMessage(strings.Repeat("x", 4*7000))}
	est, over := Exceeds(big, DefaultMaxContextTokens)
	if !over {
		t.Errorf("want over budget, estimate %d", est)
	}
	if est <= DefaultMaxContextTokens {
		t.Errorf("estimate %d should exceed %d", est, DefaultMaxContextTokens)
	}

	small := []*schema.Message{schema.UserMessage("what is the refund window?")}
	if _, over := Exceeds(small, DefaultMaxContextTokens); over {
		t.Error("short prompt should fit")
	}
	if _, over := Exceeds(big, 0); over {
		t.Error("zero budget disables the check")
	}
}
