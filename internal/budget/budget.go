// Package budget estimates prompt sizes. Generation backends use different
// tokenizers, so the estimate is a conservative character heuristic:
// 1 token ≈ 4 characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens fits the prompt of seven 1000-character chunks
	// plus the question within an 8k-context model with room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Exceeds reports the estimate for msgs and whether it is above maxTokens.
// A non-positive maxTokens never exceeds.
func Exceeds(msgs []*schema.Message, maxTokens int) (int, bool) {
	est := EstimateMessages(msgs)
	return est, maxTokens > 0 && est > maxTokens
}
