// Package budget provides token budget estimation and prompt trimming for
// question answering. Because several LLM backends with different tokenizers
// are supported, it uses a conservative character heuristic of roughly
// 4 characters per token.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Fits within 8k-context models while leaving room for the answer.
	DefaultMaxContextTokens = 6000

	// messageOverhead approximates the per-message framing cost in chat APIs.
	messageOverhead = 4
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

// TrimPassages keeps the longest prefix of passages (best-ranked first) whose
// estimated size, plus fixedTokens and sepTokens between passages, fits within
// maxTokens. Lower-ranked passages are dropped first.
//
// The best passage is always kept; if it alone overflows the budget it is
// truncated to the remaining room so the model still gets some evidence.
// A non-positive maxTokens disables trimming.
func TrimPassages(fixedTokens, sepTokens int, passages []string, maxTokens int) []string {
	if maxTokens <= 0 || len(passages) == 0 {
		return passages
	}

	used := fixedTokens
	kept := 0
	for i, p := range passages {
		cost := Estimate(p)
		if i > 0 {
			cost += sepTokens
		}
		if used+cost > maxTokens {
			break
		}
		used += cost
		kept++
	}
	if kept > 0 {
		return passages[:kept]
	}

	room := maxTokens - fixedTokens
	if room < 1 {
		room = 1
	}
	return []string{truncateRunes(passages[0], room*charsPerToken)}
}

// truncateRunes cuts s to at most maxBytes bytes without splitting a rune.
func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
