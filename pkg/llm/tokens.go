package llm

import (
	"strings"

	apperrors "github.com/builder6/builder6/pkg/errors"
)

// defaultTokenLimit applies when the model is not in the limit table.
const defaultTokenLimit = 100000

// tokenLimits maps model-name prefixes to context-window limits. Lookup
// picks the longest matching prefix so gemini-1.5-pro wins over gemini-1.5.
var tokenLimits = map[string]int{
	"gemini-1.5-pro": 2097152,
	"gemini-1.5":     1048576,
	"gemini-pro":     32760,
	"gpt-4o-mini":    128000,
	"gpt-4o":         128000,
	"gpt-4-turbo":    128000,
	"gpt-4":          8192,
	"gpt-3.5-turbo":  16385,
	"claude-3":       200000,
}

// TokenLimit returns the limit for the model name, falling back to
// defaultTokenLimit for unknown models.
func TokenLimit(model string) int {
	best := ""
	for prefix := range tokenLimits {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultTokenLimit
	}
	return tokenLimits[best]
}

// CountTokens approximates the token count of a prompt at one token per
// four characters, rounded up. None of the pinned provider SDKs expose a
// local tokenizer, so the approximation applies uniformly.
func CountTokens(prompt string) int {
	return (len(prompt) + 3) / 4
}

// validatePromptSize fails with PromptTooLarge when the prompt exceeds the
// model's limit. It returns the counted tokens and whether the prompt is
// above the 80% warning threshold.
func validatePromptSize(prompt, model string) (tokens int, nearLimit bool, err error) {
	tokens = CountTokens(prompt)
	limit := TokenLimit(model)
	if tokens > limit {
		return tokens, false, apperrors.Newf(apperrors.ErrCodePromptTooLarge,
			"Prompt too large: %d tokens exceeds %s limit of %d tokens", tokens, model, limit)
	}
	return tokens, float64(tokens) > 0.8*float64(limit), nil
}
