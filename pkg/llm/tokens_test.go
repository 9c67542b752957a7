package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenLimitKnownModels(t *testing.T) {
	tests := []struct {
		model string
		limit int
	}{
		{"gemini-1.5-pro", 2097152},
		{"gemini-1.5-flash", 1048576},
		{"gemini-pro", 32760},
		{"gpt-4o", 128000},
		{"gpt-4o-mini", 128000},
		{"gpt-4-turbo", 128000},
		{"gpt-4", 8192},
		{"gpt-3.5-turbo", 16385},
		{"claude-3-opus-20240229", 200000},
		{"claude-3-5-sonnet-latest", 200000},
		{"totally-unknown-model", 100000},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.limit, TokenLimit(tt.model))
		})
	}
}

func TestTokenLimitLongestPrefixWins(t *testing.T) {
	// gemini-1.5-pro must not fall into the shorter gemini-1.5 bucket.
	assert.Equal(t, 2097152, TokenLimit("gemini-1.5-pro-002"))
	assert.Equal(t, 128000, TokenLimit("gpt-4o-2024-08-06"))
}

func TestCountTokensRoundsUp(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 1, CountTokens("a"))
	assert.Equal(t, 1, CountTokens("abcd"))
	assert.Equal(t, 2, CountTokens("abcde"))
}

func TestValidatePromptSize(t *testing.T) {
	_, near, err := validatePromptSize("short prompt", "gpt-4")
	assert.NoError(t, err)
	assert.False(t, near)

	// 30000 chars is 7500 tokens, above 80% of gpt-4's 8192.
	_, near, err = validatePromptSize(string(make([]byte, 30000)), "gpt-4")
	assert.NoError(t, err)
	assert.True(t, near)
}
