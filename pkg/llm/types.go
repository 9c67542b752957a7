// Package llm provides a provider-agnostic model runner with token
// budgeting, prompt-size validation and retry for transient upstream
// failure. Three provider families are supported: Gemini, OpenAI and
// Anthropic.
package llm

import (
	"context"

	"github.com/builder6/builder6/pkg/config"
)

// ToolDefinition declares a tool the model may call. Parameters is a
// JSON-schema-shaped object with type, properties and an optional
// required list. The shape is identical across providers; each provider
// adapter maps it into its native tool description.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult correlates a dispatch outcome back to its tool call. Result
// carries either the tool's return value or a {"error": message} map when
// the dispatch failed.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Result     any    `json:"result"`
}

// Usage reports token consumption for one generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the universal generation result shared by all providers.
type Response struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// GenerateOptions carries per-call generation parameters.
type GenerateOptions struct {
	// Tools, when non-empty, is advertised to the model.
	Tools []ToolDefinition
	// JSONPrefill forces the response to start with "{" on providers that
	// support assistant-turn prefill (Anthropic). Other providers ignore it.
	JSONPrefill bool
}

// Provider is the narrow waist between the runner and a model service.
type Provider interface {
	// Name returns the provider family identifier (gemini, openai, anthropic).
	Name() string
	// ModelName returns the concrete model identifier requests are sent to.
	ModelName() string
	// Generate issues one generation round-trip.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error)
}

// Dispatcher executes a named tool with its argument map. The tool
// registry implements it.
type Dispatcher interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error)
	Declarations() []ToolDefinition
}

// Client is the runner surface consumed by the orchestrator. Runner is
// the production implementation; Fake is the test substitute.
type Client interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GenerateResponse(ctx context.Context, prompt string) (*Response, error)
	GenerateJSON(ctx context.Context, prompt string) (any, error)
	GenerateWithTools(ctx context.Context, prompt string) (*Response, error)
	ExecuteToolCalls(ctx context.Context, calls []ToolCall) ([]ToolResult, error)
	Config() config.LLMConfig
}
