package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/builder6/builder6/internal/metrics"
	"github.com/builder6/builder6/pkg/config"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

// Runner drives a Provider with prompt-size validation, retry for
// transient upstream failure, and tool-call dispatch through the
// registered Dispatcher.
type Runner struct {
	provider   Provider
	dispatcher Dispatcher
	cfg        config.LLMConfig
	log        logr.Logger

	// sleep is a seam for tests; production uses sleepContext.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Client = (*Runner)(nil)

// NewRunner builds a runner for the provider. dispatcher may be nil when
// tool calling is not used.
func NewRunner(provider Provider, dispatcher Dispatcher, cfg config.LLMConfig, log logr.Logger) *Runner {
	return &Runner{
		provider:   provider,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		sleep:      sleepContext,
	}
}

// Config returns the runner's configuration.
func (r *Runner) Config() config.LLMConfig {
	return r.cfg
}

func (r *Runner) generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	model := r.provider.ModelName()
	tokens, nearLimit, err := validatePromptSize(prompt, model)
	if err != nil {
		metrics.ModelRequests.WithLabelValues(r.provider.Name(), "rejected").Inc()
		return nil, err
	}
	if nearLimit {
		r.log.Info("prompt approaching token limit",
			"tokens", tokens, "model", model, "limit", TokenLimit(model))
	}

	resp, err := r.withRetry(ctx, func() (*Response, error) {
		return r.provider.Generate(ctx, prompt, opts)
	})
	if err != nil {
		metrics.ModelRequests.WithLabelValues(r.provider.Name(), "error").Inc()
		return nil, err
	}
	metrics.ModelRequests.WithLabelValues(r.provider.Name(), "ok").Inc()
	return resp, nil
}

// GenerateContent returns the plain text completion for the prompt.
func (r *Runner) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := r.generate(ctx, prompt, GenerateOptions{})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateResponse returns the full universal response for the prompt.
func (r *Runner) GenerateResponse(ctx context.Context, prompt string) (*Response, error) {
	return r.generate(ctx, prompt, GenerateOptions{})
}

// GenerateJSON asks the model for structured output and returns the parsed
// value. Markdown code fences around the payload are stripped before
// parsing. On the Anthropic provider the assistant turn is prefilled with
// "{" to anchor the output to a JSON object.
func (r *Runner) GenerateJSON(ctx context.Context, prompt string) (any, error) {
	resp, err := r.generate(ctx, prompt, GenerateOptions{JSONPrefill: true})
	if err != nil {
		return nil, err
	}
	return ParseJSONContent(resp.Content)
}

// GenerateWithTools advertises the dispatcher's tool declarations and
// returns content and any tool calls the model produced.
func (r *Runner) GenerateWithTools(ctx context.Context, prompt string) (*Response, error) {
	var defs []ToolDefinition
	if r.dispatcher != nil {
		defs = r.dispatcher.Declarations()
	}
	return r.generate(ctx, prompt, GenerateOptions{Tools: defs})
}

// ExecuteToolCalls dispatches every call through the registry. A failed
// dispatch yields a {"error": message} result payload; it never aborts
// the batch.
func (r *Runner) ExecuteToolCalls(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	if r.dispatcher == nil {
		return nil, apperrors.Newf(apperrors.ErrCodeInternal, "no tool dispatcher configured")
	}
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		value, err := r.dispatcher.ExecuteTool(ctx, call.Name, call.Arguments)
		if err != nil {
			r.log.V(1).Info("tool dispatch failed", "tool", call.Name, "error", err.Error())
			results = append(results, ToolResult{
				ToolCallID: call.ID,
				Result:     map[string]any{"error": err.Error()},
			})
			continue
		}
		results = append(results, ToolResult{ToolCallID: call.ID, Result: value})
	}
	return results, nil
}

// ParseJSONContent parses model output as JSON, stripping a surrounding
// markdown code fence when present.
func ParseJSONContent(content string) (any, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to parse JSON response", err)
	}
	return value, nil
}
