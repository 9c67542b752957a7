package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/builder6/builder6/pkg/config"
	apperrors "github.com/builder6/builder6/pkg/errors"
)

// Fake is a programmable in-memory Client used throughout the test suite
// as the substitute for the production runner. Responses come from a FIFO
// queue, a substring pattern map, and a separate FIFO queue of tool-call
// responses; every prompt is recorded.
type Fake struct {
	mu            sync.Mutex
	cfg           config.LLMConfig
	responses     []string
	patterns      map[string]string
	toolResponses []*Response
	latency       time.Duration
	failure       error
	dispatcher    Dispatcher
	history       []string
}

var _ Client = (*Fake)(nil)

// NewFake returns an empty fake with default configuration.
func NewFake() *Fake {
	return &Fake{
		cfg:      config.Default().LLM,
		patterns: make(map[string]string),
	}
}

// QueueResponse appends a canned text response.
func (f *Fake) QueueResponse(response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response)
}

// QueueToolResponse appends a canned response for GenerateWithTools.
func (f *Fake) QueueToolResponse(response *Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolResponses = append(f.toolResponses, response)
}

// SetPattern maps a prompt substring to a response. Patterns win over the
// FIFO queue.
func (f *Fake) SetPattern(substring, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[substring] = response
}

// SetLatency makes every call sleep for d before responding.
func (f *Fake) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// SetFailure makes every generation call fail with err until cleared.
func (f *Fake) SetFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = err
}

// SetDispatcher wires a tool dispatcher for ExecuteToolCalls.
func (f *Fake) SetDispatcher(d Dispatcher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatcher = d
}

// SetConfig overrides the configuration returned by Config.
func (f *Fake) SetConfig(cfg config.LLMConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

// CallHistory returns a copy of every prompt seen so far.
func (f *Fake) CallHistory() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.history))
	copy(out, f.history)
	return out
}

func (f *Fake) next(prompt string) (string, error) {
	f.mu.Lock()
	f.history = append(f.history, prompt)
	latency := f.latency
	failure := f.failure
	var response string
	found := false
	for substring, canned := range f.patterns {
		if strings.Contains(prompt, substring) {
			response = canned
			found = true
			break
		}
	}
	if !found && len(f.responses) > 0 {
		response = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if failure != nil {
		return "", failure
	}
	return response, nil
}

func (f *Fake) Config() config.LLMConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *Fake) GenerateContent(_ context.Context, prompt string) (string, error) {
	return f.next(prompt)
}

func (f *Fake) GenerateResponse(_ context.Context, prompt string) (*Response, error) {
	content, err := f.next(prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Content: content, Provider: "fake", Model: "fake-model"}, nil
}

func (f *Fake) GenerateJSON(_ context.Context, prompt string) (any, error) {
	content, err := f.next(prompt)
	if err != nil {
		return nil, err
	}
	return ParseJSONContent(content)
}

func (f *Fake) GenerateWithTools(_ context.Context, prompt string) (*Response, error) {
	f.mu.Lock()
	if len(f.toolResponses) > 0 {
		response := f.toolResponses[0]
		f.toolResponses = f.toolResponses[1:]
		f.history = append(f.history, prompt)
		latency := f.latency
		failure := f.failure
		f.mu.Unlock()
		if latency > 0 {
			time.Sleep(latency)
		}
		if failure != nil {
			return nil, failure
		}
		return response, nil
	}
	f.mu.Unlock()

	content, err := f.next(prompt)
	if err != nil {
		return nil, err
	}
	return &Response{Content: content, Provider: "fake", Model: "fake-model"}, nil
}

// ExecuteToolCalls mirrors the production runner: dispatch failures become
// {"error": message} payloads instead of aborting the batch.
func (f *Fake) ExecuteToolCalls(ctx context.Context, calls []ToolCall) ([]ToolResult, error) {
	f.mu.Lock()
	dispatcher := f.dispatcher
	f.mu.Unlock()
	if dispatcher == nil {
		return nil, apperrors.Newf(apperrors.ErrCodeInternal, "no tool dispatcher configured")
	}
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		value, err := dispatcher.ExecuteTool(ctx, call.Name, call.Arguments)
		if err != nil {
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
