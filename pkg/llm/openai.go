package llm

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// openAIChat captures the subset of the go-openai client used by the
// adapter.
type openAIChat interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider on the OpenAI Chat Completions API.
type OpenAIProvider struct {
	chat  openAIChat
	model string
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider using the default go-openai HTTP
// client. An empty model selects gpt-4o.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{chat: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIProvider) Name() string      { return "openai" }
func (p *OpenAIProvider) ModelName() string { return p.model }

// Generate issues one chat completion round-trip.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	request := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.JSONPrefill {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	_, provToCanon := buildNameMaps(opts.Tools)
	for _, def := range opts.Tools {
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, err
		}
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        sanitizeToolName(def.Name),
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}

	completion, err := p.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Provider: p.Name(),
		Model:    p.model,
		Usage: &Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
			TotalTokens:  completion.Usage.TotalTokens,
		},
	}
	if len(completion.Choices) == 0 {
		return resp, nil
	}

	choice := completion.Choices[0]
	resp.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"raw": tc.Function.Arguments}
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      canonicalToolName(provToCanon, tc.Function.Name),
			Arguments: args,
		})
	}
	return resp, nil
}
