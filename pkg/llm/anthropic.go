package llm

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-sonnet-latest"
	defaultAnthropicMaxTokens = 4096
)

// anthropicMessages captures the subset of the Anthropic SDK used by the
// adapter. It is satisfied by *sdk.MessageService so tests can pass a mock.
type anthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicProvider implements Provider on the Claude Messages API.
type AnthropicProvider struct {
	messages anthropicMessages
	model    string
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider builds a provider using the default Anthropic HTTP
// client. An empty model selects the default Claude model.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{messages: &client.Messages, model: model}
}

func (p *AnthropicProvider) Name() string      { return "anthropic" }
func (p *AnthropicProvider) ModelName() string { return p.model }

// Generate issues one Messages.New round-trip. When JSONPrefill is set the
// assistant turn is prefilled with "{" and the brace is re-prepended to
// the response so the caller always sees a parseable object.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	msgs := []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))}
	if opts.JSONPrefill {
		msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock("{")))
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  msgs,
	}

	_, provToCanon := buildNameMaps(opts.Tools)
	if len(opts.Tools) > 0 {
		toolParams := make([]sdk.ToolUnionParam, 0, len(opts.Tools))
		for _, def := range opts.Tools {
			schema := sdk.ToolInputSchemaParam{ExtraFields: def.Parameters}
			u := sdk.ToolUnionParamOfTool(schema, sanitizeToolName(def.Name))
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(def.Description)
			}
			toolParams = append(toolParams, u)
		}
		params.Tools = toolParams
	}

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &Response{Provider: p.Name(), Model: p.model}
	var content strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.Text)
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{"raw": string(block.Input)}
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      canonicalToolName(provToCanon, block.Name),
				Arguments: args,
			})
		}
	}
	resp.Content = content.String()
	if opts.JSONPrefill && resp.Content != "" {
		resp.Content = "{" + resp.Content
	}

	resp.Usage = &Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp, nil
}
