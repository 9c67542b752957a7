package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	apperrors "github.com/builder6/builder6/pkg/errors"
)

const defaultGeminiModel = "gemini-1.5-pro"

// GeminiProvider implements Provider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider builds a provider for the Gemini API. An empty model
// selects gemini-1.5-pro.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, apperrors.Newf(apperrors.ErrCodeInternal, "Gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "failed to create Gemini client", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string      { return "gemini" }
func (p *GeminiProvider) ModelName() string { return p.model }

// Generate issues one GenerateContent round-trip. Gemini has no assistant
// prefill; JSONPrefill only switches the response MIME type to JSON.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Response, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.JSONPrefill && len(opts.Tools) == 0 {
		cfg.ResponseMIMEType = "application/json"
	}
	if len(opts.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(opts.Tools))
		for _, def := range opts.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  convertSchema(def.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	return convertGeminiResponse(result, p.Name(), p.model), nil
}

// convertGeminiResponse flattens the first candidate into a Response.
// Gemini does not always assign function-call ids; missing ids are
// synthesised from the name plus the call's position so two calls to the
// same tool in one response stay distinguishable.
func convertGeminiResponse(result *genai.GenerateContentResponse, provider, model string) *Response {
	resp := &Response{Provider: provider, Model: model}
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		var content strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				content.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				fc := part.FunctionCall
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("%s-%d", fc.Name, len(resp.ToolCalls))
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:        id,
					Name:      fc.Name,
					Arguments: fc.Args,
				})
			}
		}
		resp.Content = content.String()
	}

	if result.UsageMetadata != nil {
		resp.Usage = &Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp
}

// convertSchema maps a JSON-schema-shaped parameter object into the
// Gemini schema type. Only the subset the tool registry declares is
// covered: type, description, properties, required and items.
func convertSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := params["type"].(string); ok {
		schema.Type = genaiType(t)
	}
	if desc, ok := params["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for key, value := range props {
			if propMap, ok := value.(map[string]any); ok {
				schema.Properties[key] = convertSchema(propMap)
			}
		}
	}
	if required, ok := params["required"].([]any); ok {
		for _, field := range required {
			if s, ok := field.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	} else if required, ok := params["required"].([]string); ok {
		schema.Required = append(schema.Required, required...)
	}
	if items, ok := params["items"].(map[string]any); ok {
		schema.Items = convertSchema(items)
	}
	return schema
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
