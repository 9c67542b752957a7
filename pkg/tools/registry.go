// Package tools declares the agent's tool surface and dispatches tool
// calls. Declarations are provider-neutral JSON-schema records; the model
// runner adapts them into provider-native tool descriptions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/builder6/builder6/internal/metrics"
	apperrors "github.com/builder6/builder6/pkg/errors"
	"github.com/builder6/builder6/pkg/llm"
)

// Executor runs a tool invocation with already-validated arguments.
type Executor func(ctx context.Context, args map[string]any) (any, error)

// Tool couples a static declaration with its executor. Parameters is a
// JSON-schema object: {"type":"object","properties":{...},"required":[...]}.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     Executor
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the tool set and routes invocations by exact name. It
// implements the model runner's Dispatcher interface.
type Registry struct {
	log logr.Logger

	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

var _ llm.Dispatcher = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		log:   log.WithName("tools"),
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool, compiling its parameter schema once. Registering
// a duplicate name or an invalid schema fails.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" || tool.Execute == nil {
		return apperrors.Newf(apperrors.ErrCodeInternal, "tool registration requires a name and an executor")
	}
	schema, err := compileSchema(tool.Parameters)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("invalid parameter schema for tool %s", tool.Name), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return apperrors.Newf(apperrors.ErrCodeInternal, "tool %s is already registered", tool.Name)
	}
	r.tools[tool.Name] = &registeredTool{tool: tool, schema: schema}
	r.order = append(r.order, tool.Name)
	return nil
}

// MustRegister registers a tool and panics on failure. Used for the
// static tool set assembled at startup.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Declarations enumerates every registered tool in registration order.
func (r *Registry) Declarations() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		entry := r.tools[name]
		out = append(out, llm.ToolDefinition{
			Name:        entry.tool.Name,
			Description: entry.tool.Description,
			Parameters:  entry.tool.Parameters,
		})
	}
	return out
}

// ExecuteTool validates args against the tool's schema and invokes its
// executor. Unknown names fail ToolUnknown; schema violations fail
// ToolArgumentInvalid.
func (r *Registry) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ToolExecutions.WithLabelValues(name, "unknown").Inc()
		return nil, apperrors.Newf(apperrors.ErrCodeToolUnknown, "Unknown tool: %s", name)
	}

	if err := validateArgs(entry.schema, args); err != nil {
		metrics.ToolExecutions.WithLabelValues(name, "invalid_args").Inc()
		return nil, apperrors.New(apperrors.ErrCodeToolArgumentInvalid,
			fmt.Sprintf("invalid arguments for tool %s", name), err)
	}

	r.log.V(1).Info("executing tool", "tool", name)
	result, err := entry.tool.Execute(ctx, args)
	if err != nil {
		metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		return nil, err
	}
	metrics.ToolExecutions.WithLabelValues(name, "ok").Inc()
	return result, nil
}

func compileSchema(parameters map[string]any) (*jsonschema.Schema, error) {
	if parameters == nil {
		parameters = ObjectSchema(nil)
	}
	// Round-trip so the compiler sees plain JSON values.
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

// ObjectSchema builds the JSON-schema object shape used by declarations.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProp builds a string property declaration.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// IntProp builds an integer property declaration.
func IntProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// BoolProp builds a boolean property declaration.
func BoolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	value, ok := args[key].(string)
	if !ok || value == "" {
		return "", apperrors.Newf(apperrors.ErrCodeToolArgumentInvalid, "%s is required", key)
	}
	return value, nil
}

// optionalStringArg extracts an optional string argument.
func optionalStringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

// optionalIntArg extracts an optional integer argument; JSON numbers
// arrive as float64.
func optionalIntArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// intArg extracts a required integer argument.
func intArg(args map[string]any, key string) (int, error) {
	value, ok := optionalIntArg(args, key)
	if !ok {
		return 0, apperrors.Newf(apperrors.ErrCodeToolArgumentInvalid, "%s is required", key)
	}
	return value, nil
}
