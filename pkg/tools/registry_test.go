package tools

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/builder6/builder6/pkg/errors"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echo back the message",
		Parameters: ObjectSchema(map[string]any{
			"message": StringProp("text to echo"),
		}, "message"),
		Execute: func(_ context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		},
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(logr.Discard())
	require.NoError(t, r.Register(echoTool("echo")))

	result, err := r.ExecuteTool(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(logr.Discard())

	_, err := r.ExecuteTool(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolUnknown, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "Unknown tool: nope")
}

func TestRegistryValidatesArguments(t *testing.T) {
	r := NewRegistry(logr.Discard())
	require.NoError(t, r.Register(echoTool("echo")))

	// Missing required property.
	_, err := r.ExecuteTool(context.Background(), "echo", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolArgumentInvalid, apperrors.CodeOf(err))

	// Wrong type.
	_, err = r.ExecuteTool(context.Background(), "echo", map[string]any{"message": 42})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolArgumentInvalid, apperrors.CodeOf(err))
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry(logr.Discard())
	require.NoError(t, r.Register(echoTool("echo")))
	assert.Error(t, r.Register(echoTool("echo")))
}

func TestDeclarationsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry(logr.Discard())
	require.NoError(t, r.Register(echoTool("first")))
	require.NoError(t, r.Register(echoTool("second")))
	require.NoError(t, r.Register(echoTool("third")))

	defs := r.Declarations()
	require.Len(t, defs, 3)
	assert.Equal(t, "first", defs[0].Name)
	assert.Equal(t, "second", defs[1].Name)
	assert.Equal(t, "third", defs[2].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}

func TestExecutorErrorPassesThrough(t *testing.T) {
	r := NewRegistry(logr.Discard())
	require.NoError(t, r.Register(Tool{
		Name:        "failing",
		Description: "always fails",
		Parameters:  ObjectSchema(nil),
		Execute: func(context.Context, map[string]any) (any, error) {
			return nil, apperrors.Newf(apperrors.ErrCodeToolExecutionFailed, "boom")
		},
	}))

	_, err := r.ExecuteTool(context.Background(), "failing", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeToolExecutionFailed, apperrors.CodeOf(err))
}
