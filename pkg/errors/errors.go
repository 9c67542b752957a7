// Package errors defines the kind-tagged error taxonomy shared by the
// store, model runner, sandbox, tool dispatcher and orchestrator.
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError.
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates a new AppError with a formatted message and no cause.
func Newf(code, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the outermost AppError in err's chain, or
// empty string when err carries no AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an AppError with the code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes
const (
	ErrCodeContainerLimitReached      = "CONTAINER_LIMIT_REACHED"
	ErrCodeContainerNotFound          = "CONTAINER_NOT_FOUND"
	ErrCodeContainerCreationFailed    = "CONTAINER_CREATION_FAILED"
	ErrCodeContainerExecutionFailed   = "CONTAINER_EXECUTION_FAILED"
	ErrCodeContainerDestructionFailed = "CONTAINER_DESTRUCTION_FAILED"
	ErrCodePromptTooLarge             = "PROMPT_TOO_LARGE"
	ErrCodeModelUpstreamTransient     = "MODEL_UPSTREAM_TRANSIENT"
	ErrCodeModelUpstreamFatal         = "MODEL_UPSTREAM_FATAL"
	ErrCodeToolUnknown                = "TOOL_UNKNOWN"
	ErrCodeToolArgumentInvalid        = "TOOL_ARGUMENT_INVALID"
	ErrCodeToolExecutionFailed        = "TOOL_EXECUTION_FAILED"
	ErrCodeSessionNotFound            = "SESSION_NOT_FOUND"
	ErrCodeSessionStateInvalid        = "SESSION_STATE_INVALID"
	ErrCodeTaskNotFound               = "TASK_NOT_FOUND"
	ErrCodePlanParseFailed            = "PLAN_PARSE_FAILED"
	ErrCodeInternal                   = "INTERNAL"
)
