package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/numera-ai/numera/pkg/models"
)

// Common sentinel errors for agent operations
var (
	// ErrNoProvider indicates no completion provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")

	// ErrInvalidArguments indicates tool arguments failed schema validation
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrTerminated indicates the conversation already has a termination
	// reason recorded
	ErrTerminated = errors.New("conversation already terminated")
)

// ToolError represents a structured error from tool dispatch with the
// outcome kind the conversation records for it.
type ToolError struct {
	// Kind categorizes the failure (unknown_tool, invalid_arguments,
	// execution_failed, timeout)
	Kind models.ToolErrorKind

	// ToolName is the name of the tool that failed
	ToolName string

	// ToolCallID is the ID of the tool call that failed
	ToolCallID string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Kind))

	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a ToolError for the given tool and cause. The kind
// defaults to execution_failed; use WithKind for the validation and lookup
// failures decided before the tool body runs.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Kind:     models.ToolErrorExecutionFailed,
	}

	if cause != nil {
		err.Message = cause.Error()
		switch {
		case errors.Is(cause, ErrToolNotFound):
			err.Kind = models.ToolErrorUnknownTool
		case errors.Is(cause, ErrInvalidArguments):
			err.Kind = models.ToolErrorInvalidArguments
		case errors.Is(cause, ErrToolTimeout):
			err.Kind = models.ToolErrorTimeout
		}
	}

	return err
}

// WithKind sets the outcome kind.
func (e *ToolError) WithKind(kind models.ToolErrorKind) *ToolError {
	e.Kind = kind
	return e
}

// WithToolCallID sets the tool call ID for correlating errors with specific calls.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// WithMessage sets a custom human-readable error message.
func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

// Result converts the error into the tool result recorded for the call.
// Every dispatch failure, whatever its kind, surfaces to the model this way.
func (e *ToolError) Result() models.ToolResult {
	content := e.Message
	if content == "" && e.Cause != nil {
		content = e.Cause.Error()
	}
	return models.ToolResult{
		ToolCallID: e.ToolCallID,
		Content:    content,
		IsError:    true,
		ErrorKind:  e.Kind,
	}
}

// IsToolError checks if an error is or wraps a ToolError.
func IsToolError(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr)
}

// GetToolError extracts a ToolError from an error chain using errors.As.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// LoopError represents an error that occurred while driving a run, with
// context about which phase and step it occurred in.
type LoopError struct {
	// Phase is the controller phase where the error occurred
	Phase LoopPhase

	// Step is the zero-based step index where the error occurred
	Step int

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loop error at %s (step %d): %s", e.Phase, e.Step, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (step %d): %v", e.Phase, e.Step, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (step %d)", e.Phase, e.Step)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// LoopPhase represents a distinct state of the step controller.
type LoopPhase string

const (
	// PhaseInit is the initialization phase, before the first step
	PhaseInit LoopPhase = "init"

	// PhaseAwaitingModel is the completion-service streaming phase
	PhaseAwaitingModel LoopPhase = "awaiting_model"

	// PhaseModelResponded is the phase after a complete assistant turn
	PhaseModelResponded LoopPhase = "model_responded"

	// PhaseDispatchingTools is the tool fan-out/fan-in phase
	PhaseDispatchingTools LoopPhase = "dispatching_tools"

	// PhaseTerminated is the terminal phase
	PhaseTerminated LoopPhase = "terminated"
)
