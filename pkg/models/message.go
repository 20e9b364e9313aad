package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message authored by the end user.
	RoleUser Role = "user"

	// RoleAssistant is a message authored by the model.
	RoleAssistant Role = "assistant"

	// RoleSystem is an instruction message, handled out of band by providers.
	RoleSystem Role = "system"

	// RoleTool is a message carrying tool results back to the model.
	RoleTool Role = "tool"
)

// Message represents a single conversation message.
//
// A message is either plain text, an assistant turn that may declare tool
// calls, or a tool turn carrying the results for a previous assistant turn's
// calls. Every ToolResult references a ToolCall ID from an earlier assistant
// message, and every declared ToolCall is answered by exactly one ToolResult
// before the conversation advances.
type Message struct {
	// ID uniquely identifies the message (UUID).
	ID string `json:"id"`

	// SessionID links the message to its conversation session.
	SessionID string `json:"session_id,omitempty"`

	// Role indicates who authored the message.
	Role Role `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool execution requests declared by an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains the outcomes of previously declared tool calls.
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	// Metadata carries optional transport- or domain-specific annotations.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the message was created.
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID uniquely identifies this call within the conversation.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input is the raw JSON argument payload produced by the model.
	Input json.RawMessage `json:"input"`
}

// ToolErrorKind classifies a failed tool invocation.
//
// All kinds are recoverable from the conversation's point of view: the
// failure is reported back to the model as a tool result and the run
// continues. Only upstream (completion service) failures are fatal, and
// those are not tool errors.
type ToolErrorKind string

const (
	// ToolErrorUnknownTool means the requested tool name is not registered.
	// The tool body is never invoked.
	ToolErrorUnknownTool ToolErrorKind = "unknown_tool"

	// ToolErrorInvalidArguments means the arguments failed JSON Schema
	// validation. The tool body is never invoked.
	ToolErrorInvalidArguments ToolErrorKind = "invalid_arguments"

	// ToolErrorExecutionFailed means the tool body returned an error or
	// panicked.
	ToolErrorExecutionFailed ToolErrorKind = "execution_failed"

	// ToolErrorTimeout means the tool exceeded its per-call time budget.
	ToolErrorTimeout ToolErrorKind = "timeout"
)

// ToolResult is the outcome of exactly one tool call.
type ToolResult struct {
	// ToolCallID references the ToolCall this result answers.
	ToolCallID string `json:"tool_call_id"`

	// Content is the tool output, or a human-readable error description
	// when IsError is set.
	Content string `json:"content"`

	// IsError indicates the invocation failed.
	IsError bool `json:"is_error,omitempty"`

	// ErrorKind classifies the failure when IsError is set.
	ErrorKind ToolErrorKind `json:"error_kind,omitempty"`
}

// Session groups messages into one persistent conversation.
type Session struct {
	// ID uniquely identifies the session (UUID).
	ID string `json:"id"`

	// Key is an optional caller-chosen lookup key (e.g. "web:acct-42").
	Key string `json:"key,omitempty"`

	// Title is a short human-readable label.
	Title string `json:"title,omitempty"`

	// Metadata carries arbitrary session annotations.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
