package models

import (
	"encoding/json"
	"time"
)

// AgentEventVersion is the current version of the agent event envelope.
// Consumers must ignore event types and fields they do not recognize.
const AgentEventVersion = 1

// AgentEventType enumerates the event vocabulary emitted by a run.
type AgentEventType string

const (
	// EventRunStarted opens a run's event stream.
	EventRunStarted AgentEventType = "run.started"

	// EventStepStarted marks the beginning of a completion step.
	EventStepStarted AgentEventType = "step.started"

	// EventModelDelta carries an incremental text fragment from the model.
	EventModelDelta AgentEventType = "model.delta"

	// EventToolStarted marks the dispatch of a single tool call.
	EventToolStarted AgentEventType = "tool.started"

	// EventToolFinished carries the outcome of a single tool call.
	EventToolFinished AgentEventType = "tool.finished"

	// EventStepFinished marks the end of a completion step.
	EventStepFinished AgentEventType = "step.finished"

	// EventRunTerminated closes the stream with the termination reason.
	EventRunTerminated AgentEventType = "run.terminated"

	// EventRunError reports a fatal upstream failure.
	EventRunError AgentEventType = "run.error"
)

// TerminationReason records why a run stopped. It is set exactly once.
type TerminationReason string

const (
	// TerminationMaxSteps means the step ceiling was reached before the
	// model produced a tool-call-free turn.
	TerminationMaxSteps TerminationReason = "max-steps-reached"

	// TerminationNoToolCalls means the model produced a turn with zero
	// tool calls; that turn is the final answer.
	TerminationNoToolCalls TerminationReason = "no-further-tool-calls"

	// TerminationUpstreamError means the completion service failed.
	TerminationUpstreamError TerminationReason = "upstream-error"
)

// Step records one completion turn and the tool calls it declared.
type Step struct {
	// Index is the zero-based position of the step within the run.
	Index int `json:"index"`

	// Text is the assistant text produced during the step.
	Text string `json:"text,omitempty"`

	// ToolCalls are the calls the assistant declared, in declaration order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// AgentEvent is the versioned envelope for every event a run emits.
//
// Sequence numbers are monotonically increasing within a run. Events of one
// step appear in the order they were produced, and steps appear in step
// order; consumers can rely on Sequence alone to reconstruct causality.
type AgentEvent struct {
	// Version is the envelope version (AgentEventVersion).
	Version int `json:"version"`

	// Type identifies the event.
	Type AgentEventType `json:"type"`

	// Time is when the event was produced.
	Time time.Time `json:"time"`

	// Sequence is the monotonic per-run event counter, starting at 1.
	Sequence uint64 `json:"sequence"`

	// RunID identifies the run this event belongs to.
	RunID string `json:"run_id"`

	// SessionID identifies the session, when the run is session-backed.
	SessionID string `json:"session_id,omitempty"`

	// StepIndex is the zero-based step the event belongs to. It is -1 for
	// run-level events emitted outside any step.
	StepIndex int `json:"step_index"`

	// Delta is the text fragment for model.delta events.
	Delta string `json:"delta,omitempty"`

	// Tool is set on tool.started and tool.finished events.
	Tool *ToolEventPayload `json:"tool,omitempty"`

	// Termination is set on run.terminated events.
	Termination *TerminationPayload `json:"termination,omitempty"`

	// Error is set on run.error events.
	Error *ErrorPayload `json:"error,omitempty"`
}

// ToolEventPayload describes one tool call on tool.* events.
type ToolEventPayload struct {
	// CallID is the tool call ID the event refers to.
	CallID string `json:"call_id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Args is the raw argument payload (tool.started only).
	Args json.RawMessage `json:"args,omitempty"`

	// Success reports whether the call succeeded (tool.finished only).
	Success bool `json:"success,omitempty"`

	// Result is the tool output or error description (tool.finished only).
	Result string `json:"result,omitempty"`

	// ErrorKind classifies the failure when Success is false.
	ErrorKind ToolErrorKind `json:"error_kind,omitempty"`

	// DurationMS is the wall-clock execution time in milliseconds.
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// TerminationPayload describes why and after how many steps a run stopped.
type TerminationPayload struct {
	Reason TerminationReason `json:"reason"`
	Steps  int               `json:"steps"`
}

// ErrorPayload describes a fatal run failure.
type ErrorPayload struct {
	Message string `json:"message"`
}
