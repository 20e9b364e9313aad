package agent

import (
	"context"
	"encoding/json"

	"github.com/numera-ai/numera/pkg/models"
)

// CompletionProvider defines the interface for completion-service backends.
//
// Implementations handle the specifics of communicating with different model
// APIs (Anthropic, OpenAI) while presenting a unified streaming interface to
// the runtime. The runtime treats the provider as an opaque collaborator: it
// sends the conversation so far and consumes an ordered stream of chunks.
//
// Thread safety: implementations must be safe for concurrent use. Multiple
// goroutines may call Complete() simultaneously for different requests.
type CompletionProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model
}

// CompletionRequest contains all parameters for a completion request.
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's default
	// model is used.
	Model string `json:"model"`

	// System is the system prompt that sets the assistant's behavior.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines the tools the model may request to execute.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the maximum length of the generated response.
	// If 0 or negative, the provider's default is used.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage represents a single message in a provider conversation.
//
// Role values: "user", "assistant", "tool".
type CompletionMessage struct {
	// Role indicates who sent the message.
	Role string `json:"role"`

	// Content is the text content (may be empty for tool-only messages).
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool execution requests from the assistant.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains outcomes of executed tools.
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk represents a single chunk in a streaming response.
//
// Chunks are delivered through channels as the model generates its turn.
// Text arrives incrementally; tool calls arrive whole, in the order the
// model declared them; the final chunk has Done set.
type CompletionChunk struct {
	// Text contains partial response text (streamed incrementally).
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true when the stream has completed successfully.
	Done bool `json:"done,omitempty"`

	// Error contains any error that occurred (streaming is terminated).
	Error error `json:"-"`

	// InputTokens is the number of input tokens consumed by this request.
	// Only populated in the final chunk.
	InputTokens int `json:"input_tokens,omitempty"`

	// OutputTokens is the number of output tokens generated.
	// Only populated in the final chunk.
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available model and its capabilities.
type Model struct {
	// ID is the API identifier for the model (e.g. "claude-sonnet-4-20250514").
	ID string `json:"id"`

	// Name is the human-readable model name.
	Name string `json:"name"`

	// ContextSize is the maximum token context window.
	ContextSize int `json:"context_size"`
}

// Tool defines the interface for executable agent tools.
//
// A tool is registered once at startup and invoked by the executor after its
// arguments pass schema validation. Execute never sees arguments that
// violate Schema().
type Tool interface {
	// Name returns the tool name used for model function calling.
	// Must be a valid function name (alphanumeric, underscores).
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters. The params
	// are guaranteed to match Schema(). Returns the tool output, or a
	// *ToolResult with IsError set for failures the model should see
	// verbatim, or a Go error for infrastructure failures.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a tool execution.
//
// Results are sent back to the model, which uses them to formulate its next
// turn. Errors are also communicated via ToolResult with IsError=true,
// letting the model handle failures gracefully.
type ToolResult struct {
	// Content is the tool's output (text, JSON, etc.)
	Content string `json:"content"`

	// IsError indicates this result represents an error condition
	IsError bool `json:"is_error,omitempty"`
}
