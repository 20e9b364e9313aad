package agent

import (
	"fmt"

	"github.com/numera-ai/numera/pkg/models"
)

// Conversation is the append-only state of one run.
//
// Messages are only ever appended: seeded history first, then the user turn,
// then alternating assistant turns and tool-result turns. The tool results
// of a step land immediately after the assistant turn that declared the
// calls, never interleaved across steps. The termination reason is recorded
// exactly once.
type Conversation struct {
	runID     string
	sessionID string
	system    string

	messages []CompletionMessage
	steps    []models.Step

	// pending holds the declared calls of the latest step until their
	// results are appended; nil when no step is unresolved.
	pending []models.ToolCall

	reason    models.TerminationReason
	reasonSet bool
}

// NewConversation creates the state for a run, seeding prior session history
// before the new user message.
func NewConversation(runID, sessionID, system string, history []*models.Message, userMsg *models.Message) *Conversation {
	c := &Conversation{
		runID:     runID,
		sessionID: sessionID,
		system:    system,
	}

	for _, msg := range history {
		if msg == nil {
			continue
		}
		c.messages = append(c.messages, CompletionMessage{
			Role:        string(msg.Role),
			Content:     msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
		})
	}

	if userMsg != nil {
		c.messages = append(c.messages, CompletionMessage{
			Role:    string(models.RoleUser),
			Content: userMsg.Content,
		})
	}

	return c
}

// RunID returns the run identifier.
func (c *Conversation) RunID() string { return c.runID }

// SessionID returns the backing session identifier, if any.
func (c *Conversation) SessionID() string { return c.sessionID }

// System returns the system prompt for the run.
func (c *Conversation) System() string { return c.system }

// Messages returns a copy of the conversation messages in order.
func (c *Conversation) Messages() []CompletionMessage {
	out := make([]CompletionMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Steps returns a copy of the recorded steps in order.
func (c *Conversation) Steps() []models.Step {
	out := make([]models.Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// StepCount returns how many steps have been recorded.
func (c *Conversation) StepCount() int { return len(c.steps) }

// AppendAssistantTurn records a complete assistant turn as a new step. The
// declared calls, if any, become the step's pending set and must be resolved
// by AppendToolResults before the next turn.
func (c *Conversation) AppendAssistantTurn(text string, calls []models.ToolCall) (models.Step, error) {
	if c.reasonSet {
		return models.Step{}, ErrTerminated
	}
	if c.pending != nil {
		return models.Step{}, fmt.Errorf("step %d has unresolved tool calls", len(c.steps)-1)
	}

	step := models.Step{
		Index:     len(c.steps),
		Text:      text,
		ToolCalls: calls,
	}
	c.steps = append(c.steps, step)
	c.messages = append(c.messages, CompletionMessage{
		Role:      string(models.RoleAssistant),
		Content:   text,
		ToolCalls: calls,
	})
	if len(calls) > 0 {
		c.pending = calls
	}
	return step, nil
}

// AppendToolResults resolves the latest step's pending calls. Exactly one
// result must be supplied per declared call, in declaration order; anything
// else is a state corruption and is rejected.
func (c *Conversation) AppendToolResults(results []models.ToolResult) error {
	if c.reasonSet {
		return ErrTerminated
	}
	if c.pending == nil {
		return fmt.Errorf("no unresolved tool calls")
	}
	if len(results) != len(c.pending) {
		return fmt.Errorf("got %d tool results for %d declared calls", len(results), len(c.pending))
	}
	for i, res := range results {
		if res.ToolCallID != c.pending[i].ID {
			return fmt.Errorf("tool result %d answers call %q, expected %q", i, res.ToolCallID, c.pending[i].ID)
		}
	}

	c.messages = append(c.messages, CompletionMessage{
		Role:        string(models.RoleTool),
		ToolResults: results,
	})
	c.pending = nil
	return nil
}

// PendingCalls returns the unresolved calls of the latest step, if any.
func (c *Conversation) PendingCalls() []models.ToolCall {
	out := make([]models.ToolCall, len(c.pending))
	copy(out, c.pending)
	return out
}

// Terminate records the run's termination reason. It may be called exactly
// once; later calls return ErrTerminated and leave the first reason intact.
func (c *Conversation) Terminate(reason models.TerminationReason) error {
	if c.reasonSet {
		return ErrTerminated
	}
	c.reason = reason
	c.reasonSet = true
	return nil
}

// TerminationReason returns the recorded reason, if one has been set.
func (c *Conversation) TerminationReason() (models.TerminationReason, bool) {
	return c.reason, c.reasonSet
}

// Terminated reports whether the run has a termination reason recorded.
func (c *Conversation) Terminated() bool { return c.reasonSet }

// FinalText returns the text of the last recorded step, which is the run's
// final answer when the run terminated with no-further-tool-calls.
func (c *Conversation) FinalText() string {
	if len(c.steps) == 0 {
		return ""
	}
	return c.steps[len(c.steps)-1].Text
}
