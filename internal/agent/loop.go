// Package agent implements the step-bounded orchestration runtime: the
// conversation state, tool registry and executor, streaming event emitter,
// and the controller that drives a run from user message to termination.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/numera-ai/numera/internal/observability"
	"github.com/numera-ai/numera/pkg/models"
)

const (
	// DefaultMaxSteps is the default step ceiling for a run.
	DefaultMaxSteps = 5

	// DefaultMaxTokens is the default completion token limit.
	DefaultMaxTokens = 4096

	// DefaultCompletionTimeout bounds one completion-service call.
	DefaultCompletionTimeout = 120 * time.Second

	// DefaultHistoryLimit caps how many prior messages seed a run.
	DefaultHistoryLimit = 50

	// eventBufferSize is the run event channel buffer. It absorbs bursts
	// (a step's tool events land together) without stalling the loop on a
	// slow consumer for every event.
	eventBufferSize = 64
)

// SessionStore is the persistence seam the loop needs: prior history in,
// new messages out. The full session API lives in internal/sessions.
type SessionStore interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
}

// LoopConfig configures run behavior.
type LoopConfig struct {
	// MaxSteps is the completion-step ceiling per run. Default: 5.
	MaxSteps int

	// MaxTokens limits each completion response. Default: 4096.
	MaxTokens int

	// Model overrides the provider's default model when set.
	Model string

	// SystemPrompt is the system instruction for every run.
	SystemPrompt string

	// CompletionTimeout bounds a single completion call. Default: 120s.
	CompletionTimeout time.Duration

	// HistoryLimit caps seeded session history. Default: 50.
	HistoryLimit int

	// Executor configures tool dispatch.
	Executor *ExecutorConfig
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		config = &LoopConfig{}
	}
	out := *config
	if out.MaxSteps <= 0 {
		out.MaxSteps = DefaultMaxSteps
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if out.CompletionTimeout <= 0 {
		out.CompletionTimeout = DefaultCompletionTimeout
	}
	if out.HistoryLimit <= 0 {
		out.HistoryLimit = DefaultHistoryLimit
	}
	return &out
}

// Loop drives runs: it seeds the conversation, streams completion turns,
// dispatches declared tool calls, and decides termination.
//
// The controller moves through AwaitingModel → ModelResponded and then
// either DispatchingTools (back to AwaitingModel) or Terminated. Before
// each new completion call it checks the step ceiling; a turn with zero
// tool calls is the final answer, whatever the step index. Upstream
// failures terminate immediately: no partial step is recorded and no
// answer is fabricated.
type Loop struct {
	provider CompletionProvider
	registry *ToolRegistry
	executor *Executor
	store    SessionStore
	config   *LoopConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	sinks    []EventSink
}

// NewLoop creates a run controller. The store, metrics, and sinks are
// optional; provider and registry are not.
func NewLoop(provider CompletionProvider, registry *ToolRegistry, store SessionStore, config *LoopConfig, logger *slog.Logger, metrics *observability.Metrics, sinks ...EventSink) (*Loop, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sanitizeLoopConfig(config)

	return &Loop{
		provider: provider,
		registry: registry,
		executor: NewExecutor(registry, cfg.Executor, logger),
		store:    store,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		sinks:    sinks,
	}, nil
}

// Registry returns the loop's tool registry.
func (l *Loop) Registry() *ToolRegistry { return l.registry }

// Run starts a run for the given user message and returns its event stream.
// The channel is closed after the terminal event (run.terminated) has been
// delivered. Session may be nil for ephemeral runs.
func (l *Loop) Run(ctx context.Context, session *models.Session, userMsg *models.Message) (<-chan models.AgentEvent, error) {
	if userMsg == nil || strings.TrimSpace(userMsg.Content) == "" {
		return nil, fmt.Errorf("user message is empty")
	}

	runID := uuid.NewString()
	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}

	events := make(chan models.AgentEvent, eventBufferSize)

	go func() {
		defer close(events)
		emitter := NewEventEmitter(runID, sessionID, events, l.sinks...)
		l.run(ctx, emitter, sessionID, userMsg)
	}()

	return events, nil
}

func (l *Loop) run(ctx context.Context, emitter *EventEmitter, sessionID string, userMsg *models.Message) {
	start := time.Now()

	var history []*models.Message
	if l.store != nil && sessionID != "" {
		var err error
		history, err = l.store.GetHistory(ctx, sessionID, l.config.HistoryLimit)
		if err != nil {
			// A run without history is degraded, not broken.
			l.logger.Warn("failed to load session history", "session_id", sessionID, "error", err)
			history = nil
		}
	}

	conv := NewConversation(emitter.runID, sessionID, l.config.SystemPrompt, history, userMsg)
	l.persistMessage(ctx, sessionID, userMsg)

	emitter.RunStarted()
	l.logger.Info("run started",
		"run_id", conv.RunID(),
		"session_id", sessionID,
		"max_steps", l.config.MaxSteps,
		"tools", l.registry.Len())

	for {
		// Termination is decided before each new step.
		if conv.StepCount() >= l.config.MaxSteps {
			l.terminate(emitter, conv, models.TerminationMaxSteps, start)
			return
		}

		stepIndex := conv.StepCount()
		emitter.StepStarted(stepIndex)

		text, calls, err := l.completeStep(ctx, conv, emitter, stepIndex)
		if err != nil {
			// Upstream failure: no partial step, no fabricated answer.
			emitter.RunError(err)
			l.terminate(emitter, conv, models.TerminationUpstreamError, start)
			l.logger.Error("completion failed",
				"run_id", conv.RunID(),
				"step", stepIndex,
				"error", err)
			if l.metrics != nil {
				l.metrics.RecordError("agent", "upstream")
			}
			return
		}

		if _, err := conv.AppendAssistantTurn(text, calls); err != nil {
			emitter.RunError(&LoopError{Phase: PhaseModelResponded, Step: stepIndex, Cause: err})
			l.terminate(emitter, conv, models.TerminationUpstreamError, start)
			return
		}
		l.persistMessage(ctx, sessionID, &models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
			CreatedAt: time.Now().UTC(),
		})

		if len(calls) == 0 {
			// A pure-text turn is the final answer, step 0 included.
			emitter.StepFinished(stepIndex)
			l.terminate(emitter, conv, models.TerminationNoToolCalls, start)
			return
		}

		// Fan out, join, and surface results in declaration order.
		for _, call := range calls {
			emitter.ToolStarted(call)
		}
		execResults := l.executor.ExecuteAll(ctx, calls)

		if ctx.Err() != nil {
			// Cancellation at the tool join: the finished executions are
			// discarded, not recorded.
			emitter.RunError(&LoopError{Phase: PhaseDispatchingTools, Step: stepIndex, Cause: ctx.Err()})
			l.terminate(emitter, conv, models.TerminationUpstreamError, start)
			l.logger.Info("run cancelled during tool dispatch",
				"run_id", conv.RunID(),
				"step", stepIndex)
			return
		}

		results := make([]models.ToolResult, len(execResults))
		for i, res := range execResults {
			emitter.ToolFinished(res)
			results[i] = res.Result
			if l.metrics != nil {
				status := "success"
				if res.Result.IsError {
					status = "error"
				}
				l.metrics.RecordToolExecution(res.ToolName, status, res.Duration.Seconds())
			}
		}

		if err := conv.AppendToolResults(results); err != nil {
			emitter.RunError(&LoopError{Phase: PhaseDispatchingTools, Step: stepIndex, Cause: err})
			l.terminate(emitter, conv, models.TerminationUpstreamError, start)
			return
		}
		l.persistMessage(ctx, sessionID, &models.Message{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			Role:        models.RoleTool,
			ToolResults: results,
			CreatedAt:   time.Now().UTC(),
		})

		emitter.StepFinished(stepIndex)
	}
}

// completeStep streams one completion turn, forwarding text deltas as they
// arrive and collecting declared tool calls in order.
func (l *Loop) completeStep(ctx context.Context, conv *Conversation, emitter *EventEmitter, stepIndex int) (string, []models.ToolCall, error) {
	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    conv.System(),
		Messages:  conv.Messages(),
		Tools:     l.registry.List(),
		MaxTokens: l.config.MaxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, l.config.CompletionTimeout)
	defer cancel()

	start := time.Now()
	chunks, err := l.provider.Complete(callCtx, req)
	if err != nil {
		l.recordLLM("error", start, 0, 0)
		return "", nil, &LoopError{Phase: PhaseAwaitingModel, Step: stepIndex, Cause: err}
	}

	var text strings.Builder
	var calls []models.ToolCall

	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			l.recordLLM("error", start, 0, 0)
			return "", nil, &LoopError{Phase: PhaseAwaitingModel, Step: stepIndex, Cause: chunk.Error}
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emitter.ModelDelta(chunk.Text)
		}
		if chunk.ToolCall != nil {
			call := *chunk.ToolCall
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			calls = append(calls, call)
		}
		if chunk.Done {
			l.recordLLM("success", start, chunk.InputTokens, chunk.OutputTokens)
		}
	}

	return text.String(), calls, nil
}

func (l *Loop) terminate(emitter *EventEmitter, conv *Conversation, reason models.TerminationReason, start time.Time) {
	if err := conv.Terminate(reason); err != nil {
		l.logger.Error("duplicate termination", "run_id", conv.RunID(), "reason", string(reason))
		return
	}
	emitter.RunTerminated(reason, conv.StepCount())
	if l.metrics != nil {
		l.metrics.RecordRunTerminated(string(reason), conv.StepCount(), time.Since(start).Seconds())
	}
	l.logger.Info("run terminated",
		"run_id", conv.RunID(),
		"reason", string(reason),
		"steps", conv.StepCount(),
		"duration", time.Since(start))
}

func (l *Loop) persistMessage(ctx context.Context, sessionID string, msg *models.Message) {
	if l.store == nil || sessionID == "" || msg == nil {
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := l.store.AppendMessage(ctx, sessionID, msg); err != nil {
		l.logger.Warn("failed to persist message",
			"session_id", sessionID,
			"role", string(msg.Role),
			"error", err)
	}
}

func (l *Loop) recordLLM(status string, start time.Time, promptTokens, completionTokens int) {
	if l.metrics == nil {
		return
	}
	model := l.config.Model
	if model == "" {
		model = "default"
	}
	l.metrics.RecordLLMRequest(l.provider.Name(), model, status, time.Since(start).Seconds(), promptTokens, completionTokens)
}
