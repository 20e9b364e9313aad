package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/numera-ai/numera/pkg/models"
)

// ExecutorConfig configures tool execution behavior.
type ExecutorConfig struct {
	// MaxConcurrency limits how many tool calls of one step run in
	// parallel. Default: 4.
	MaxConcurrency int

	// CallTimeout is the per-call execution time budget. Default: 30s.
	CallTimeout time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 4,
		CallTimeout:    30 * time.Second,
	}
}

// ExecutionResult pairs a tool call's recorded result with dispatch timing.
type ExecutionResult struct {
	// ToolName is the tool that was (or would have been) invoked.
	ToolName string

	// Result is the outcome recorded for the call. Failures of every kind
	// are expressed here, never as a Go error: the conversation always
	// receives exactly one result per call.
	Result models.ToolResult

	// Duration is the wall-clock time spent on the call.
	Duration time.Duration
}

// Executor dispatches tool calls with bounded parallelism, per-call
// timeouts, and panic recovery.
//
// The executor owns the full dispatch contract:
//   - unknown tool names are rejected without touching any tool body;
//   - arguments are validated against the tool's compiled schema before
//     invocation, and invalid arguments never reach the body;
//   - a body error or panic becomes an execution_failed result;
//   - exceeding the per-call budget becomes a timeout result.
//
// Each tool call is invoked at most once. There is no retry at this layer:
// the model sees every failure as a tool result and decides what to do next.
type Executor struct {
	registry *ToolRegistry
	config   *ExecutorConfig
	logger   *slog.Logger

	// semaphore bounds concurrent executions across calls of one step
	semaphore chan struct{}

	// metrics tracking
	mu      sync.Mutex
	metrics ExecutorMetrics
}

// ExecutorMetrics tracks cumulative execution statistics.
type ExecutorMetrics struct {
	TotalExecutions  int64
	TotalFailures    int64
	TotalTimeouts    int64
	TotalPanics      int64
	TotalUnknown     int64
	TotalInvalidArgs int64
}

// NewExecutor creates a tool executor backed by the given registry.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig, logger *slog.Logger) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		registry:  registry,
		config:    config,
		logger:    logger,
		semaphore: make(chan struct{}, config.MaxConcurrency),
	}
}

// ExecuteAll runs all tool calls of one step, fanning out up to
// MaxConcurrency executions and joining before return. Results are returned
// in call-declaration order regardless of completion order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []ExecutionResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]ExecutionResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}

	wg.Wait()
	return results
}

// Execute runs a single tool call through the full dispatch contract and
// returns its recorded outcome.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) ExecutionResult {
	start := time.Now()

	// Acquire semaphore slot, respecting cancellation while queued.
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return e.failure(call, start, models.ToolErrorExecutionFailed,
			fmt.Sprintf("tool %s not started: %v", call.Name, ctx.Err()))
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.count(func(m *ExecutorMetrics) { m.TotalUnknown++; m.TotalFailures++ })
		return e.failure(call, start, models.ToolErrorUnknownTool,
			fmt.Sprintf("unknown tool: %s", call.Name))
	}

	if err := e.registry.Validate(call.Name, call.Input); err != nil {
		e.count(func(m *ExecutorMetrics) { m.TotalInvalidArgs++; m.TotalFailures++ })
		return e.failure(call, start, models.ToolErrorInvalidArguments, err.Error())
	}

	result := e.executeWithTimeout(ctx, tool, call)
	elapsed := time.Since(start)

	e.count(func(m *ExecutorMetrics) {
		m.TotalExecutions++
		if result.IsError {
			m.TotalFailures++
			if result.ErrorKind == models.ToolErrorTimeout {
				m.TotalTimeouts++
			}
		}
	})

	if result.IsError {
		e.logger.Warn("tool execution failed",
			"tool", call.Name,
			"call_id", call.ID,
			"kind", string(result.ErrorKind),
			"duration", elapsed)
	} else {
		e.logger.Debug("tool execution completed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration", elapsed)
	}

	return ExecutionResult{ToolName: call.Name, Result: result, Duration: elapsed}
}

// executeWithTimeout invokes the tool body under the per-call budget with
// panic recovery. If the budget or the caller's context expires first, the
// body keeps running in its goroutine but its eventual result is abandoned.
func (e *Executor) executeWithTimeout(ctx context.Context, tool Tool, call models.ToolCall) models.ToolResult {
	execCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	type outcome struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.count(func(m *ExecutorMetrics) { m.TotalPanics++ })
				e.logger.Error("tool panicked",
					"tool", call.Name,
					"call_id", call.ID,
					"panic", r,
					"stack", string(debug.Stack()))
				resultCh <- outcome{err: fmt.Errorf("%w: %v", ErrToolPanic, r)}
			}
		}()

		result, err := tool.Execute(execCtx, call.Input)
		resultCh <- outcome{result: result, err: err}
	}()

	select {
	case out := <-resultCh:
		if out.err != nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    out.err.Error(),
				IsError:    true,
				ErrorKind:  models.ToolErrorExecutionFailed,
			}
		}
		if out.result == nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    "tool returned no result",
				IsError:    true,
				ErrorKind:  models.ToolErrorExecutionFailed,
			}
		}
		res := models.ToolResult{
			ToolCallID: call.ID,
			Content:    out.result.Content,
			IsError:    out.result.IsError,
		}
		if res.IsError {
			res.ErrorKind = models.ToolErrorExecutionFailed
		}
		return res

	case <-execCtx.Done():
		kind := models.ToolErrorTimeout
		content := fmt.Sprintf("tool %s timed out after %s", call.Name, e.config.CallTimeout)
		if ctx.Err() != nil {
			// Caller cancellation, not the per-call budget.
			kind = models.ToolErrorExecutionFailed
			content = fmt.Sprintf("tool %s aborted: %v", call.Name, ctx.Err())
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    true,
			ErrorKind:  kind,
		}
	}
}

func (e *Executor) failure(call models.ToolCall, start time.Time, kind models.ToolErrorKind, msg string) ExecutionResult {
	e.logger.Warn("tool dispatch rejected",
		"tool", call.Name,
		"call_id", call.ID,
		"kind", string(kind))
	return ExecutionResult{
		ToolName: call.Name,
		Result: models.ToolResult{
			ToolCallID: call.ID,
			Content:    msg,
			IsError:    true,
			ErrorKind:  kind,
		},
		Duration: time.Since(start),
	}
}

func (e *Executor) count(fn func(*ExecutorMetrics)) {
	e.mu.Lock()
	fn(&e.metrics)
	e.mu.Unlock()
}

// Metrics returns a snapshot of the executor's cumulative statistics.
func (e *Executor) Metrics() ExecutorMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}
