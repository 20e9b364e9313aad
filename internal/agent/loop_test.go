package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/numera-ai/numera/pkg/models"
)

// stubProvider plays back scripted chunk sequences, one script per
// completion call, and counts how many calls were made.
type stubProvider struct {
	mu      sync.Mutex
	scripts [][]*CompletionChunk
	calls   int32
	err     error
}

func (p *stubProvider) Complete(_ context.Context, _ *CompletionRequest) (<-chan *CompletionChunk, error) {
	if p.err != nil {
		return nil, p.err
	}

	idx := int(atomic.AddInt32(&p.calls, 1)) - 1

	p.mu.Lock()
	var script []*CompletionChunk
	if idx < len(p.scripts) {
		script = p.scripts[idx]
	}
	p.mu.Unlock()

	ch := make(chan *CompletionChunk)
	go func() {
		defer close(ch)
		for _, chunk := range script {
			ch <- chunk
		}
		ch <- &CompletionChunk{Done: true}
	}()
	return ch, nil
}

func (p *stubProvider) Name() string    { return "stub" }
func (p *stubProvider) Models() []Model { return nil }

func (p *stubProvider) callCount() int {
	return int(atomic.LoadInt32(&p.calls))
}

// stubTool is a scriptable tool with a real schema.
type stubTool struct {
	name    string
	schema  string
	invoked atomic.Int32
	execute func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "test tool " + t.name }

func (t *stubTool) Schema() json.RawMessage {
	if t.schema != "" {
		return json.RawMessage(t.schema)
	}
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"value": {"type": "string"}
		},
		"required": ["value"],
		"additionalProperties": false
	}`)
}

func (t *stubTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.invoked.Add(1)
	if t.execute != nil {
		return t.execute(ctx, params)
	}
	return &ToolResult{Content: "ok"}, nil
}

func textChunks(parts ...string) []*CompletionChunk {
	var chunks []*CompletionChunk
	for _, part := range parts {
		chunks = append(chunks, &CompletionChunk{Text: part})
	}
	return chunks
}

func toolCallChunk(id, name, input string) *CompletionChunk {
	return &CompletionChunk{ToolCall: &models.ToolCall{
		ID:    id,
		Name:  name,
		Input: json.RawMessage(input),
	}}
}

func newTestLoop(t *testing.T, provider *stubProvider, config *LoopConfig, tools ...Tool) *Loop {
	t.Helper()

	registry := NewToolRegistry()
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("Register(%s) failed: %v", tool.Name(), err)
		}
	}

	loop, err := NewLoop(provider, registry, nil, config, slog.New(slog.DiscardHandler), nil)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	return loop
}

func runAndDrain(t *testing.T, loop *Loop, ctx context.Context) []models.AgentEvent {
	t.Helper()

	msg := &models.Message{Role: models.RoleUser, Content: "check the books"}
	events, err := loop.Run(ctx, nil, msg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var out []models.AgentEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatalf("timed out draining events, got %d so far", len(out))
		}
	}
}

func eventsOfType(events []models.AgentEvent, eventType models.AgentEventType) []models.AgentEvent {
	var out []models.AgentEvent
	for _, event := range events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func terminationOf(t *testing.T, events []models.AgentEvent) *models.TerminationPayload {
	t.Helper()
	terms := eventsOfType(events, models.EventRunTerminated)
	if len(terms) != 1 {
		t.Fatalf("expected exactly 1 run.terminated event, got %d", len(terms))
	}
	if terms[0].Termination == nil {
		t.Fatalf("run.terminated event has no payload")
	}
	return terms[0].Termination
}

func TestLoopTextOnlyTurnTerminatesAfterOneStep(t *testing.T) {
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		textChunks("Your ", "cash balance ", "is $1,204."),
	}}
	loop := newTestLoop(t, provider, nil)

	events := runAndDrain(t, loop, context.Background())

	if got := provider.callCount(); got != 1 {
		t.Errorf("expected 1 completion call, got %d", got)
	}

	term := terminationOf(t, events)
	if term.Reason != models.TerminationNoToolCalls {
		t.Errorf("expected reason %q, got %q", models.TerminationNoToolCalls, term.Reason)
	}
	if term.Steps != 1 {
		t.Errorf("expected 1 step, got %d", term.Steps)
	}

	deltas := eventsOfType(events, models.EventModelDelta)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 model.delta events, got %d", len(deltas))
	}
	full := deltas[0].Delta + deltas[1].Delta + deltas[2].Delta
	if full != "Your cash balance is $1,204." {
		t.Errorf("unexpected assembled text: %q", full)
	}
}

func TestLoopMaxStepsCeilingWithoutExtraUpstreamCall(t *testing.T) {
	// Every turn declares another tool call; the ceiling has to stop the run.
	echo := &stubTool{name: "ledger_query"}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{toolCallChunk("call-1", "ledger_query", `{"value":"q1"}`)},
		{toolCallChunk("call-2", "ledger_query", `{"value":"q2"}`)},
		{toolCallChunk("call-3", "ledger_query", `{"value":"q3"}`)},
	}}
	loop := newTestLoop(t, provider, &LoopConfig{MaxSteps: 2}, echo)

	events := runAndDrain(t, loop, context.Background())

	term := terminationOf(t, events)
	if term.Reason != models.TerminationMaxSteps {
		t.Errorf("expected reason %q, got %q", models.TerminationMaxSteps, term.Reason)
	}
	if term.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", term.Steps)
	}
	if got := provider.callCount(); got != 2 {
		t.Errorf("expected exactly 2 completion calls, got %d", got)
	}
	if got := echo.invoked.Load(); got != 2 {
		t.Errorf("expected tool invoked twice, got %d", got)
	}
}

func TestLoopDefaultStepCeiling(t *testing.T) {
	echo := &stubTool{name: "ledger_query"}
	var scripts [][]*CompletionChunk
	for i := 0; i < 10; i++ {
		scripts = append(scripts, []*CompletionChunk{
			toolCallChunk(fmt.Sprintf("call-%d", i), "ledger_query", `{"value":"again"}`),
		})
	}
	provider := &stubProvider{scripts: scripts}
	loop := newTestLoop(t, provider, nil, echo)

	events := runAndDrain(t, loop, context.Background())

	term := terminationOf(t, events)
	if term.Reason != models.TerminationMaxSteps {
		t.Errorf("expected reason %q, got %q", models.TerminationMaxSteps, term.Reason)
	}
	if term.Steps != DefaultMaxSteps {
		t.Errorf("expected %d steps, got %d", DefaultMaxSteps, term.Steps)
	}
	if got := provider.callCount(); got != DefaultMaxSteps {
		t.Errorf("expected %d completion calls, got %d", DefaultMaxSteps, got)
	}
}

func TestLoopInvalidArgumentsRecovery(t *testing.T) {
	// Step 1: schema-violating call. Step 2: model acknowledges and answers.
	tool := &stubTool{name: "invoice_create"}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{toolCallChunk("call-1", "invoice_create", `{"wrong_field": 42}`)},
		textChunks("I could not create the invoice."),
	}}
	loop := newTestLoop(t, provider, nil, tool)

	events := runAndDrain(t, loop, context.Background())

	if got := tool.invoked.Load(); got != 0 {
		t.Errorf("tool body ran %d times, want 0 for invalid arguments", got)
	}

	finished := eventsOfType(events, models.EventToolFinished)
	if len(finished) != 1 {
		t.Fatalf("expected 1 tool.finished event, got %d", len(finished))
	}
	if finished[0].Tool.Success {
		t.Errorf("expected failed tool outcome")
	}
	if finished[0].Tool.ErrorKind != models.ToolErrorInvalidArguments {
		t.Errorf("expected error kind %q, got %q", models.ToolErrorInvalidArguments, finished[0].Tool.ErrorKind)
	}

	term := terminationOf(t, events)
	if term.Reason != models.TerminationNoToolCalls {
		t.Errorf("expected reason %q, got %q", models.TerminationNoToolCalls, term.Reason)
	}
	if term.Steps != 2 {
		t.Errorf("expected run to end after step 2, got %d steps", term.Steps)
	}
}

func TestLoopUnknownToolRecovery(t *testing.T) {
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{toolCallChunk("call-1", "shred_documents", `{"value":"all"}`)},
		textChunks("That tool is not available."),
	}}
	loop := newTestLoop(t, provider, nil)

	events := runAndDrain(t, loop, context.Background())

	finished := eventsOfType(events, models.EventToolFinished)
	if len(finished) != 1 {
		t.Fatalf("expected 1 tool.finished event, got %d", len(finished))
	}
	if finished[0].Tool.ErrorKind != models.ToolErrorUnknownTool {
		t.Errorf("expected error kind %q, got %q", models.ToolErrorUnknownTool, finished[0].Tool.ErrorKind)
	}

	term := terminationOf(t, events)
	if term.Reason != models.TerminationNoToolCalls {
		t.Errorf("expected recovery and text termination, got %q", term.Reason)
	}
}

func TestLoopParallelCallsSurfaceInDeclarationOrder(t *testing.T) {
	// The first declared call completes last; declaration order must win.
	delays := map[string]time.Duration{
		"a": 120 * time.Millisecond,
		"b": 60 * time.Millisecond,
		"c": 5 * time.Millisecond,
	}
	tool := &stubTool{
		name: "bank_transactions",
		execute: func(_ context.Context, params json.RawMessage) (*ToolResult, error) {
			var input struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return nil, err
			}
			time.Sleep(delays[input.Value])
			return &ToolResult{Content: "feed-" + input.Value}, nil
		},
	}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{
			toolCallChunk("call-a", "bank_transactions", `{"value":"a"}`),
			toolCallChunk("call-b", "bank_transactions", `{"value":"b"}`),
			toolCallChunk("call-c", "bank_transactions", `{"value":"c"}`),
		},
		textChunks("All three feeds are in."),
	}}
	loop := newTestLoop(t, provider, nil, tool)

	events := runAndDrain(t, loop, context.Background())

	started := eventsOfType(events, models.EventToolStarted)
	finished := eventsOfType(events, models.EventToolFinished)
	if len(started) != 3 || len(finished) != 3 {
		t.Fatalf("expected 3 started and 3 finished events, got %d/%d", len(started), len(finished))
	}

	wantOrder := []string{"call-a", "call-b", "call-c"}
	for i, want := range wantOrder {
		if started[i].Tool.CallID != want {
			t.Errorf("tool.started[%d] = %q, want %q", i, started[i].Tool.CallID, want)
		}
		if finished[i].Tool.CallID != want {
			t.Errorf("tool.finished[%d] = %q, want %q", i, finished[i].Tool.CallID, want)
		}
	}
	for i, suffix := range []string{"a", "b", "c"} {
		if finished[i].Tool.Result != "feed-"+suffix {
			t.Errorf("tool.finished[%d] result = %q, want %q", i, finished[i].Tool.Result, "feed-"+suffix)
		}
	}
}

func TestLoopNoOrphanedToolCalls(t *testing.T) {
	tool := &stubTool{name: "ledger_query"}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{
			toolCallChunk("call-1", "ledger_query", `{"value":"revenue"}`),
			toolCallChunk("call-2", "missing_tool", `{"value":"x"}`),
			toolCallChunk("call-3", "ledger_query", `{"bad": true}`),
		},
		textChunks("done"),
	}}
	loop := newTestLoop(t, provider, nil, tool)

	events := runAndDrain(t, loop, context.Background())

	started := eventsOfType(events, models.EventToolStarted)
	finished := eventsOfType(events, models.EventToolFinished)
	if len(started) != len(finished) {
		t.Fatalf("started %d calls but finished %d", len(started), len(finished))
	}

	results := make(map[string]bool)
	for _, event := range finished {
		results[event.Tool.CallID] = true
	}
	for _, event := range started {
		if !results[event.Tool.CallID] {
			t.Errorf("call %s has no recorded outcome", event.Tool.CallID)
		}
	}
}

func TestLoopUpstreamErrorTerminatesImmediately(t *testing.T) {
	provider := &stubProvider{err: fmt.Errorf("completion service unavailable")}
	loop := newTestLoop(t, provider, nil)

	events := runAndDrain(t, loop, context.Background())

	errs := eventsOfType(events, models.EventRunError)
	if len(errs) != 1 {
		t.Fatalf("expected 1 run.error event, got %d", len(errs))
	}

	term := terminationOf(t, events)
	if term.Reason != models.TerminationUpstreamError {
		t.Errorf("expected reason %q, got %q", models.TerminationUpstreamError, term.Reason)
	}
	if term.Steps != 0 {
		t.Errorf("expected no recorded steps, got %d", term.Steps)
	}

	if deltas := eventsOfType(events, models.EventModelDelta); len(deltas) != 0 {
		t.Errorf("expected no fabricated output, got %d deltas", len(deltas))
	}
}

func TestLoopMidStreamErrorDiscardsPartialStep(t *testing.T) {
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{
			{Text: "Let me check"},
			{Error: fmt.Errorf("stream reset")},
		},
	}}
	loop := newTestLoop(t, provider, nil)

	events := runAndDrain(t, loop, context.Background())

	term := terminationOf(t, events)
	if term.Reason != models.TerminationUpstreamError {
		t.Errorf("expected reason %q, got %q", models.TerminationUpstreamError, term.Reason)
	}
	if term.Steps != 0 {
		t.Errorf("partial step must not be recorded, got %d steps", term.Steps)
	}
}

func TestLoopEventStreamOrderAndSequence(t *testing.T) {
	tool := &stubTool{name: "ledger_query"}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{
			{Text: "Looking up "},
			{Text: "the ledger."},
			toolCallChunk("call-1", "ledger_query", `{"value":"expenses"}`),
		},
		textChunks("You spent $320 on software."),
	}}
	loop := newTestLoop(t, provider, nil, tool)

	events := runAndDrain(t, loop, context.Background())

	wantTypes := []models.AgentEventType{
		models.EventRunStarted,
		models.EventStepStarted,
		models.EventModelDelta,
		models.EventModelDelta,
		models.EventToolStarted,
		models.EventToolFinished,
		models.EventStepFinished,
		models.EventStepStarted,
		models.EventModelDelta,
		models.EventStepFinished,
		models.EventRunTerminated,
	}
	if len(events) != len(wantTypes) {
		var got []string
		for _, event := range events {
			got = append(got, string(event.Type))
		}
		t.Fatalf("expected %d events, got %d: %v", len(wantTypes), len(events), got)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event[%d] = %q, want %q", i, events[i].Type, want)
		}
	}

	var lastSeq uint64
	for i, event := range events {
		if event.Sequence <= lastSeq {
			t.Errorf("event[%d] sequence %d not monotonically increasing after %d", i, event.Sequence, lastSeq)
		}
		lastSeq = event.Sequence
		if event.Version != models.AgentEventVersion {
			t.Errorf("event[%d] version = %d, want %d", i, event.Version, models.AgentEventVersion)
		}
		if event.RunID == "" {
			t.Errorf("event[%d] missing run ID", i)
		}
	}

	// Step indexes: step 0 for the first turn's events, step 1 for the second.
	if events[1].StepIndex != 0 || events[6].StepIndex != 0 {
		t.Errorf("first step events carry index %d/%d, want 0", events[1].StepIndex, events[6].StepIndex)
	}
	if events[7].StepIndex != 1 || events[9].StepIndex != 1 {
		t.Errorf("second step events carry index %d/%d, want 1", events[7].StepIndex, events[9].StepIndex)
	}
}

func TestLoopToolFailureIsRecoverable(t *testing.T) {
	tool := &stubTool{
		name: "email_send",
		execute: func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
			return nil, fmt.Errorf("smtp connection refused")
		},
	}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{toolCallChunk("call-1", "email_send", `{"value":"invoice"}`)},
		textChunks("Sending failed, the mail server is down."),
	}}
	loop := newTestLoop(t, provider, nil, tool)

	events := runAndDrain(t, loop, context.Background())

	finished := eventsOfType(events, models.EventToolFinished)
	if len(finished) != 1 {
		t.Fatalf("expected 1 tool.finished event, got %d", len(finished))
	}
	if finished[0].Tool.ErrorKind != models.ToolErrorExecutionFailed {
		t.Errorf("expected error kind %q, got %q", models.ToolErrorExecutionFailed, finished[0].Tool.ErrorKind)
	}

	term := terminationOf(t, events)
	if term.Reason != models.TerminationNoToolCalls {
		t.Errorf("tool failure must not end the run, got %q", term.Reason)
	}
}

func TestLoopRejectsEmptyUserMessage(t *testing.T) {
	provider := &stubProvider{}
	loop := newTestLoop(t, provider, nil)

	if _, err := loop.Run(context.Background(), nil, &models.Message{Role: models.RoleUser, Content: "   "}); err == nil {
		t.Errorf("expected error for blank user message")
	}
	if _, err := loop.Run(context.Background(), nil, nil); err == nil {
		t.Errorf("expected error for nil user message")
	}
}

func TestLoopCancellationDiscardsInFlightResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	tool := &stubTool{
		name: "bank_transactions",
		execute: func(_ context.Context, _ json.RawMessage) (*ToolResult, error) {
			cancel()
			time.Sleep(20 * time.Millisecond)
			return &ToolResult{Content: "late"}, nil
		},
	}
	provider := &stubProvider{scripts: [][]*CompletionChunk{
		{toolCallChunk("call-1", "bank_transactions", `{"value":"recent"}`)},
		textChunks("never reached"),
	}}
	loop := newTestLoop(t, provider, nil, tool)

	msg := &models.Message{Role: models.RoleUser, Content: "pull the feed"}
	events, err := loop.Run(ctx, nil, msg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var collected []models.AgentEvent
	for event := range events {
		collected = append(collected, event)
	}

	term := terminationOf(t, collected)
	if term.Reason != models.TerminationUpstreamError {
		t.Errorf("expected cancellation to end the run, got %q", term.Reason)
	}
	if got := provider.callCount(); got != 1 {
		t.Errorf("expected no completion call after cancellation, got %d", got)
	}
	if finished := eventsOfType(collected, models.EventToolFinished); len(finished) != 0 {
		t.Errorf("in-flight results must be discarded, got %d tool.finished events", len(finished))
	}
}
