package agent

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/numera-ai/numera/pkg/models"
)

type captureSink struct {
	events []models.AgentEvent
}

func (s *captureSink) Emit(event models.AgentEvent) {
	s.events = append(s.events, event)
}

func TestEmitterSequencesAndStamps(t *testing.T) {
	out := make(chan models.AgentEvent, 16)
	sink := &captureSink{}
	emitter := NewEventEmitter("run-1", "sess-1", out, sink)

	emitter.RunStarted()
	emitter.StepStarted(0)
	emitter.ModelDelta("hel")
	emitter.ModelDelta("lo")
	emitter.StepFinished(0)
	emitter.RunTerminated(models.TerminationNoToolCalls, 1)
	close(out)

	var events []models.AgentEvent
	for event := range out {
		events = append(events, event)
	}

	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	if len(sink.events) != 6 {
		t.Errorf("sink received %d events, want 6", len(sink.events))
	}

	for i, event := range events {
		if event.Sequence != uint64(i+1) {
			t.Errorf("event[%d] sequence = %d, want %d", i, event.Sequence, i+1)
		}
		if event.RunID != "run-1" || event.SessionID != "sess-1" {
			t.Errorf("event[%d] identity = %s/%s", i, event.RunID, event.SessionID)
		}
		if event.Time.IsZero() || time.Since(event.Time) > time.Minute {
			t.Errorf("event[%d] has implausible timestamp %v", i, event.Time)
		}
	}

	if events[0].StepIndex != -1 {
		t.Errorf("run.started step index = %d, want -1", events[0].StepIndex)
	}
	if events[2].Delta != "hel" || events[3].Delta != "lo" {
		t.Errorf("deltas not forwarded as produced: %q %q", events[2].Delta, events[3].Delta)
	}
	if events[5].Termination == nil || events[5].Termination.Reason != models.TerminationNoToolCalls {
		t.Errorf("termination payload missing or wrong: %+v", events[5].Termination)
	}
}

func TestEmitterToolEvents(t *testing.T) {
	out := make(chan models.AgentEvent, 4)
	emitter := NewEventEmitter("run-1", "", out)
	emitter.SetStep(2)

	call := models.ToolCall{ID: "c1", Name: "ledger_query", Input: json.RawMessage(`{"value":"cash"}`)}
	emitter.ToolStarted(call)
	emitter.ToolFinished(ExecutionResult{
		ToolName: "ledger_query",
		Result: models.ToolResult{
			ToolCallID: "c1",
			Content:    "schema violation",
			IsError:    true,
			ErrorKind:  models.ToolErrorInvalidArguments,
		},
		Duration: 25 * time.Millisecond,
	})
	close(out)

	started := <-out
	finished := <-out

	if started.Type != models.EventToolStarted || started.StepIndex != 2 {
		t.Errorf("unexpected started event: %+v", started)
	}
	if started.Tool == nil || started.Tool.CallID != "c1" || string(started.Tool.Args) != `{"value":"cash"}` {
		t.Errorf("started payload wrong: %+v", started.Tool)
	}

	if finished.Tool == nil {
		t.Fatalf("finished event has no payload")
	}
	if finished.Tool.Success {
		t.Errorf("failed outcome reported as success")
	}
	if finished.Tool.ErrorKind != models.ToolErrorInvalidArguments {
		t.Errorf("error kind = %q", finished.Tool.ErrorKind)
	}
	if finished.Tool.DurationMS != 25 {
		t.Errorf("duration = %dms, want 25", finished.Tool.DurationMS)
	}
}

func TestEmitterRunError(t *testing.T) {
	out := make(chan models.AgentEvent, 2)
	emitter := NewEventEmitter("run-1", "", out)

	emitter.RunError(nil)
	emitter.RunError(errors.New("boom"))
	close(out)

	first := <-out
	second := <-out
	if first.Error == nil || first.Error.Message == "" {
		t.Errorf("nil error produced empty payload: %+v", first.Error)
	}
	if second.Error == nil || second.Error.Message != "boom" {
		t.Errorf("error message = %+v", second.Error)
	}
}
