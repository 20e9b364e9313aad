package agent

import (
	"sync/atomic"
	"time"

	"github.com/numera-ai/numera/pkg/models"
)

// EventSink receives a copy of every event a run emits. Sinks observe; they
// never influence the run.
type EventSink interface {
	Emit(event models.AgentEvent)
}

// EventEmitter converts loop progress into the ordered agent event stream.
//
// The emitter is a pure observer of the controller: it assigns monotonic
// sequence numbers, stamps step indexes, and forwards each event to the
// run's output channel (and any extra sinks) as soon as it is produced.
// Nothing is buffered per-response; a model delta goes out the moment the
// provider yields it.
type EventEmitter struct {
	runID     string
	sessionID string
	sequence  atomic.Uint64
	stepIndex atomic.Int64

	out   chan<- models.AgentEvent
	sinks []EventSink
}

// NewEventEmitter creates an emitter for one run, writing to out.
func NewEventEmitter(runID, sessionID string, out chan<- models.AgentEvent, sinks ...EventSink) *EventEmitter {
	e := &EventEmitter{
		runID:     runID,
		sessionID: sessionID,
		out:       out,
		sinks:     sinks,
	}
	e.stepIndex.Store(-1)
	return e
}

// SetStep sets the step index stamped on subsequent events.
func (e *EventEmitter) SetStep(index int) {
	e.stepIndex.Store(int64(index))
}

// Sequence returns the number of events emitted so far.
func (e *EventEmitter) Sequence() uint64 {
	return e.sequence.Load()
}

func (e *EventEmitter) base(eventType models.AgentEventType) models.AgentEvent {
	return models.AgentEvent{
		Version:   models.AgentEventVersion,
		Type:      eventType,
		Time:      time.Now().UTC(),
		Sequence:  e.sequence.Add(1),
		RunID:     e.runID,
		SessionID: e.sessionID,
		StepIndex: int(e.stepIndex.Load()),
	}
}

func (e *EventEmitter) emit(event models.AgentEvent) {
	if e.out != nil {
		e.out <- event
	}
	for _, sink := range e.sinks {
		sink.Emit(event)
	}
}

// RunStarted emits the run.started event.
func (e *EventEmitter) RunStarted() {
	e.emit(e.base(models.EventRunStarted))
}

// StepStarted emits the step.started event for the given step.
func (e *EventEmitter) StepStarted(index int) {
	e.SetStep(index)
	e.emit(e.base(models.EventStepStarted))
}

// ModelDelta emits one incremental text fragment.
func (e *EventEmitter) ModelDelta(delta string) {
	event := e.base(models.EventModelDelta)
	event.Delta = delta
	e.emit(event)
}

// ToolStarted emits the dispatch event for one tool call.
func (e *EventEmitter) ToolStarted(call models.ToolCall) {
	event := e.base(models.EventToolStarted)
	event.Tool = &models.ToolEventPayload{
		CallID: call.ID,
		Name:   call.Name,
		Args:   call.Input,
	}
	e.emit(event)
}

// ToolFinished emits the outcome event for one tool call.
func (e *EventEmitter) ToolFinished(result ExecutionResult) {
	event := e.base(models.EventToolFinished)
	event.Tool = &models.ToolEventPayload{
		CallID:     result.Result.ToolCallID,
		Name:       result.ToolName,
		Success:    !result.Result.IsError,
		Result:     result.Result.Content,
		ErrorKind:  result.Result.ErrorKind,
		DurationMS: result.Duration.Milliseconds(),
	}
	e.emit(event)
}

// StepFinished emits the step.finished event for the given step.
func (e *EventEmitter) StepFinished(index int) {
	e.SetStep(index)
	e.emit(e.base(models.EventStepFinished))
}

// RunTerminated emits the closing run.terminated event.
func (e *EventEmitter) RunTerminated(reason models.TerminationReason, steps int) {
	event := e.base(models.EventRunTerminated)
	event.Termination = &models.TerminationPayload{
		Reason: reason,
		Steps:  steps,
	}
	e.emit(event)
}

// RunError emits a run.error event for a fatal upstream failure.
func (e *EventEmitter) RunError(err error) {
	event := e.base(models.EventRunError)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	event.Error = &models.ErrorPayload{Message: msg}
	e.emit(event)
}
