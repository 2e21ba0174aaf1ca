package pipeline

import (
	"sync"
	"time"
)

// EventType represents the type of execution event.
type EventType string

const (
	// EventRunStarted is emitted when a run begins.
	EventRunStarted EventType = "run_started"

	// EventRunFinished is emitted when a run completes.
	EventRunFinished EventType = "run_finished"

	// EventJobStarted is emitted when a job's first cell starts.
	EventJobStarted EventType = "job_started"

	// EventJobFinished is emitted when a job's last cell finishes.
	EventJobFinished EventType = "job_finished"

	// EventCellFinished is emitted when a matrix cell finishes.
	EventCellFinished EventType = "cell_finished"

	// EventStepFinished is emitted when a step finishes.
	EventStepFinished EventType = "step_finished"
)

// Event is a single execution event. JobID, Cell, and StepID are set
// progressively depending on the event type.
type Event struct {
	Type      EventType     `json:"type"`
	RunID     string        `json:"run_id"`
	JobID     string        `json:"job_id,omitempty"`
	Cell      string        `json:"cell,omitempty"`
	StepID    string        `json:"step_id,omitempty"`
	Status    Status        `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventListener handles execution events. Listeners must not block;
// they run synchronously on the emitting goroutine.
type EventListener func(event Event)

// EventEmitter dispatches execution events to registered listeners.
// The CLI progress printer, the metrics recorder, and the history
// recorder all attach here.
type EventEmitter struct {
	mu        sync.RWMutex
	listeners []EventListener
}

// NewEventEmitter creates a new event emitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// On registers an event listener.
func (e *EventEmitter) On(listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// Emit dispatches an event to all registered listeners.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	listeners := make([]EventListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}
