// Package stream models the executor's push-based event stream as a
// cancellable, ordered sequence with an explicit terminal closed state.
package stream

import (
	"sync"

	"github.com/keremk/renku-sub000/internal/domain"
)

// EventKind is the wire-level kind of an execution event.
type EventKind string

const (
	EventLayerStart    EventKind = "layer-start"
	EventLayerComplete EventKind = "layer-complete"
	EventLayerSkipped  EventKind = "layer-skipped"
	EventJobStart      EventKind = "job-start"
	EventJobComplete   EventKind = "job-complete"
	EventError         EventKind = "error"
	EventInfo          EventKind = "info"
	EventRunComplete   EventKind = "run-complete"
)

// Verdicts carried by the executor's terminal run-complete event.
const (
	VerdictSuccess = "success"
	VerdictFailure = "failure"
)

// Event is one execution event in arrival order.
type Event struct {
	Kind         EventKind
	Layer        int
	Producer     string
	Job          string
	Status       string
	Message      string
	Verdict      string
	ErrorDetails string
}

// Stream delivers events in order until closure. Events() closing is
// the terminal state; a nil Err() afterwards means the stream ended
// cleanly, otherwise the run's transport broke mid-flight.
type Stream interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Pipe is an in-process Stream fed by a single producer goroutine.
// Publish blocks when the consumer lags, so no event is ever dropped.
// Publish, Close and CloseWithError must all be called from that one
// producing goroutine; Events and Err are safe for any consumer.
type Pipe struct {
	events chan Event

	mu     sync.Mutex
	err    error
	closed bool
}

func NewPipe() *Pipe {
	return &Pipe{events: make(chan Event, 16)}
}

func (p *Pipe) Events() <-chan Event { return p.events }

func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Publish appends one event. It reports false once the pipe is closed.
func (p *Pipe) Publish(event Event) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()
	p.events <- event
	return true
}

// CloseWithError ends the stream, optionally recording a transport
// error surfaced as a domain.ConnectivityError.
func (p *Pipe) CloseWithError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if err != nil {
		p.err = &domain.ConnectivityError{Reason: "stream closed unexpectedly", Err: err}
	}
	close(p.events)
}

func (p *Pipe) Close() error {
	p.CloseWithError(nil)
	return nil
}
