package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/keremk/renku-sub000/internal/domain"
)

// sseEventData is the JSON payload of one executor SSE frame.
type sseEventData struct {
	Layer    int    `json:"layer"`
	Producer string `json:"producer"`
	Job      string `json:"job"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Verdict  string `json:"verdict"`
	Error    string `json:"error"`
}

// SSEStream decodes text/event-stream frames from an executor response
// body into ordered Events. The body closing cleanly is the terminal
// state; read failures surface as a ConnectivityError.
type SSEStream struct {
	body   io.ReadCloser
	events chan Event

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

// NewSSEStream starts decoding body. The caller owns Close, which also
// closes body and unblocks the decoder.
func NewSSEStream(body io.ReadCloser) *SSEStream {
	s := &SSEStream{
		body:   body,
		events: make(chan Event, 16),
	}
	go s.decode()
	return s
}

func (s *SSEStream) Events() <-chan Event { return s.events }

func (s *SSEStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SSEStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

func (s *SSEStream) decode() {
	defer close(s.events)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder
	sawTerminal := false

	dispatch := func() {
		if eventName == "" && data.Len() == 0 {
			return
		}
		event, ok := decodeFrame(eventName, data.String())
		eventName = ""
		data.Reset()
		if !ok {
			return
		}
		if event.Kind == EventRunComplete {
			sawTerminal = true
		}
		s.events <- event
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment, e.g. ": ping".
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, "id:"):
			// Arrival order is authoritative; ids are not replayed here.
		}
	}
	dispatch()

	if err := scanner.Err(); err != nil {
		s.setErr(&domain.ConnectivityError{Reason: "execution stream broken", Err: err})
		return
	}
	if !sawTerminal {
		s.setErr(&domain.ConnectivityError{Reason: "execution stream closed without a terminal event", Err: io.ErrUnexpectedEOF})
	}
}

func (s *SSEStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func decodeFrame(eventName, payload string) (Event, bool) {
	kind := EventKind(eventName)
	switch kind {
	case EventLayerStart, EventLayerComplete, EventLayerSkipped,
		EventJobStart, EventJobComplete, EventError, EventInfo, EventRunComplete:
	default:
		return Event{}, false
	}

	var data sseEventData
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			return Event{
				Kind:         EventError,
				Message:      fmt.Sprintf("undecodable %s frame", eventName),
				ErrorDetails: err.Error(),
			}, true
		}
	}
	return Event{
		Kind:         kind,
		Layer:        data.Layer,
		Producer:     data.Producer,
		Job:          data.Job,
		Status:       data.Status,
		Message:      data.Message,
		Verdict:      data.Verdict,
		ErrorDetails: data.Error,
	}, true
}
