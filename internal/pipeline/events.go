// Package pipeline drives case generation: base case synthesis with
// coverage review, runnable case compilation with pre-flight execution,
// and the orchestration across an interface's case set.
package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Event types published on a generation stream.
const (
	EventInfo     = "info"
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// DoneSentinel terminates an SSE stream after the last event.
const DoneSentinel = "[DONE]"

// Event is one progress notification from a running generation.
type Event struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Stream is a buffered channel of events with close-once semantics.
type Stream struct {
	ch        chan Event
	closeOnce sync.Once
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event { return s.ch }

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Emitter publishes events onto a stream. A nil emitter (or one over a
// nil stream) discards everything, so workflows can run silently.
type Emitter struct {
	stream *Stream
}

// NewEmitter wraps a stream, which may be nil.
func NewEmitter(s *Stream) *Emitter { return &Emitter{stream: s} }

func (e *Emitter) emit(eventType, message string, data map[string]any) {
	if e == nil || e.stream == nil {
		return
	}
	e.stream.ch <- Event{Type: eventType, Message: message, Data: data}
}

// Info publishes an informational event.
func (e *Emitter) Info(format string, args ...any) {
	e.emit(EventInfo, fmt.Sprintf(format, args...), nil)
}

// Progress publishes a progress event with an optional payload.
func (e *Emitter) Progress(message string, data map[string]any) {
	e.emit(EventProgress, message, data)
}

// Complete publishes a completion event with an optional payload.
func (e *Emitter) Complete(message string, data map[string]any) {
	e.emit(EventComplete, message, data)
}

// Error publishes an error event.
func (e *Emitter) Error(format string, args ...any) {
	e.emit(EventError, fmt.Sprintf(format, args...), nil)
}

// WriteSSE frames one event as a server-sent event.
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteSSEDone writes the terminating sentinel frame.
func WriteSSEDone(w io.Writer) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", DoneSentinel)
	return err
}

// DrainSSE copies a whole stream onto w in SSE framing, ending with the
// sentinel. Flush is called after each frame when w supports it.
func DrainSSE(w io.Writer, s *Stream) error {
	type flusher interface{ Flush() }
	f, _ := w.(flusher)
	for event := range s.Events() {
		if err := WriteSSE(w, event); err != nil {
			return err
		}
		if f != nil {
			f.Flush()
		}
	}
	if err := WriteSSEDone(w); err != nil {
		return err
	}
	if f != nil {
		f.Flush()
	}
	return nil
}
