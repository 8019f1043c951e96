// Package display defines the contract with the subtitle display layer.
// Events are fire-and-forget: the orchestration core never consumes a
// return value from the sink.
package display

import (
	"log/slog"
	"sync"
)

// EventType identifies a display event.
type EventType string

const (
	EventStarted  EventType = "started"
	EventStopped  EventType = "stopped"
	EventSubtitle EventType = "subtitle"
	EventError    EventType = "error"
)

// Event is a single notification to the display layer.
type Event struct {
	Type      EventType `json:"event"`
	SourceKey string    `json:"source_key,omitempty"`
	Text      string    `json:"text,omitempty"`
	Language  string    `json:"language,omitempty"`
}

// Sink renders recognized text and session state changes.
type Sink interface {
	Publish(event Event)
}

// LogSink writes display events to the structured log. It stands in for a
// real rendering surface in headless runs.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event.
func (s *LogSink) Publish(event Event) {
	s.logger.Info("Display event",
		slog.String("event", string(event.Type)),
		slog.String("source_key", event.SourceKey),
		slog.String("text", event.Text),
		slog.String("language", event.Language),
	)
}

// StubSink records published events for assertions in tests.
type StubSink struct {
	mu     sync.Mutex
	events []Event
}

// NewStubSink creates an empty recording sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// Publish records the event.
func (s *StubSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all recorded events.
func (s *StubSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsOfType returns recorded events matching the given type.
func (s *StubSink) EventsOfType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
