package models

import "time"

type EventKind string

const (
	EventChat            EventKind = "chat"
	EventSystem          EventKind = "system"
	EventMention         EventKind = "mention"
	EventHistoryComplete EventKind = "history-complete"
	EventRoster          EventKind = "roster"
	EventUnknown         EventKind = "unknown"
	EventDiagnostic      EventKind = "diagnostic"
	EventNotice          EventKind = "notice"
	EventHealth          EventKind = "health"
	EventServerInfo      EventKind = "server-info"
)

// Event is a single item handed to the presentation layer.
// Only the fields relevant to Kind are set. A zero Timestamp on a chat
// event means the server sent none and the sink should use the display time.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Username  string
	Text      string
	Raw       []byte
	Members   []string
	State     string
	Err       error
	Info      *ServerInfo
}

// Sink receives display, diagnostic and notification events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
