package session

import (
	"context"
	"encoding/json"
)

// EventKind tags a TranscriptEvent.
type EventKind int

const (
	EventReady EventKind = iota
	EventTranscript
	EventError
)

// Event is the only message a session sends to its client.
type Event struct {
	Kind EventKind
	Data string // transcript text or error message
}

func Ready() Event                    { return Event{Kind: EventReady} }
func Transcript(text string) Event    { return Event{Kind: EventTranscript, Data: text} }
func ErrorEvent(message string) Event { return Event{Kind: EventError, Data: message} }

type statusFrame struct {
	Status string `json:"status"`
}

type dataFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// MarshalJSON renders the wire frame:
// {"status":"ready"}, {"type":"transcript","data":...} or {"type":"error","data":...}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventReady:
		return json.Marshal(statusFrame{Status: "ready"})
	case EventTranscript:
		return json.Marshal(dataFrame{Type: "transcript", Data: e.Data})
	default:
		return json.Marshal(dataFrame{Type: "error", Data: e.Data})
	}
}

// Sink delivers events to the client.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// inbound is a client frame. Both fields are optional.
type inbound struct {
	Cmd   *string `json:"cmd"`
	Audio *string `json:"audio"`
}
