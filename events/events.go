// Package events carries the streaming protocol between the daemon and a
// run's client: JSON event payloads over server-sent events, one open
// connection per run, plus a registry of live connections used for the
// shutdown broadcast.
package events

import "encoding/json"

// Type discriminates event payloads on the wire.
type Type string

const (
	TypeStart     Type = "start"
	TypeLog       Type = "log"
	TypeError     Type = "error"
	TypeJSON      Type = "json"
	TypeHeartbeat Type = "heartbeat"
	TypeDone      Type = "done"
	TypeShutdown  Type = "shutdown"
)

// Event is one streamed payload. Only the fields relevant to the event's
// type are populated.
type Event struct {
	Type        Type   `json:"type"`
	Description string `json:"description,omitempty"`
	// Invert is only meaningful on start events but never elided there:
	// clients must be able to tell "not inverted" from "absent".
	Invert   *bool  `json:"invert,omitempty"`
	Stream   string `json:"stream,omitempty"`
	Line     string `json:"line,omitempty"`
	Message  string `json:"message,omitempty"`
	Payload  string `json:"payload,omitempty"`
	Failures *int   `json:"failures,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Start announces a run with its resolved filter description. The invert
// flag is always carried, like Failures on done events, so false
// serializes rather than disappearing.
func Start(description string, invert bool) Event {
	return Event{Type: TypeStart, Description: description, Invert: &invert}
}

// LogLine carries one captured output line. Stream identifies the origin
// channel: "stdout", "stderr" or "log".
func LogLine(stream, line string) Event {
	return Event{Type: TypeLog, Stream: stream, Line: line}
}

// Error reports a non-fatal run error to the client.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// JSONPayload carries a machine-readable reporter's consolidated output.
func JSONPayload(payload string) Event {
	return Event{Type: TypeJSON, Payload: payload}
}

// Heartbeat distinguishes an idle-looking run from a dead connection.
func Heartbeat() Event {
	return Event{Type: TypeHeartbeat}
}

// Done is the terminal event of a run.
func Done(failures int) Event {
	return Event{Type: TypeDone, Failures: &failures}
}

// Shutdown notifies a client that the daemon is going away.
func Shutdown(reason string) Event {
	return Event{Type: TypeShutdown, Reason: reason}
}

// Encode renders the event as its JSON wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
