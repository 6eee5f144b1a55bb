// ABOUTME: Wire message envelope shared by every transport
// ABOUTME: An event name plus positional JSON arguments, with constructors for replies

package session

import (
	"encoding/json"

	"github.com/2389/docwatch/internal/document"
)

// Inbound event names.
const (
	EventSignup     = "signup"
	EventAuth       = "auth"
	EventUpdate     = "update"
	EventFetch      = "fetch"
	EventWatch      = "watch"
	EventUnwatch    = "unwatch"
	EventDisconnect = "disconnect"
)

// Outbound event names. EventAuth is used in both directions.
const (
	EventVersion = "version"
	EventIssue   = "issue"
	EventData    = "data"
	EventChange  = "change"
)

// Message is one event on the wire:
//
//	{"event": "fetch", "args": ["alice", ["score"]]}
type Message struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`
}

// Arg returns the i-th argument, or nil when the sender omitted it.
func (m Message) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(m.Args) {
		return nil
	}
	return m.Args[i]
}

// NewMessage builds a message, encoding each argument as JSON. Arguments that
// cannot be encoded are sent as null.
func NewMessage(event string, args ...any) Message {
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			data = []byte("null")
		}
		raw[i] = data
	}
	return Message{Event: event, Args: raw}
}

// Auth tells the client which identity the session is bound to.
func Auth(identity, token string) Message {
	return NewMessage(EventAuth, identity, token)
}

// Version reports the version a successful update produced.
func Version(target string, version int64) Message {
	return NewMessage(EventVersion, target, version)
}

// Issue reports a failed command.
func Issue(message string) Message {
	return NewMessage(EventIssue, message)
}

// Data answers a fetch.
func Data(target string, view *document.Document) Message {
	return NewMessage(EventData, target, view)
}

// Change notifies a watcher that target was updated.
func Change(target string, view *document.Document) Message {
	return NewMessage(EventChange, target, view)
}
