// ABOUTME: Bounded non-blocking outbound queue shared by the WebSocket and gRPC transports
// ABOUTME: A single writer goroutine drains it so transport writes never run concurrently

package gateway

import (
	"errors"
	"sync"

	"github.com/2389/docwatch/internal/session"
)

// outboxSize is the number of undelivered messages a connection may hold.
const outboxSize = 64

var (
	errOutboxFull   = errors.New("outbound queue full")
	errOutboxClosed = errors.New("connection closed")
)

// outbox queues messages for one connection. Send never blocks; when the
// client is not keeping up the message is dropped and an error returned.
type outbox struct {
	mu     sync.Mutex
	ch     chan session.Message
	closed bool
}

func newOutbox() *outbox {
	return &outbox{ch: make(chan session.Message, outboxSize)}
}

// Send implements session.Outbox.
func (o *outbox) Send(msg session.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errOutboxClosed
	}

	select {
	case o.ch <- msg:
		return nil
	default:
		return errOutboxFull
	}
}

// Messages returns the channel the writer drains. It is closed by Close.
func (o *outbox) Messages() <-chan session.Message {
	return o.ch
}

// Close stops accepting messages. Queued messages remain readable.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}
