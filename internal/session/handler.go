// ABOUTME: Session handler wiring the document store, watch registry and tokens together
// ABOUTME: Creates sessions for transports and tracks how many are connected

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/docwatch/internal/auth"
	"github.com/2389/docwatch/internal/docstore"
	"github.com/2389/docwatch/internal/document"
	"github.com/2389/docwatch/internal/watch"
)

// signupAttempts bounds how many generated identities signup tries before
// giving up on collisions.
const signupAttempts = 5

// Command errors that have no document-level equivalent.
var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrClosed       = errors.New("session closed")
)

// Store is the subset of the document store sessions use.
type Store interface {
	Read(ctx context.Context, username string) (*document.Document, error)
	Create(ctx context.Context, doc *document.Document) error
	Update(ctx context.Context, username string, mutate docstore.MutateFunc, committed func(*document.Document)) (*document.Document, error)
}

// Tokens issues and verifies session tokens.
type Tokens interface {
	auth.TokenVerifier
	auth.TokenIssuer
}

// Outbox delivers messages to one connected client. Send must not block.
type Outbox interface {
	Send(msg Message) error
}

// Options configures a Handler.
type Options struct {
	Store    Store
	Watches  *watch.Registry
	Tokens   Tokens
	TokenTTL time.Duration

	// NewIdentity generates signup candidates.
	NewIdentity func() string

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Handler holds the state shared by all sessions.
type Handler struct {
	store       Store
	watches     *watch.Registry
	tokens      Tokens
	tokenTTL    time.Duration
	newIdentity func() string
	now         func() time.Time
	tracer      trace.Tracer
	logger      *slog.Logger
	active      atomic.Int64
}

// NewHandler creates a Handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		store:       opts.Store,
		watches:     opts.Watches,
		tokens:      opts.Tokens,
		tokenTTL:    opts.TokenTTL,
		newIdentity: opts.NewIdentity,
		now:         now,
		tracer:      otel.Tracer("github.com/2389/docwatch/internal/session"),
		logger:      logger.With("component", "session"),
	}
}

// NewSession starts a session that replies through out. identity is the
// pre-authenticated identity from the transport, or "" for anonymous.
func (h *Handler) NewSession(out Outbox, identity string) *Session {
	s := newSession(h, out, identity)
	h.active.Add(1)
	h.logger.Debug("session opened", "session_id", s.id, "identity", identity)
	return s
}

// ActiveSessions returns the number of sessions not yet closed.
func (h *Handler) ActiveSessions() int64 {
	return h.active.Load()
}
