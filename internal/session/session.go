// ABOUTME: Per-connection protocol state machine for the document store
// ABOUTME: Handles signup, auth, update, fetch, watch, unwatch and disconnect events

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/docwatch/internal/auth"
	"github.com/2389/docwatch/internal/document"
)

// Session is one client connection. Commands run one at a time, each to
// completion. A Session is also the watch.Subscriber for its connection.
type Session struct {
	id  string
	h   *Handler
	out Outbox

	mu       sync.Mutex
	identity string
	watched  map[string]struct{}
	closed   bool
}

func newSession(h *Handler, out Outbox, identity string) *Session {
	return &Session{
		id:       uuid.NewString(),
		h:        h,
		out:      out,
		identity: identity,
		watched:  make(map[string]struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the bound identity, or "" while anonymous.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Notify queues a change event. It is called by the watch registry.
func (s *Session) Notify(target string, view *document.Document) error {
	return s.out.Send(Change(target, view))
}

// Handle runs one inbound command. Failures that the client should hear
// about are replied as an issue and also returned. An auth event with a bad
// token replies nothing and returns an error wrapping auth.ErrInvalidToken.
func (s *Session) Handle(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	spanName := "session." + msg.Event
	if !knownEvent(msg.Event) {
		spanName = "session.unknown"
	}
	ctx, span := s.h.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("session.identity", s.identity),
	))
	defer span.End()

	err := s.dispatch(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Close tears the session down, removing every watch it holds. Safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true

	targets := slices.Collect(maps.Keys(s.watched))
	s.h.watches.RemoveAll(s, targets)
	clear(s.watched)

	s.h.active.Add(-1)
	s.h.logger.Debug("session closed", "session_id", s.id, "identity", s.identity, "watches", len(targets))
}

func knownEvent(event string) bool {
	switch event {
	case EventSignup, EventAuth, EventUpdate, EventFetch, EventWatch, EventUnwatch, EventDisconnect:
		return true
	}
	return false
}

func (s *Session) dispatch(ctx context.Context, msg Message) error {
	var err error
	switch msg.Event {
	case EventSignup:
		err = s.signup(ctx)
	case EventAuth:
		// Bad tokens are dropped without a reply.
		return s.authenticate(msg.Arg(0))
	case EventUpdate:
		err = s.update(ctx, msg.Arg(0), msg.Arg(1), msg.Arg(2))
	case EventFetch:
		err = s.fetch(ctx, msg.Arg(0), msg.Arg(1))
	case EventWatch:
		err = s.watch(ctx, msg.Arg(0), msg.Arg(1))
	case EventUnwatch:
		err = s.unwatch(ctx, msg.Arg(0))
	case EventDisconnect:
		s.closeLocked()
		return nil
	default:
		s.reply(Issue(ErrUnknownEvent.Error()))
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}

	if err != nil {
		s.h.logger.Debug("command failed",
			"session_id", s.id,
			"event", msg.Event,
			"identity", s.identity,
			"error", err)
		s.reply(Issue(document.IssueMessage(err)))
	}
	return err
}

func (s *Session) reply(msg Message) {
	if err := s.out.Send(msg); err != nil {
		s.h.logger.Debug("reply dropped", "session_id", s.id, "event", msg.Event, "error", err)
	}
}

func (s *Session) signup(ctx context.Context) error {
	for range signupAttempts {
		candidate := s.h.newIdentity()
		err := s.h.store.Create(ctx, document.New(candidate, s.h.now()))
		if errors.Is(err, document.ErrExists) {
			s.h.logger.Debug("signup collision", "candidate", candidate)
			continue
		}
		if err != nil {
			return err
		}

		token, err := s.h.tokens.Generate(candidate, s.h.tokenTTL)
		if err != nil {
			return fmt.Errorf("%w: signing token: %v", document.ErrPersistence, err)
		}

		s.identity = candidate
		s.h.logger.Info("signup", "session_id", s.id, "identity", candidate)
		s.reply(Auth(candidate, token))
		return nil
	}
	return fmt.Errorf("%w: no free identity after %d attempts", document.ErrExists, signupAttempts)
}

func (s *Session) authenticate(rawToken json.RawMessage) error {
	var token string
	if err := json.Unmarshal(rawToken, &token); err != nil || token == "" {
		s.h.logger.Debug("invalid token", "session_id", s.id, "reason", "not a string")
		return fmt.Errorf("%w: token must be a non-empty string", auth.ErrInvalidToken)
	}

	identity, err := s.h.tokens.Verify(token)
	if err != nil {
		s.h.logger.Debug("invalid token", "session_id", s.id, "error", err)
		if !errors.Is(err, auth.ErrInvalidToken) {
			err = fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
		}
		return err
	}

	s.identity = identity
	s.h.logger.Debug("auth", "session_id", s.id, "identity", identity)
	s.reply(Auth(identity, token))
	return nil
}

func (s *Session) update(ctx context.Context, rawChanges, rawTarget, rawMerge json.RawMessage) error {
	target, err := s.resolveTarget(rawTarget)
	if err != nil {
		return err
	}

	cs, err := document.ParseChangeSet(rawChanges)
	if err != nil {
		return err
	}
	merge := gjson.ParseBytes(rawMerge).Bool()
	actor := s.identity

	doc, err := s.h.store.Update(ctx, target, func(current *document.Document) (*document.Document, error) {
		if err := document.CheckAccess(actor, current); err != nil {
			return nil, err
		}
		if err := document.CheckVersion(current, cs.BaseVersion); err != nil {
			return nil, err
		}
		return document.Apply(actor, current, cs, merge, s.h.now()), nil
	}, s.h.watches.Notify)
	if err != nil {
		return err
	}

	s.h.logger.Debug("update", "session_id", s.id, "target", target, "version", doc.Version(), "merge", merge)
	s.reply(Version(target, doc.Version()))
	return nil
}

func (s *Session) fetch(ctx context.Context, rawTarget, rawFields json.RawMessage) error {
	target, err := s.resolveTarget(rawTarget)
	if err != nil {
		return err
	}
	fields, err := parseFields(rawFields)
	if err != nil {
		return err
	}

	doc, err := s.readAuthorized(ctx, target)
	if err != nil {
		return err
	}

	s.reply(Data(target, document.Project(doc, fields)))
	return nil
}

func (s *Session) watch(ctx context.Context, rawTarget, rawFields json.RawMessage) error {
	target, err := s.resolveTarget(rawTarget)
	if err != nil {
		return err
	}
	fields, err := parseFields(rawFields)
	if err != nil {
		return err
	}

	if _, err := s.readAuthorized(ctx, target); err != nil {
		return err
	}

	s.h.watches.Add(target, s, fields, s.identity)
	s.watched[target] = struct{}{}
	return nil
}

func (s *Session) unwatch(ctx context.Context, rawTarget json.RawMessage) error {
	target, err := s.resolveTarget(rawTarget)
	if err != nil {
		return err
	}

	if _, err := s.readAuthorized(ctx, target); err != nil {
		return err
	}

	s.h.watches.Remove(target, s)
	delete(s.watched, target)
	return nil
}

func (s *Session) readAuthorized(ctx context.Context, target string) (*document.Document, error) {
	doc, err := s.h.store.Read(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := document.CheckAccess(s.identity, doc); err != nil {
		s.h.logger.Debug("access denied", "target", target, "requestor", s.identity)
		return nil, err
	}
	return doc, nil
}

// resolveTarget returns the named target, defaulting to the session's own
// identity when the argument is missing, null or empty.
func (s *Session) resolveTarget(raw json.RawMessage) (string, error) {
	var target string
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &target); err != nil {
			return "", fmt.Errorf("%w: target must be a string", document.ErrSerialization)
		}
	}
	if target != "" {
		return target, nil
	}
	if s.identity == "" {
		return "", fmt.Errorf("%w: no identity bound", document.ErrAccessDenied)
	}
	return s.identity, nil
}

// parseFields decodes an optional list of dotted field paths.
func parseFields(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: fields must be a list of strings", document.ErrSerialization)
	}
	return fields, nil
}
