// ABOUTME: WebSocket session transport using coder/websocket
// ABOUTME: Decodes inbound event envelopes, runs them through a session and streams replies

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/docwatch/internal/auth"
	"github.com/2389/docwatch/internal/document"
	"github.com/2389/docwatch/internal/session"
)

// writeTimeout bounds a single outbound frame.
const writeTimeout = 5 * time.Second

// minReadLimit is coder/websocket's default frame limit.
const minReadLimit = 32 * 1024

// handleWebSocket upgrades the request and runs one session over it.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(g.config.Server.AllowedOrigins) > 0 {
		opts.OriginPatterns = g.config.Server.AllowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		g.logger.Debug("websocket accept failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	// Change sets may legitimately exceed the document limit before they are
	// rejected, so leave headroom above it.
	conn.SetReadLimit(max(int64(g.config.Documents.MaxSize)*4, minReadLimit))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newOutbox()
	sess := g.sessions.NewSession(out, auth.IdentityFromContext(r.Context()))
	logger := g.logger.With("transport", "websocket", "session_id", sess.ID())
	logger.Info("client connected", "remote_addr", r.RemoteAddr)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for msg := range out.Messages() {
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancelWrite()
			if err != nil {
				logger.Debug("write failed", "error", err)
				cancel()
				return
			}
		}
	}()

	status, reason := g.readWebSocket(ctx, conn, sess, out)

	sess.Close()
	out.Close()
	<-writeDone

	_ = conn.Close(status, reason)
	logger.Info("client disconnected", "identity", sess.Identity())
}

// readWebSocket feeds inbound frames to sess until the connection ends and
// returns the close status to send.
func (g *Gateway) readWebSocket(ctx context.Context, conn *websocket.Conn, sess *session.Session, out *outbox) (websocket.StatusCode, string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					g.logger.Debug("websocket read failed", "session_id", sess.ID(), "error", err)
				}
			}
			return websocket.StatusNormalClosure, "closed"
		}

		var msg session.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			_ = out.Send(session.Issue(document.ErrSerialization.Error()))
			continue
		}

		err = sess.Handle(ctx, msg)
		if errors.Is(err, session.ErrClosed) || msg.Event == session.EventDisconnect {
			return websocket.StatusNormalClosure, "disconnect"
		}
	}
}
