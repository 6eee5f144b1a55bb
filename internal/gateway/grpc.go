// ABOUTME: gRPC session transport with a JSON codec and a hand-written service descriptor
// ABOUTME: Each bidirectional Connect stream carries the same event envelopes as the WebSocket

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/2389/docwatch/internal/auth"
	"github.com/2389/docwatch/internal/session"
)

// SessionServiceName is the fully qualified gRPC service name.
const SessionServiceName = "docwatch.v1.SessionService"

// ConnectMethod is the full method name of the session stream.
const ConnectMethod = "/" + SessionServiceName + "/Connect"

// JSONCodecName is the content subtype clients select with
// grpc.CallContentSubtype to speak the session protocol.
const JSONCodecName = "json"

// jsonCodec carries session.Message values as JSON. It is registered
// globally, so protobuf services on the same server keep their own codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return JSONCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// sessionStreamer is the handler type behind sessionServiceDesc.
type sessionStreamer interface {
	Connect(stream grpc.ServerStream) error
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*sessionStreamer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Connect",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(sessionStreamer).Connect(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "docwatch/v1/session",
}

// sessionServer implements the Connect stream.
type sessionServer struct {
	sessions *session.Handler
	logger   *slog.Logger
}

func newSessionServer(sessions *session.Handler, logger *slog.Logger) *sessionServer {
	return &sessionServer{sessions: sessions, logger: logger}
}

// Connect runs one session over a bidirectional stream. The stream ends when
// the client closes its send side, cancels, or sends a disconnect event.
func (s *sessionServer) Connect(stream grpc.ServerStream) error {
	ctx := stream.Context()

	out := newOutbox()
	sess := s.sessions.NewSession(out, auth.IdentityFromContext(ctx))
	logger := s.logger.With("transport", "grpc", "session_id", sess.ID())
	logger.Info("client connected")

	// SendMsg is only ever called from this goroutine.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for msg := range out.Messages() {
			if err := stream.SendMsg(&msg); err != nil {
				logger.Debug("send failed", "error", err)
				// Keep draining so the outbox can be closed cleanly.
				for range out.Messages() {
				}
				return
			}
		}
	}()

	err := s.receive(stream, sess)

	sess.Close()
	out.Close()
	<-writeDone

	logger.Info("client disconnected", "identity", sess.Identity())
	return err
}

func (s *sessionServer) receive(stream grpc.ServerStream, sess *session.Session) error {
	ctx := stream.Context()
	for {
		var msg session.Message
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return status.Errorf(codes.Internal, "receiving message: %v", err)
		}

		err := sess.Handle(ctx, msg)
		if errors.Is(err, session.ErrClosed) || msg.Event == session.EventDisconnect {
			return nil
		}
	}
}
