// ABOUTME: gRPC stream interceptor that pre-authenticates sessions from metadata
// ABOUTME: A valid bearer token binds the identity; no token leaves the stream anonymous

package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// logAuthFailure logs an authentication failure with the peer address when known.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string) {
	if logger == nil {
		return
	}
	attrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	logger.Warn("auth failure", attrs...)
}

// StreamInterceptor returns a gRPC stream interceptor. Streams carrying an
// "authorization: Bearer <token>" header start authenticated; a bad token is
// rejected with Unauthenticated; streams without the header start anonymous
// and may authenticate later with an auth event.
func StreamInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx := ss.Context()

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return handler(srv, ss)
		}

		token, errMsg := extractBearerToken(values[0])
		if errMsg != "" {
			logAuthFailure(logger, ctx, errMsg)
			return status.Error(codes.Unauthenticated, errMsg)
		}

		identity, err := tokens.Verify(token)
		if err != nil {
			logAuthFailure(logger, ctx, err.Error())
			return status.Error(codes.Unauthenticated, ErrInvalidToken.Error())
		}

		return handler(srv, &wrappedServerStream{
			ServerStream: ss,
			ctx:          WithIdentity(ctx, identity),
		})
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
