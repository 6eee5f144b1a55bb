// Package gateway runs the docwatch servers.
//
// # Overview
//
// The Gateway owns the document store, the watch registry and the session
// handler, and exposes sessions over two transports:
//
//   - GET /ws upgrades to a WebSocket carrying JSON event envelopes
//   - docwatch.v1.SessionService/Connect is a bidirectional gRPC stream
//     carrying the same envelopes with the "json" content subtype
//
// Both transports accept an optional bearer token (Authorization header or
// gRPC metadata) that pre-authenticates the session. Without one, sessions
// start anonymous and use the signup or auth events.
//
// # HTTP Endpoints
//
//   - GET /health - Liveness check
//   - GET /health/ready - Storage reachability and session counts
//   - GET /ws - Session WebSocket
//   - GET /* - Static files when server.static_dir is set
//
// The gRPC server also registers the standard grpc.health.v1 service.
//
// # Outbound Delivery
//
// Each connection has a bounded outbox drained by a single writer goroutine.
// Replies and change notifications never block a command; when a client falls
// behind by more than the outbox size, further messages are dropped.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
package gateway
