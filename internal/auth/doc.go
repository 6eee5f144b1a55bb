// Package auth issues and verifies the tokens that bind a session to an
// identity.
//
// Tokens are HS256 JWTs signed with the configured jwt_secret; the identity is
// the "sub" claim. Tokens issued with a zero TTL never expire.
//
// # Pre-authentication
//
// Sessions normally authenticate in-band with a signup or auth event. Clients
// that already hold a token may instead present it when connecting:
//
//	Authorization: Bearer <token>
//
// OptionalAuthMiddleware handles this for the WebSocket upgrade and
// StreamInterceptor for gRPC. Both attach the identity with WithIdentity; the
// transports read it back with IdentityFromContext.
package auth
