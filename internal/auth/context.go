// ABOUTME: Identity context for carrying a pre-authenticated identity into sessions
// ABOUTME: Provides WithIdentity/IdentityFromContext used by the transport middleware

package auth

import "context"

type identityKey struct{}

// WithIdentity returns a new context carrying identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the auth middleware,
// or "" for anonymous requests.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey{}).(string)
	return identity
}
