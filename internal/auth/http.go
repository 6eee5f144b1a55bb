// ABOUTME: HTTP middleware for optional bearer-token authentication
// ABOUTME: Attaches the verified identity to the request context for the WebSocket upgrade

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// OptionalAuthMiddleware verifies a bearer token when one is present and
// rejects the request if it is invalid. Requests without an Authorization
// header pass through anonymous.
func OptionalAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(header)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				if logger != nil {
					logger.Warn("auth failure", "reason", err.Error(), "remote_addr", r.RemoteAddr)
				}
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
