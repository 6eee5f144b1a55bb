// ABOUTME: Unit tests for the gRPC stream pre-authentication interceptor
// ABOUTME: Uses a mock server stream carrying incoming metadata

package auth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var interceptorTestSecret = []byte("interceptor-test-secret")

// mockServerStream implements grpc.ServerStream for testing StreamInterceptor
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

// contextWithAuth creates an incoming context with an authorization header.
func contextWithAuth(header string) context.Context {
	md := metadata.New(map[string]string{"authorization": header})
	return metadata.NewIncomingContext(context.Background(), md)
}

func runInterceptor(t *testing.T, ctx context.Context) (string, bool, error) {
	t.Helper()
	verifier := NewJWTVerifier(interceptorTestSecret)
	interceptor := StreamInterceptor(verifier, nil)

	var identity string
	called := false
	err := interceptor(nil, &mockServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/test/Connect"},
		func(_ any, ss grpc.ServerStream) error {
			called = true
			identity = IdentityFromContext(ss.Context())
			return nil
		})
	return identity, called, err
}

func TestStreamInterceptor_NoMetadata(t *testing.T) {
	identity, called, err := runInterceptor(t, context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if identity != "" {
		t.Errorf("identity = %q, want anonymous", identity)
	}
}

func TestStreamInterceptor_ValidToken(t *testing.T) {
	token, err := NewJWTVerifier(interceptorTestSecret).Generate("alice", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	identity, called, err := runInterceptor(t, contextWithAuth("Bearer "+token))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
	if identity != "alice" {
		t.Errorf("identity = %q, want %q", identity, "alice")
	}
}

func TestStreamInterceptor_InvalidToken(t *testing.T) {
	for _, header := range []string{"Bearer garbage", "Basic abc", "Bearer "} {
		_, called, err := runInterceptor(t, contextWithAuth(header))
		if called {
			t.Errorf("handler should not run for header %q", header)
		}
		if status.Code(err) != codes.Unauthenticated {
			t.Errorf("header %q: code = %v, want Unauthenticated", header, status.Code(err))
		}
	}
}
