// ABOUTME: Gateway orchestrator that coordinates the gRPC and HTTP servers
// ABOUTME: Owns the document store, watch registry and session handler lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/tsnet"

	"github.com/2389/docwatch/internal/auth"
	"github.com/2389/docwatch/internal/blob"
	"github.com/2389/docwatch/internal/config"
	"github.com/2389/docwatch/internal/docstore"
	"github.com/2389/docwatch/internal/names"
	"github.com/2389/docwatch/internal/session"
	"github.com/2389/docwatch/internal/watch"
)

// Gateway orchestrates the docwatch server components.
// It serves sessions over WebSocket (HTTP) and a bidirectional gRPC stream.
type Gateway struct {
	config      *config.Config
	store       *docstore.Store
	watches     *watch.Registry
	sessions    *session.Handler
	tokens      *auth.JWTVerifier
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// baseCtx parents every HTTP request so hijacked WebSocket connections
	// end on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New opens the configured storage backend and builds a Gateway over it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	blobs, err := OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, blobs, logger), nil
}

// NewWithStore builds a Gateway over an already opened blob store. The
// Gateway takes ownership of blobs and closes it on Shutdown.
func NewWithStore(cfg *config.Config, blobs blob.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	store := docstore.New(blobs, docstore.Options{
		CacheSize:       cfg.Cache.Size,
		CacheMaxAge:     cfg.Cache.MaxAge,
		MaxDocumentSize: cfg.Documents.MaxSize,
	}, logger)
	watches := watch.NewRegistry(logger)
	tokens := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	sessions := session.NewHandler(session.Options{
		Store:       store,
		Watches:     watches,
		Tokens:      tokens,
		TokenTTL:    cfg.Auth.TokenTTL,
		NewIdentity: names.Generate,
		Logger:      logger,
	})

	baseCtx, cancelBase := context.WithCancel(context.Background())
	gw := &Gateway{
		config:     cfg,
		store:      store,
		watches:    watches,
		sessions:   sessions,
		tokens:     tokens,
		logger:     logger.With("component", "gateway"),
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}

	gw.grpcServer, gw.health = newGRPCServer(sessions, tokens, logger)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	return gw
}

// newGRPCServer creates the gRPC server with the session stream and the
// standard health service registered.
func newGRPCServer(sessions *session.Handler, tokens auth.TokenVerifier, logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(tokens, logger.With("component", "auth"))),
	)

	server.RegisterService(&sessionServiceDesc, newSessionServer(sessions, logger.With("component", "grpc")))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(SessionServiceName, healthpb.HealthCheckResponse_SERVING)

	return server, healthServer
}

// routes builds the HTTP handler. Health endpoints never require auth; the
// WebSocket upgrade accepts an optional bearer token.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	r.With(auth.OptionalAuthMiddleware(g.tokens, g.logger)).Get("/ws", g.handleWebSocket)

	if dir := g.config.Server.StaticDir; dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
		g.logger.Info("serving static files", "dir", dir)
	}
	return r
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout, since
// the Run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops both servers, ends open sessions and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.sessions.ActiveSessions())

	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.cancelBase()

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the storage backend answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions, %d watched documents)", g.sessions.ActiveSessions(), g.watches.Targets())
}
