// ABOUTME: Tailscale listeners that expose the gateway on a tailnet via tsnet
// ABOUTME: Resolves the node state directory and auth key from config or environment

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// Fixed tailnet ports; server addresses are ignored when tailscale is on.
const (
	tailscaleGRPCAddr = ":50051"
	tailscaleHTTPAddr = ":80"
)

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "docwatch", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns listeners for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = g.tsnetServer.Listen("tcp", tailscaleGRPCAddr)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	httpLn, err = g.tsnetServer.Listen("tcp", tailscaleHTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
