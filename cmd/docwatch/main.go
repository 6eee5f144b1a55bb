// ABOUTME: Entry point for the docwatch document server
// ABOUTME: Subcommands to serve, write a starter config, probe health and inspect stored documents

package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/docwatch/internal/config"
	"github.com/2389/docwatch/internal/docstore"
	"github.com/2389/docwatch/internal/document"
	"github.com/2389/docwatch/internal/gateway"
	"github.com/2389/docwatch/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                         _       _
  __| | ___   _____      ____ _| |_ ___| |__
 / _' |/ _ \ / __\ \ /\ / / _' | __/ __| '_ \
| (_| | (_) | (__ \ V  V / (_| | || (__| | | |
 \__,_|\___/ \___| \_/\_/ \__,_|\__\___|_| |_|
`

func usage() {
	fmt.Println("Usage: docwatch <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                Start the document server")
	fmt.Println("  init                 Create a new config file with a random JWT secret")
	fmt.Println("  health               Check server readiness")
	fmt.Println("  inspect <username>   Print a stored document")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "inspect":
		err = runInspect(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s\n", describeStorage(cfg.Storage))
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	fmt.Println()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	logger.Info("starting docwatch",
		"version", version,
		"config", configPath,
		"storage", cfg.Storage.Backend,
		"max_document_size", cfg.Documents.MaxSize,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func describeStorage(cfg config.StorageConfig) string {
	switch cfg.Backend {
	case config.BackendSQLite:
		return "sqlite " + cfg.SQLitePath
	case config.BackendS3:
		return "s3://" + cfg.S3.Bucket + "/" + cfg.S3.Prefix
	default:
		return "file " + cfg.Dir
	}
}

// localURL turns a listen address into a URL on the local host.
func localURL(addr, path string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parsing address %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + path, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.LoadOptional(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url, err := localURL(cfg.Server.HTTPAddr, "/health/ready")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// runInspect reads a document straight from the configured backend. It does
// not go through a running server, so it sees only persisted state.
func runInspect(ctx context.Context, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: docwatch inspect <username>")
	}
	username := args[0]

	cfg, err := config.LoadOptional(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := stderrLogger()

	blobs, err := gateway.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	store := docstore.New(blobs, docstore.Options{
		CacheSize:       1,
		CacheMaxAge:     time.Minute,
		MaxDocumentSize: cfg.Documents.MaxSize,
	}, logger)
	defer store.Close()

	doc, err := store.Read(ctx, username)
	if errors.Is(err, document.ErrNotFound) {
		return fmt.Errorf("no document for %q", username)
	}
	if err != nil {
		return err
	}

	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("formatting document: %w", err)
	}
	fmt.Println(out.String())
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("docwatch configuration setup")
	fmt.Println("============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := strings.ToLower(prompt(reader, "File exists. Overwrite?", "no"))
		if overwrite != "yes" && overwrite != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the signing secret.
	if err := os.WriteFile(outputFile, []byte(config.Template(secret)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	if outputFile != config.DefaultPath() {
		fmt.Printf("  DOCWATCH_CONFIG=%s docwatch serve\n", outputFile)
	} else {
		fmt.Println("  docwatch serve")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
