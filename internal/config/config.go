// ABOUTME: Configuration loading and parsing for docwatch
// ABOUTME: Supports YAML or TOML files with environment variable expansion and overrides

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config represents the complete docwatch configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Documents DocumentsConfig `yaml:"documents" toml:"documents"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr  string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr  string `yaml:"grpc_addr" toml:"grpc_addr"`
	StaticDir string `yaml:"static_dir" toml:"static_dir"`

	// AllowedOrigins are host patterns accepted for cross-origin WebSocket
	// upgrades; empty allows same-origin only
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// StorageConfig selects and configures the blob backend
type StorageConfig struct {
	Backend    string   `yaml:"backend" toml:"backend"`
	Dir        string   `yaml:"dir" toml:"dir"`
	SQLitePath string   `yaml:"sqlite_path" toml:"sqlite_path"`
	S3         S3Config `yaml:"s3" toml:"s3"`
}

// S3Config holds S3-compatible object storage settings
type S3Config struct {
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	Region    string `yaml:"region" toml:"region"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
}

// CacheConfig bounds the document cache
type CacheConfig struct {
	Size   int           `yaml:"size" toml:"size"`
	MaxAge time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	MaxAgeRaw string `yaml:"max_age" toml:"max_age"`
}

// DocumentsConfig holds per-document limits
type DocumentsConfig struct {
	MaxSize int `yaml:"max_size" toml:"max_size"`
}

// AuthConfig holds token configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling; empty or "0" means tokens never expire
	TokenTTLRaw string `yaml:"token_ttl" toml:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TelemetryConfig holds tracing export configuration
type TelemetryConfig struct {
	// OTLPEndpoint is a full OTLP/HTTP URL; empty disables tracing
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" toml:"service_name"`
}

// envOverrides are the environment variables that take precedence over the
// file. Unset variables leave the pointer nil.
type envOverrides struct {
	Port            *int    `env:"PORT"`
	CacheSize       *int    `env:"CACHE_SIZE"`
	CacheMaxAgeMS   *int64  `env:"CACHE_MAX_AGE"`
	MaxDataSizeJSON *int    `env:"MAX_DATA_SIZE_JSON"`
	JWTSecret       *string `env:"JWT_SECRET"`
	StorageDir      *string `env:"DOCWATCH_STORAGE_DIR"`
}

// Default returns the configuration used for anything the file and
// environment leave unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":3000",
			GRPCAddr: ":50051",
		},
		Storage: StorageConfig{
			Backend:    BackendFile,
			Dir:        ".data",
			SQLitePath: ".data/docwatch.db",
		},
		Cache: CacheConfig{
			Size:   500,
			MaxAge: 10 * time.Minute,
		},
		Documents: DocumentsConfig{
			MaxSize: 64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "docwatch",
		},
	}
}

// DefaultPath returns the config path from DOCWATCH_CONFIG, falling back to
// $XDG_CONFIG_HOME/docwatch/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("DOCWATCH_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "docwatch", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// override variables are applied on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(path, data)
}

// LoadOptional behaves like Load but treats a missing file as empty, so a
// deployment can be configured from the environment alone.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*Config, error) {
	cfg := Default()

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the override variables onto cfg.
func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.Port != nil {
		if *o.Port <= 0 || *o.Port > 65535 {
			return fmt.Errorf("PORT must be between 1 and 65535, got %d", *o.Port)
		}
		host, _, err := net.SplitHostPort(cfg.Server.HTTPAddr)
		if err != nil {
			host = ""
		}
		cfg.Server.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(*o.Port))
	}
	if o.CacheSize != nil {
		cfg.Cache.Size = *o.CacheSize
	}
	if o.CacheMaxAgeMS != nil {
		cfg.Cache.MaxAge = time.Duration(*o.CacheMaxAgeMS) * time.Millisecond
	}
	if o.MaxDataSizeJSON != nil {
		cfg.Documents.MaxSize = *o.MaxDataSizeJSON
	}
	if o.JWTSecret != nil {
		cfg.Auth.JWTSecret = *o.JWTSecret
	}
	if o.StorageDir != nil {
		cfg.Storage.Dir = *o.StorageDir
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must not be negative")
	}

	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if err := validateAddr("server.http_addr", c.Server.HTTPAddr); err != nil {
			return err
		}
		if err := validateAddr("server.grpc_addr", c.Server.GRPCAddr); err != nil {
			return err
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size)
	}
	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("cache.max_age must be positive, got %s", c.Cache.MaxAge)
	}
	if c.Documents.MaxSize <= 0 {
		return fmt.Errorf("documents.max_size must be positive, got %d", c.Documents.MaxSize)
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of file, sqlite, s3; got %q", c.Storage.Backend)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format)
	}

	return nil
}

func validateAddr(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required (or enable tailscale)", name)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s %q: %w", name, addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%s %q: invalid port", name, addr)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Cache.MaxAgeRaw != "" {
		cfg.Cache.MaxAge, err = time.ParseDuration(cfg.Cache.MaxAgeRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.max_age %q: %w", cfg.Cache.MaxAgeRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}
