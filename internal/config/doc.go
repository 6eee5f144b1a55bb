// Package config handles configuration loading for docwatch.
//
// # Configuration File
//
// Default location (in order):
//
//  1. Path from DOCWATCH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/docwatch/config.yaml (or ~/.config/docwatch/config.yaml)
//
// Files ending in .toml are read as TOML; anything else as YAML. The serve
// command tolerates a missing file so that a container can be configured from
// the environment alone.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DOCWATCH_JWT_SECRET}"
//
// # Environment Overrides
//
// These variables take precedence over the file:
//
//	PORT                  HTTP listen port
//	CACHE_SIZE            number of cached documents
//	CACHE_MAX_AGE         cache entry lifetime in milliseconds
//	MAX_DATA_SIZE_JSON    maximum serialized document size in bytes
//	JWT_SECRET            token signing secret
//	DOCWATCH_STORAGE_DIR  directory for the file backend
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":3000"     # WebSocket and health endpoints
//	  grpc_addr: ":50051"    # gRPC session stream
//	  static_dir: "./public" # optional static assets at /
//
//	storage:
//	  backend: "file"        # file, sqlite, s3
//	  dir: ".data"
//
//	cache:
//	  size: 500
//	  max_age: "10m"
//
//	documents:
//	  max_size: 65536
//
//	auth:
//	  jwt_secret: "${DOCWATCH_JWT_SECRET}"
//	  token_ttl: "0"         # 0 issues tokens that never expire
//
// # Validation
//
// Validate rejects a missing jwt_secret, non-positive cache and document
// limits, malformed listen addresses and unknown storage backends.
package config
