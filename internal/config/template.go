package config

import "fmt"

// Template returns a commented starter config with the given JWT secret.
func Template(jwtSecret string) string {
	return fmt.Sprintf(`# docwatch configuration

server:
  http_addr: ":3000"
  grpc_addr: ":50051"
  # static_dir: "./public"

storage:
  backend: "file"   # file, sqlite or s3
  dir: ".data"
  # sqlite_path: ".data/docwatch.db"
  # s3:
  #   bucket: "docwatch"
  #   region: "us-east-1"
  #   endpoint: "http://localhost:9000"
  #   access_key: "${S3_ACCESS_KEY}"
  #   secret_key: "${S3_SECRET_KEY}"

cache:
  size: 500
  max_age: "10m"

documents:
  max_size: 65536

auth:
  jwt_secret: %q
  token_ttl: "0"

logging:
  level: "info"
  format: "text"

tailscale:
  enabled: false
  hostname: "docwatch"

# telemetry:
#   otlp_endpoint: "http://localhost:4318/v1/traces"
`, jwtSecret)
}
