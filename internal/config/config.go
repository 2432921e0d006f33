// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
// It is built once in main and passed down; nothing reads it as a global.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// HealthGRPCAddr is the address for the grpc.health.v1 server; empty disables it.
	HealthGRPCAddr string `mapstructure:"HEALTH_GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs the service on the in-memory store (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTPublicKey is the PEM-encoded public key (or path to file) used to verify approver access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the PEM-encoded private key (or path to file) used by the seed tool to mint approver tokens.
	// The server never signs tokens and ignores it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer is the expected iss claim on approver access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim on approver access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	// HMACMaxDrift is the allowed clock difference for X-Desktop-Timestamp (e.g. "300s").
	HMACMaxDrift string `mapstructure:"HMAC_MAX_DRIFT"`
	// KeyRotationInterval is the desktop secret key lifetime (e.g. "2160h" for 90 days).
	KeyRotationInterval string `mapstructure:"KEY_ROTATION_INTERVAL"`
	// RequiredApprovalsDefault is the threshold assigned to newly registered desktops.
	RequiredApprovalsDefault int `mapstructure:"REQUIRED_APPROVALS_DEFAULT"`
	// UnlockMinutesDefault is the unlock window assigned to newly registered desktops.
	UnlockMinutesDefault int `mapstructure:"UNLOCK_MINUTES_DEFAULT"`

	// Env is the application environment (e.g. "development", "production").
	// An empty DATABASE_URL is rejected when Env is production.
	Env string `mapstructure:"APP_ENV"`
	// LogJSON switches the slog handler to JSON output.
	LogJSON bool `mapstructure:"LOG_JSON"`
	// LogDebug enables debug-level logs.
	LogDebug bool `mapstructure:"LOG_DEBUG"`
	// DrainSeconds is how long /drain keeps the server alive but not ready.
	DrainSeconds int `mapstructure:"DRAIN_SECONDS"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Telemetry (optional). When Kafka brokers are set, the HTTP server emits request events to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events (default aegis-telemetry).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HEALTH_GRPC_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "aegis-auth")
	v.SetDefault("JWT_AUDIENCE", "aegis-governance")
	v.SetDefault("HMAC_MAX_DRIFT", "300s")
	v.SetDefault("KEY_ROTATION_INTERVAL", "2160h") // 90d
	v.SetDefault("REQUIRED_APPROVALS_DEFAULT", 2)
	v.SetDefault("UNLOCK_MINUTES_DEFAULT", 15)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("LOG_DEBUG", false)
	v.SetDefault("DRAIN_SECONDS", 45)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "aegis-telemetry")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "aegis-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DatabaseURL == "" && cfg.Env == "production" {
		return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	if cfg.RequiredApprovalsDefault < 1 {
		return nil, errors.New("config: REQUIRED_APPROVALS_DEFAULT must be at least 1")
	}
	if cfg.UnlockMinutesDefault < 1 {
		return nil, errors.New("config: UNLOCK_MINUTES_DEFAULT must be at least 1")
	}

	return &cfg, nil
}

// MaxDrift parses HMACMaxDrift as a time.Duration. Returns 300s if unset or invalid.
func (c *Config) MaxDrift() time.Duration {
	d, err := time.ParseDuration(c.HMACMaxDrift)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// RotationInterval parses KeyRotationInterval as a time.Duration. Returns 90 days if unset or invalid.
func (c *Config) RotationInterval() time.Duration {
	d, err := time.ParseDuration(c.KeyRotationInterval)
	if err != nil || d <= 0 {
		return 90 * 24 * time.Hour
	}
	return d
}

// DrainDuration returns DrainSeconds as a time.Duration.
func (c *Config) DrainDuration() time.Duration {
	if c.DrainSeconds <= 0 {
		return 0
	}
	return time.Duration(c.DrainSeconds) * time.Second
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
