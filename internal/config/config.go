// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable with STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StoreBackend selects the TTL store: memory, redis or postgres.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// RedisAddr is host:port of the Redis server when StoreBackend is redis.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// DatabaseURL is the Postgres DSN when StoreBackend is postgres; also used by cmd/migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreOpTimeout bounds one store call (e.g. "250ms").
	StoreOpTimeout string `mapstructure:"STORE_OP_TIMEOUT"`
	// StoreRetryBackoff is the pause before the single retry of a failed store call.
	StoreRetryBackoff string `mapstructure:"STORE_RETRY_BACKOFF"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; derived from the private key when empty.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "studyhub-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "studyhub-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// MaxSessions caps concurrent sessions per account.
	MaxSessions int `mapstructure:"MAX_SESSIONS"`
	// SessionInactivityTTL is how long an idle session stays valid (e.g. "720h").
	SessionInactivityTTL string `mapstructure:"SESSION_INACTIVITY_TTL"`
	// AttemptWindow is the rolling window of the failed-attempt counter (e.g. "1h").
	AttemptWindow string `mapstructure:"ATTEMPT_WINDOW"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTLPEndpoint enables OTel export when set (e.g. "otel-collector:4317").
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// DevAccountIdentifier and DevAccountSecret seed one account in development. Refused in production.
	DevAccountIdentifier string `mapstructure:"DEV_ACCOUNT_IDENTIFIER"`
	DevAccountSecret     string `mapstructure:"DEV_ACCOUNT_SECRET"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_OP_TIMEOUT", "250ms")
	v.SetDefault("STORE_RETRY_BACKOFF", "50ms")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "studyhub-auth")
	v.SetDefault("JWT_AUDIENCE", "studyhub-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("MAX_SESSIONS", 5)
	v.SetDefault("SESSION_INACTIVITY_TTL", "720h") // 30d
	v.SetDefault("ATTEMPT_WINDOW", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("DEV_ACCOUNT_IDENTIFIER", "")
	v.SetDefault("DEV_ACCOUNT_SECRET", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreMemory:
		if c.IsProduction() {
			return errors.New("config: STORE_BACKEND=memory is not allowed when APP_ENV=production")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set when STORE_BACKEND=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.IsProduction() && c.JWTPrivateKey == "" {
		return errors.New("config: JWT_PRIVATE_KEY must be set when APP_ENV=production")
	}
	if c.IsProduction() && c.DevAccountIdentifier != "" {
		return errors.New("config: DEV_ACCOUNT_IDENTIFIER must not be set when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.MaxSessions < 1 {
		return errors.New("config: MAX_SESSIONS must be at least 1")
	}
	for key, val := range map[string]string{
		"STORE_OP_TIMEOUT":       c.StoreOpTimeout,
		"STORE_RETRY_BACKOFF":    c.StoreRetryBackoff,
		"JWT_ACCESS_TTL":         c.JWTAccessTTL,
		"JWT_REFRESH_TTL":        c.JWTRefreshTTL,
		"SESSION_INACTIVITY_TTL": c.SessionInactivityTTL,
		"ATTEMPT_WINDOW":         c.AttemptWindow,
	} {
		if d, err := time.ParseDuration(val); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, val)
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// InactivityTTL parses SessionInactivityTTL. Returns 720h if unset or invalid.
func (c *Config) InactivityTTL() time.Duration {
	return parseDuration(c.SessionInactivityTTL, 720*time.Hour)
}

// AttemptWindowDuration parses AttemptWindow. Returns 1h if unset or invalid.
func (c *Config) AttemptWindowDuration() time.Duration {
	return parseDuration(c.AttemptWindow, time.Hour)
}

// OpTimeout parses StoreOpTimeout. Returns 250ms if unset or invalid.
func (c *Config) OpTimeout() time.Duration {
	return parseDuration(c.StoreOpTimeout, 250*time.Millisecond)
}

// RetryBackoff parses StoreRetryBackoff. Returns 50ms if unset or invalid.
func (c *Config) RetryBackoff() time.Duration {
	return parseDuration(c.StoreRetryBackoff, 50*time.Millisecond)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
