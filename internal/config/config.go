// Package config loads service configuration from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Failure modes for database connection errors.
const (
	FailureModeAbort   = "abort"
	FailureModeSurface = "surface"
)

// Session renewal policies.
const (
	RenewalSliding = "sliding"
	RenewalFixed   = "fixed"
)

// Host web frameworks.
const (
	HostGin = "gin"
	HostChi = "chi"
)

// Session backends.
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

type Config struct {
	AppPort       string `env:"APP_PORT, default=8080"`
	HostFramework string `env:"HOST_FRAMEWORK, default=gin"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	DatabaseDSN      string        `env:"DATABASE_DSN"`
	DBPoolSize       int           `env:"DB_POOL_SIZE, default=10"`
	DBAcquireTimeout time.Duration `env:"DB_ACQUIRE_TIMEOUT, default=5s"`
	DBIdleTimeout    time.Duration `env:"DB_IDLE_TIMEOUT, default=5m"`
	// DBFailureMode decides what happens on a connection error:
	// "abort" terminates the process, "surface" returns the error
	// to the caller for a retry-or-fail decision.
	DBFailureMode string `env:"DB_FAILURE_MODE, default=abort"`

	SessionTTL time.Duration `env:"SESSION_TTL, default=24h"`
	// SessionRenewal is "sliding" (expiry extends on every validated
	// request) or "fixed" (expiry set once at login).
	SessionRenewal       string        `env:"SESSION_RENEWAL, default=sliding"`
	SessionBackend       string        `env:"SESSION_BACKEND, default=postgres"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL, default=10m"`

	// LoginRatePerMinute bounds login attempts per client IP.
	LoginRatePerMinute int `env:"LOGIN_RATE_PER_MINUTE, default=10"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB, default=0"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	KeycloakIssuer        string `env:"KEYCLOAK_ISSUER"`
	KeycloakClientID      string `env:"KEYCLOAK_CLIENT_ID"`
	KeycloakRedirectURL   string `env:"KEYCLOAK_REDIRECT_URL"`
	KeycloakPublicBaseURL string `env:"KEYCLOAK_PUBLIC_BASE_URL"`
}

// Load reads configuration from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: DATABASE_DSN is required")
	}
	switch c.DBFailureMode {
	case FailureModeAbort, FailureModeSurface:
	default:
		return fmt.Errorf("config: invalid DB_FAILURE_MODE %q", c.DBFailureMode)
	}
	switch c.SessionRenewal {
	case RenewalSliding, RenewalFixed:
	default:
		return fmt.Errorf("config: invalid SESSION_RENEWAL %q", c.SessionRenewal)
	}
	switch c.SessionBackend {
	case SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("config: invalid SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.SessionBackend == SessionBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("config: REDIS_ADDR is required for the redis session backend")
	}
	switch c.HostFramework {
	case HostGin, HostChi:
	default:
		return fmt.Errorf("config: invalid HOST_FRAMEWORK %q", c.HostFramework)
	}
	if c.DBPoolSize < 1 {
		return fmt.Errorf("config: DB_POOL_SIZE must be at least 1")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	return nil
}
