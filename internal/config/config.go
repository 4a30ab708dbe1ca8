// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package config loads the accountd configuration from built-in defaults, an
// optional YAML file, an optional dotenv file, the process environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"math"
	"net/url"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/logging"
)

// MaxExpiryMillis is the largest token expiry, in milliseconds, that fits a
// time.Duration.
const MaxExpiryMillis = int64(math.MaxInt64 / int64(time.Millisecond))

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultSecret is the development signing secret. Deployments must override it.
//
//nolint:gosec // G101: documented development default
const DefaultSecret = "your-secret-key-change-in-production-min-256-bits"

// Config is the complete service configuration.
type Config struct {
	JWT     JWTConfig     `koanf:"jwt" yaml:"jwt"`
	Tokens  TokensConfig  `koanf:"tokens" yaml:"tokens"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth"`
	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Store   StoreConfig   `koanf:"store" yaml:"store"`
	Mail    MailConfig    `koanf:"mail" yaml:"mail"`

	Maintenance MaintenanceConfig `koanf:"maintenance" yaml:"maintenance"`
}

// JWTConfig configures access token signing. Expiries are in milliseconds.
type JWTConfig struct {
	Secret             string `koanf:"secret" yaml:"secret" env:"JWT_SECRET"`
	Issuer             string `koanf:"issuer" yaml:"issuer" env:"JWT_ISSUER"`
	Audience           string `koanf:"audience" yaml:"audience" env:"JWT_AUDIENCE"`
	AccessTokenExpiry  int64  `koanf:"access-token-expiry" yaml:"access-token-expiry" env:"JWT_ACCESS_TOKEN_EXPIRY"`
	RefreshTokenExpiry int64  `koanf:"refresh-token-expiry" yaml:"refresh-token-expiry" env:"JWT_REFRESH_TOKEN_EXPIRY"`
}

// TokensConfig sets single-use token lifetimes.
type TokensConfig struct {
	VerificationTTL time.Duration `koanf:"verification-ttl" yaml:"verification-ttl" env:"EMAIL_VERIFICATION_TTL"`
	ResetTTL        time.Duration `koanf:"reset-ttl" yaml:"reset-ttl" env:"PASSWORD_RESET_TTL"`
}

// AuthConfig tunes password hashing.
type AuthConfig struct {
	BcryptCost int `koanf:"bcrypt-cost" yaml:"bcrypt-cost" env:"BCRYPT_COST"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" env:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout" yaml:"shutdown-timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

// MetricsConfig configures the metrics and health listener. An empty
// address disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" env:"METRICS_ADDR"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" env:"LOG_FORMAT"`
	Level  string `koanf:"level" yaml:"level" env:"LOG_LEVEL"`
}

// StoreConfig selects and locates the identity store.
type StoreConfig struct {
	Driver      string `koanf:"driver" yaml:"driver" env:"STORE_DRIVER"`
	DatabaseURL string `koanf:"database-url" yaml:"database-url" env:"DATABASE_URL"`
	SQLitePath  string `koanf:"sqlite-path" yaml:"sqlite-path" env:"SQLITE_PATH"`
	AutoMigrate bool   `koanf:"auto-migrate" yaml:"auto-migrate" env:"AUTO_MIGRATE"`
}

// MailConfig configures outbound email.
type MailConfig struct {
	BaseURL   string `koanf:"base-url" yaml:"base-url" env:"APP_BASE_URL"`
	QueueSize int    `koanf:"queue-size" yaml:"queue-size" env:"MAIL_QUEUE_SIZE"`
}

// MaintenanceConfig schedules in-process token purges. A zero interval
// leaves purging to an external scheduler running "accountd purge".
type MaintenanceConfig struct {
	PurgeInterval time.Duration `koanf:"purge-interval" yaml:"purge-interval" env:"PURGE_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		JWT: JWTConfig{
			Secret:             DefaultSecret,
			Issuer:             "account-system",
			Audience:           "account-system-users",
			AccessTokenExpiry:  auth.DefaultAccessTokenTTL.Milliseconds(),
			RefreshTokenExpiry: auth.DefaultRefreshTokenTTL.Milliseconds(),
		},
		Tokens: TokensConfig{
			VerificationTTL: auth.EmailVerificationTTL,
			ResetTTL:        auth.PasswordResetTTL,
		},
		Auth:    AuthConfig{BcryptCost: auth.DefaultBcryptCost},
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: logging.FormatJSON, Level: "info"},
		Store: StoreConfig{
			Driver:      DriverPostgres,
			SQLitePath:  "accountd.db",
			AutoMigrate: true,
		},
		Mail: MailConfig{BaseURL: "http://localhost:3000", QueueSize: 64},
	}
}

// Validate checks the configuration. The first problem found is returned.
func (c *Config) Validate() error {
	switch {
	case c.JWT.Secret == "":
		return invalid("jwt.secret", "signing secret is required")
	case len(c.JWT.Secret) < auth.MinSigningSecretBytes:
		return invalid("jwt.secret", "signing secret must be at least 32 bytes")
	case c.JWT.Issuer == "":
		return invalid("jwt.issuer", "issuer is required")
	case c.JWT.Audience == "":
		return invalid("jwt.audience", "audience is required")
	case c.JWT.AccessTokenExpiry <= 0:
		return invalid("jwt.access-token-expiry", "must be positive")
	case c.JWT.AccessTokenExpiry > MaxExpiryMillis:
		return invalid("jwt.access-token-expiry", "too large")
	case c.JWT.RefreshTokenExpiry <= 0:
		return invalid("jwt.refresh-token-expiry", "must be positive")
	case c.JWT.RefreshTokenExpiry > MaxExpiryMillis:
		return invalid("jwt.refresh-token-expiry", "too large")
	case c.Tokens.VerificationTTL <= 0:
		return invalid("tokens.verification-ttl", "must be positive")
	case c.Tokens.ResetTTL <= 0:
		return invalid("tokens.reset-ttl", "must be positive")
	case c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost:
		return invalid("auth.bcrypt-cost", "out of range")
	case c.HTTP.Addr == "":
		return invalid("http.addr", "listen address is required")
	case c.HTTP.ShutdownTimeout <= 0:
		return invalid("http.shutdown-timeout", "must be positive")
	case c.Mail.QueueSize <= 0:
		return invalid("mail.queue-size", "must be positive")
	case c.Maintenance.PurgeInterval < 0:
		return invalid("maintenance.purge-interval", "must not be negative")
	}

	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database-url", "database URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite-path", "path is required for the sqlite driver")
		}
	default:
		return invalid("store.driver", "must be postgres or sqlite")
	}

	if u, err := url.Parse(c.Mail.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("mail.base-url", "must be an absolute URL")
	}
	return nil
}

// AuthEngine returns the engine configuration.
func (c *Config) AuthEngine() auth.Config {
	return auth.Config{
		Secret:          c.JWT.Secret,
		Issuer:          c.JWT.Issuer,
		Audience:        c.JWT.Audience,
		AccessTokenTTL:  time.Duration(c.JWT.AccessTokenExpiry) * time.Millisecond,
		RefreshTokenTTL: time.Duration(c.JWT.RefreshTokenExpiry) * time.Millisecond,
		VerificationTTL: c.Tokens.VerificationTTL,
		ResetTTL:        c.Tokens.ResetTTL,
	}
}

// UsesDefaultSecret reports whether the development secret is in effect.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWT.Secret == DefaultSecret
}

// Redacted returns a copy safe to print: the secret and any database
// password are masked.
func (c Config) Redacted() Config {
	if c.JWT.Secret != "" {
		c.JWT.Secret = logging.Redacted
	}
	if u, err := url.Parse(c.Store.DatabaseURL); err == nil && u.User != nil {
		c.Store.DatabaseURL = u.Redacted()
	}
	return c
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s: %s", key, msg)
}
