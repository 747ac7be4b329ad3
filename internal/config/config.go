// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

// Package config loads the Lobby service configuration.
//
// Values are layered, lowest precedence first: built-in defaults, the YAML
// config file, a .env file, the process environment, and explicitly set
// command-line flags. The result is validated once and passed by value to
// the components that need it.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/lobby/internal/auth"
	"github.com/holomush/lobby/internal/origin"
)

// DevSecret is the signing key used when none is configured.
// It is only suitable for local development.
//
//nolint:gosec // G101: well-known development fallback, not a credential.
const DevSecret = "dev-secret"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

const redacted = "<redacted>"

// Config is the effective service configuration.
type Config struct {
	Addr            string        `koanf:"addr" yaml:"addr,omitempty" env:"LOBBY_ADDR" jsonschema:"description=HTTP listen address for the API and game channel,minLength=1"`
	MetricsAddr     string        `koanf:"metrics_addr" yaml:"metrics_addr,omitempty" env:"LOBBY_METRICS_ADDR" jsonschema:"description=Listen address for metrics and health probes; empty disables"`
	DatabaseURL     string        `koanf:"database_url" yaml:"database_url,omitempty" env:"DATABASE_URL" jsonschema:"description=PostgreSQL connection URL"`
	Storage         string        `koanf:"storage" yaml:"storage,omitempty" env:"LOBBY_STORAGE" jsonschema:"description=User storage backend,enum=postgres,enum=memory"`
	JWTSecret       string        `koanf:"jwt_secret" yaml:"jwt_secret,omitempty" env:"JWT_SECRET" jsonschema:"description=HS256 token signing key"`
	TokenTTL        time.Duration `koanf:"token_ttl" yaml:"token_ttl,omitempty" env:"LOBBY_TOKEN_TTL" jsonschema:"type=string,description=Access token lifetime such as 30m,pattern=^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"`
	PasswordHash    string        `koanf:"password_hash" yaml:"password_hash,omitempty" env:"LOBBY_PASSWORD_HASH" jsonschema:"description=Password hashing algorithm for new accounts,enum=argon2id,enum=sha256"`
	AllowedOrigins  []string      `koanf:"allowed_origins" yaml:"allowed_origins,omitempty" env:"LOBBY_ALLOWED_ORIGINS" envSeparator:"," jsonschema:"description=Origin glob patterns accepted by CORS and the game channel; empty accepts any"`
	LogFormat       string        `koanf:"log_format" yaml:"log_format,omitempty" env:"LOBBY_LOG_FORMAT" jsonschema:"description=Log output format,enum=json,enum=text"`
	AutoMigrate     bool          `koanf:"auto_migrate" yaml:"auto_migrate,omitempty" env:"LOBBY_AUTO_MIGRATE" jsonschema:"description=Apply pending migrations on startup"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout,omitempty" env:"LOBBY_SHUTDOWN_TIMEOUT" jsonschema:"type=string,description=Grace period for draining connections on shutdown,pattern=^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":8000",
		MetricsAddr:     "127.0.0.1:9100",
		Storage:         StoragePostgres,
		JWTSecret:       DevSecret,
		TokenTTL:        30 * time.Minute,
		PasswordHash:    auth.AlgorithmArgon2id,
		LogFormat:       LogFormatJSON,
		AutoMigrate:     true,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for values no component can run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return invalid("addr", "listen address is required")
	}
	switch c.LogFormat {
	case LogFormatJSON, LogFormatText:
	default:
		return invalid("log_format", "log format must be json or text")
	}
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "database_url is required for postgres storage")
		}
	case StorageMemory:
	default:
		return invalid("storage", "storage must be postgres or memory")
	}
	if c.JWTSecret == "" {
		return invalid("jwt_secret", "signing key cannot be empty")
	}
	if c.TokenTTL <= 0 {
		return invalid("token_ttl", "token ttl must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return invalid("shutdown_timeout", "shutdown timeout cannot be negative")
	}
	if _, err := auth.NewHasher(c.PasswordHash); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("field", "password_hash").
			With("value", c.PasswordHash).
			Wrap(err)
	}
	if _, err := origin.Compile(c.AllowedOrigins); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("field", "allowed_origins").
			Wrap(err)
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with the development key.
func (c Config) UsesDevSecret() bool {
	return c.JWTSecret == DevSecret
}

// Redacted returns a copy safe to print. Secrets and database credentials
// are masked.
func (c Config) Redacted() Config {
	out := c
	if out.JWTSecret != "" {
		out.JWTSecret = redacted
	}
	if out.DatabaseURL != "" {
		out.DatabaseURL = redactURL(out.DatabaseURL)
	}
	out.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return out
}

// fileView is the YAML shape of Config, with durations written the way the
// config file accepts them.
type fileView struct {
	Addr            string   `yaml:"addr"`
	MetricsAddr     string   `yaml:"metrics_addr"`
	DatabaseURL     string   `yaml:"database_url"`
	Storage         string   `yaml:"storage"`
	JWTSecret       string   `yaml:"jwt_secret"`
	TokenTTL        string   `yaml:"token_ttl"`
	PasswordHash    string   `yaml:"password_hash"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	LogFormat       string   `yaml:"log_format"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// MarshalYAML implements yaml.Marshaler.
func (c Config) MarshalYAML() (any, error) {
	origins := c.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	return fileView{
		Addr:            c.Addr,
		MetricsAddr:     c.MetricsAddr,
		DatabaseURL:     c.DatabaseURL,
		Storage:         c.Storage,
		JWTSecret:       c.JWTSecret,
		TokenTTL:        c.TokenTTL.String(),
		PasswordHash:    c.PasswordHash,
		AllowedOrigins:  origins,
		LogFormat:       c.LogFormat,
		AutoMigrate:     c.AutoMigrate,
		ShutdownTimeout: c.ShutdownTimeout.String(),
	}, nil
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s", msg)
}

// redactURL masks the password of a connection URL. Unparsable values are
// masked entirely.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
