// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package config

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/lobby/internal/xdg"
)

// DefaultDotEnv is the .env file read from the working directory.
const DefaultDotEnv = ".env"

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// Path is an explicit config file. It must exist. When empty, the XDG
	// config file is read if present.
	Path string

	// DotEnv is the .env file to read. When empty, DefaultDotEnv is used.
	// A missing file is not an error.
	DotEnv string

	// Environ replaces the process environment when non-nil.
	Environ map[string]string

	// Flags are the parsed command-line flags. Only flags the user set
	// override other sources.
	Flags *pflag.FlagSet
}

// flagKeys lists the config keys settable from flags. jwt_secret has no
// flag; it comes from the file or the environment.
var flagKeys = map[string]bool{
	"addr":             true,
	"metrics_addr":     true,
	"database_url":     true,
	"storage":          true,
	"token_ttl":        true,
	"password_hash":    true,
	"allowed_origins":  true,
	"log_format":       true,
	"auto_migrate":     true,
	"shutdown_timeout": true,
}

// RegisterFlags defines the config flags on flags with the built-in defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("addr", d.Addr, "HTTP listen address")
	flags.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	flags.String("database-url", d.DatabaseURL, "PostgreSQL connection URL")
	flags.String("storage", d.Storage, "user storage backend (postgres or memory)")
	flags.Duration("token-ttl", d.TokenTTL, "access token lifetime")
	flags.String("password-hash", d.PasswordHash, "password hashing algorithm (argon2id or sha256)")
	flags.StringSlice("allowed-origins", d.AllowedOrigins, "allowed origin glob patterns")
	flags.String("log-format", d.LogFormat, "log format (json or text)")
	flags.Bool("auto-migrate", d.AutoMigrate, "apply pending migrations on startup")
	flags.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
}

// Load builds the effective configuration. It does not validate the result;
// commands that run the service call Validate.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path, err := configPath(opts.Path)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	vars := maps.Clone(opts.Environ)
	if vars == nil {
		vars = environ()
	}
	if err := mergeDotEnv(vars, opts.DotEnv); err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if opts.Flags != nil {
		if err := loadFlags(opts.Flags, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.normalize()
	return cfg, nil
}

// configPath resolves the file to read. An empty result means no file.
func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}

	path, err := xdg.ConfigFile()
	if err != nil {
		return "", nil //nolint:nilerr // no home directory, no default file
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func loadFile(path string, cfg *Config) error {
	if err := ValidateFile(path); err != nil {
		return err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := unmarshal(k, cfg); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// mergeDotEnv adds variables from the .env file that the environment does
// not already define.
func mergeDotEnv(vars map[string]string, path string) error {
	if path == "" {
		path = DefaultDotEnv
	}
	dot, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_DOTENV_INVALID").With("path", path).Wrap(err)
	}
	for k, v := range dot {
		if _, set := vars[k]; !set {
			vars[k] = v
		}
	}
	return nil
}

func loadFlags(flags *pflag.FlagSet, cfg *Config) error {
	k := koanf.New(".")
	provider := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, any) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !flagKeys[key] {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	if err := unmarshal(k, cfg); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	return nil
}

// unmarshal overlays the keys present in k onto cfg. A present list
// replaces the current one instead of being merged element-wise.
func unmarshal(k *koanf.Koanf, cfg *Config) error {
	if k.Exists("allowed_origins") {
		cfg.AllowedOrigins = nil
	}
	return k.Unmarshal("", cfg)
}

func (c *Config) normalize() {
	if c.JWTSecret == "" {
		c.JWTSecret = DevSecret
	}
	origins := c.AllowedOrigins[:0:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}
