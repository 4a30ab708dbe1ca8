// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package config

import (
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
)

// LoadOptions names the sources layered over the defaults. Empty fields skip
// their source.
type LoadOptions struct {
	File    string
	EnvFile string
	Flags   *pflag.FlagSet
	// Environ replaces os.Environ when non-nil.
	Environ []string
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":     "http.addr",
	"metrics-addr":  "metrics.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"store-driver":  "store.driver",
	"database-url":  "store.database-url",
	"sqlite-path":   "store.sqlite-path",
	"auto-migrate":  "store.auto-migrate",
	"mail-base-url": "mail.base-url",
}

// RegisterFlags adds the configuration flags to fs. Only flags set
// explicitly override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store-driver", d.Store.Driver, "identity store driver (postgres or sqlite)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("sqlite-path", d.Store.SQLitePath, "SQLite database file")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on startup")
	fs.String("mail-base-url", d.Mail.BaseURL, "frontend base URL for email links")
}

// Load builds the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	environment, err := environment(opts)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		k := koanf.New(".")
		provider := posflag.ProviderWithFlag(opts.Flags, ".", nil, func(f *pflag.Flag) (string, any) {
			key, known := flagKeys[f.Name]
			if !known || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
		if err := k.Unmarshal("", &cfg); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// environment merges the dotenv file under the process environment; real
// variables win, as with godotenv.Load.
func environment(opts LoadOptions) (map[string]string, error) {
	merged := map[string]string{}
	if opts.EnvFile != "" {
		fromFile, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("env_file", opts.EnvFile).Wrap(err)
		}
		for k, v := range fromFile {
			merged[k] = v
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	return merged, nil
}
