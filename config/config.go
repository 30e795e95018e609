// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package config loads and validates the top-level lineage configuration
// from a YAML file with LINEAGE_ environment overrides.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/store"
)

// Config is the top-level lineage configuration.
type Config struct {
	Store     store.Config    `mapstructure:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ArtifactsConfig controls where remote artifact payloads are written.
type ArtifactsConfig struct {
	// Dir is the root directory of the filesystem blob backend. Empty
	// disables filesystem artifact storage.
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix LINEAGE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "lineage.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("LINEAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, linerr.Errorf(linerr.CodeConfigLoadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, linerr.Errorf(linerr.CodeConfigLoadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, linerr.Errorf(linerr.CodeConfigInvalid, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns every
// validation error found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "postgres": true}
	if !validBackends[c.Store.Backend] {
		errs = append(errs, linerr.Errorf(linerr.CodeConfigInvalid,
			"config: store.backend must be one of [sqlite, postgres], got %q",
			c.Store.Backend,
		))
	}
	if c.Store.DSN == "" {
		errs = append(errs, linerr.Errorf(linerr.CodeConfigInvalid, "config: store.dsn must not be empty"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, linerr.Errorf(linerr.CodeConfigInvalid,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, linerr.Errorf(linerr.CodeConfigInvalid,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}
