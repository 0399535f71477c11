// Package config loads snippetd configuration from defaults, YAML files and
// SNIPPETD_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
// SNIPPETD_EXECUTOR_BACKOFF_BASE maps to executor.backoff.base.
const EnvPrefix = "SNIPPETD_"

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. config.<app.env>.yaml
// 3. config.yaml
// 4. Default values (lowest priority)
//
// Missing YAML files are skipped.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadOptionalFile(k, "config.yaml"); err != nil {
		return nil, err
	}
	if env := k.String("app.env"); env != "" {
		if err := loadOptionalFile(k, fmt.Sprintf("config.%s.yaml", env)); err != nil {
			return nil, err
		}
	}

	return finish(k)
}

// LoadFile loads defaults, then path (which must exist), then environment variables.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return finish(k)
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func finish(k *koanf.Koanf) (*Config, error) {
	if err := k.Load(envprovider.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey converts SNIPPETD_UPPER_CASE to upper.case for koanf.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "snippetd",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,

		"executor.maxattempts":       6,
		"executor.backoff.base":      "1s",
		"executor.backoff.max":       "0s",
		"executor.backoff.legacyxor": false,
		"executor.jitter.min":        0.001,
		"executor.jitter.max":        1.0,
		"executor.jitter.unit":       "1s",
		"executor.attempt.timeout":   "5s",
		"executor.rate.limit":        0,
		"executor.rate.burst":        1,

		"oauth.token.skew": "60s",
		"oauth.scopes": []string{
			"https://www.googleapis.com/auth/spreadsheets",
			"https://www.googleapis.com/auth/drive.readonly",
		},

		"sheets.baseurl":  "https://sheets.googleapis.com/v4",
		"sheets.driveurl": "https://www.googleapis.com/drive/v3",

		// Database connection fields have no defaults; the token store is only
		// enabled when explicitly configured.
		"database.pool.max.connections":  10,
		"database.pool.idle.connections": 2,
		"database.pool.idle.time":        "5m",
		"database.pool.lifetime.max":     "30m",
		"database.query.slow.threshold":  "200ms",
		"database.query.log.maxlength":   1000,
		"database.tokens.table":          "account_tokens",

		"observability.enabled":      false,
		"observability.service.name": "snippetd",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
