// Package config loads the bot configuration.
//
// Files may be YAML or JSON; both are decoded strictly so unknown keys are
// rejected early. Environment variables overlay the file so deployments can
// keep secrets out of it.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Broadcast BroadcastConfig `json:"broadcast" yaml:"broadcast"`
	Ledger    LedgerConfig    `json:"ledger,omitempty" yaml:"ledger,omitempty"`
}

type TelegramConfig struct {
	Token    string  `json:"token" yaml:"token" env:"BOT_TOKEN"`
	OwnerIDs []int64 `json:"owner_ids" yaml:"owner_ids" env:"OWNER_IDS"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`
	// ContactLink is shown to users asking to reach an operator.
	ContactLink string `json:"contact_link,omitempty" yaml:"contact_link,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" env:"LOG_FILE"`
}

type StorageConfig struct {
	Path string `json:"path" yaml:"path" env:"DATABASE_PATH"`
	// BusyTimeout is a Go duration string (sqlite).
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"`
}

// BroadcastConfig tunes the fan-out engine. Zero values fall back to the
// engine defaults.
type BroadcastConfig struct {
	Workers    int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"` // Go duration string
}

// LedgerConfig controls retention of finished broadcast jobs.
type LedgerConfig struct {
	RetentionDays int `json:"retention_days,omitempty" yaml:"retention_days,omitempty"` // default 90
	// PruneSpec is a cron expression; default "0 4 * * *" (daily, 04:00).
	PruneSpec string `json:"prune_spec,omitempty" yaml:"prune_spec,omitempty"`
}

const (
	DefaultRetentionDays = 90
	DefaultPruneSpec     = "0 4 * * *"
)

// Parse decodes a config file strictly: unknown keys are an error in both
// formats. The extension picks the decoder; anything that isn't .yaml/.yml
// is treated as JSON.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		// reject trailing tokens (e.g. concatenated JSON)
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return nil, fmt.Errorf("invalid config: trailing data")
			}
			return nil, err
		}
	}
	return &cfg, nil
}

// Load parses the file and applies the environment overlay.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (config or BOT_TOKEN)")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required (config or DATABASE_PATH)")
	}
	return nil
}

// ParseDuration parses a Go duration string, returning def when s is empty
// or invalid.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
