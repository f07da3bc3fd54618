// Package config loads the optional YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erazemk/oprema/internal/fetch"
)

// Config is the runtime configuration. Zero fields in a file keep their defaults.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Log     LogConfig     `yaml:"log"`
	Janitor JanitorConfig `yaml:"janitor"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	DB       string `yaml:"db"`
	CacheDir string `yaml:"cache_dir"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	MaxBytes  int64         `yaml:"max_bytes"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// JanitorConfig holds the cron schedule for derivative sweeps; empty disables it.
type JanitorConfig struct {
	Schedule string `yaml:"schedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{DB: "oprema.sqlite3", CacheDir: "cache"},
		Fetch: FetchConfig{
			Timeout:   fetch.DefaultTimeout,
			UserAgent: fetch.DefaultUserAgent,
			MaxBytes:  fetch.DefaultMaxBytes,
		},
		Log:     LogConfig{Level: "info"},
		Janitor: JanitorConfig{Schedule: "@daily"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values a file could have set to something unusable.
func (c *Config) Validate() error {
	if c.Storage.DB == "" {
		return fmt.Errorf("config: storage.db is required")
	}
	if c.Storage.CacheDir == "" {
		return fmt.Errorf("config: storage.cache_dir is required")
	}
	if c.Fetch.Timeout < 0 || c.Fetch.MaxBytes < 0 {
		return fmt.Errorf("config: fetch limits must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
