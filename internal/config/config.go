// Package config loads nexuslite's runtime configuration from YAML,
// the same tagged-struct-plus-yaml.v3 idiom used across the example
// pack for declarative config (struct fields tagged `yaml:"..."`,
// decoded with yaml.Unmarshal).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig controls the wasp block cache.
type CacheConfig struct {
	// Pages is the configured block-cache size in pages. cmd/nexuslite
	// does not pass it to the store; the cache uses wasp's default
	// capacity.
	Pages int `yaml:"pages"`
}

// RateLimitConfig sets the default token-bucket parameters applied to
// collections that have no per-collection override.
type RateLimitConfig struct {
	Capacity        int `yaml:"capacity"`
	RefillPerSecond int `yaml:"refill_per_second"`
}

// CheckpointConfig controls the scheduled checkpoint job.
type CheckpointConfig struct {
	// Interval is the configured time between automatic checkpoints.
	// Nothing reads it: the schedule-checkpoints subcommand takes its
	// schedule as a cron expression argument.
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig controls where and how verbosely nexuslite logs.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Config is the top-level runtime configuration for a nexuslite
// process: page size, cache policy, rate limits, checkpoint cadence,
// and logging.
type Config struct {
	// PageSize is the configured wasp page size in bytes. cmd/nexuslite
	// does not pass it to the store, which is opened with wasp's
	// default page size.
	PageSize   int              `yaml:"page_size"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns nexuslite's built-in configuration, used whenever
// no config file is supplied.
func Default() *Config {
	return &Config{
		PageSize: 4096,
		Cache:    CacheConfig{Pages: 256},
		RateLimit: RateLimitConfig{
			Capacity:        1000,
			RefillPerSecond: 500,
		},
		Checkpoint: CheckpointConfig{Interval: 5 * time.Minute},
		Logging:    LoggingConfig{Dir: "logs", Level: "info"},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so an omitted section keeps its default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
