// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and LADDER_ environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// BoardConfig overrides engine defaults for one named leaderboard.
type BoardConfig struct {
	PageSize int  `koanf:"page_size"`
	Reverse  bool `koanf:"reverse"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RedisURL selects the Redis store. Empty keeps everything in memory.
	RedisURL string `koanf:"redis_url"`

	// DefaultPageSize applies to boards without an override.
	DefaultPageSize int `koanf:"default_page_size"`

	// DefaultReverse makes rank 1 the lowest score on every board.
	DefaultReverse bool `koanf:"default_reverse"`

	// MaxPageSize caps the page_size query parameter.
	MaxPageSize int `koanf:"max_page_size"`

	// Boards holds per-board overrides keyed by board name.
	Boards map[string]BoardConfig `koanf:"boards"`

	// EventQueueSize bounds the in-memory event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// HydrationConcurrency bounds parallel member-data lookups per query.
	HydrationConcurrency int `koanf:"hydration_concurrency"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "json",
		Addr:                 ":9080",
		DefaultPageSize:      25,
		MaxPageSize:          1000,
		Boards:               map[string]BoardConfig{},
		EventQueueSize:       100_000,
		WorkerCount:          runtime.NumCPU() * 4,
		DedupeSize:           500_000,
		HydrationConcurrency: 8,
	}
}

// Board returns the effective settings for name.
func (c *Config) Board(name string) BoardConfig {
	if b, ok := c.Boards[name]; ok {
		if b.PageSize <= 0 {
			b.PageSize = c.DefaultPageSize
		}
		return b
	}
	return BoardConfig{PageSize: c.DefaultPageSize, Reverse: c.DefaultReverse}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DefaultPageSize < 1:
		return fmt.Errorf("%w: default_page_size must be positive", ErrInvalidConfig)
	case c.MaxPageSize < c.DefaultPageSize:
		return fmt.Errorf("%w: max_page_size below default_page_size", ErrInvalidConfig)
	case c.EventQueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.HydrationConcurrency < 1:
		return fmt.Errorf("%w: hydration_concurrency must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	for name, b := range c.Boards {
		if b.PageSize < 0 {
			return fmt.Errorf("%w: boards.%s.page_size is negative", ErrInvalidConfig, name)
		}
	}
	return nil
}
