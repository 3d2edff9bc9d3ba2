// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for the concierge.
type Config struct {
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Turn        TurnConfig        `yaml:"turn"`
	History     HistoryConfig     `yaml:"history"`
	Provider    ProviderConfig    `yaml:"provider"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Storage     StorageConfig     `yaml:"storage"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// Per-environment sections, decoded over the base values when
	// Environment matches.
	Development *yaml.Node `yaml:"development,omitempty"`
	Staging     *yaml.Node `yaml:"staging,omitempty"`
	Production  *yaml.Node `yaml:"production,omitempty"`
}

// TurnConfig bounds a single turn.
type TurnConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	TurnTimeout      time.Duration `yaml:"turn_timeout"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	SystemPrompt     string        `yaml:"system_prompt"`
	UnavailableReply string        `yaml:"unavailable_reply"`
	PartialReply     string        `yaml:"partial_reply"`
}

// HistoryConfig configures the token-bounded history window.
type HistoryConfig struct {
	TokenBudget           int `yaml:"token_budget"`
	MessageOverheadTokens int `yaml:"message_overhead_tokens"`
}

// ProviderConfig selects the language-model backend. The API key
// comes from Secrets.
type ProviderConfig struct {
	// Kind is openai or anthropic.
	Kind      string `yaml:"kind"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ReliabilityConfig configures rate limiting, retry, and the circuit
// breaker around the provider.
type ReliabilityConfig struct {
	ReservoirSize    int           `yaml:"reservoir_size"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	MaxQueueWait     time.Duration `yaml:"max_queue_wait"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	WindowSize       int           `yaml:"window_size"`
	MinimumCalls     int           `yaml:"minimum_calls"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// StorageConfig selects the conversation store.
type StorageConfig struct {
	// Driver is sqlite, redis, or memory.
	Driver            string `yaml:"driver"`
	Path              string `yaml:"path"`
	RedisAddr         string `yaml:"redis_addr"`
	CompressThreshold int    `yaml:"compress_threshold"`
}

// CatalogConfig locates the product catalog seed.
type CatalogConfig struct {
	// SeedPath is a JSONC file of the form {"items": [...]}.
	SeedPath string `yaml:"seed_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is host:port; empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the configuration every file is loaded on top of.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Turn: TurnConfig{
			MaxIterations:    10,
			ToolTimeout:      5 * time.Second,
			TurnTimeout:      60 * time.Second,
			MaxParallelTools: 8,
			SystemPrompt: "You are a procurement assistant for an office supply store. " +
				"Use the tools to search the catalog, manage the user's cart, and place orders. " +
				"Only state prices and availability that a tool returned.",
			UnavailableReply: "Sorry, the assistant is temporarily unavailable. Please try again in a moment.",
			PartialReply:     "I had to stop before finishing. Here is where things stand; ask me to continue if you need more.",
		},
		History: HistoryConfig{
			TokenBudget:           3000,
			MessageOverheadTokens: 4,
		},
		Provider: ProviderConfig{
			Kind:      "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Reliability: ReliabilityConfig{
			ReservoirSize:    60,
			RefreshInterval:  time.Minute,
			MaxQueueWait:     2 * time.Second,
			MaxRetries:       3,
			BaseBackoff:      200 * time.Millisecond,
			MaxBackoff:       5 * time.Second,
			AttemptTimeout:   30 * time.Second,
			WindowSize:       20,
			MinimumCalls:     5,
			FailureThreshold: 0.5,
			Cooldown:         30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:            "sqlite",
			Path:              "${HOME}/.local/share/concierge/conversations.db",
			CompressThreshold: 4096,
		},
	}
}

// Load loads configuration from the file named by CONCIERGE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("CONCIERGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CONCIERGE_CONFIG environment variable not set; " +
			"set it to the path of your concierge.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default, applies
// the matching environment section, and expands variables. It does
// not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse is LoadFile without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides decodes the section for the current
// environment over the base values.
func (c *Config) applyEnvironmentOverrides() error {
	var overrides *yaml.Node
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return nil
	}

	environment := c.Environment
	if err := overrides.Decode(c); err != nil {
		return fmt.Errorf("applying %s overrides: %w", environment, err)
	}
	// A section cannot switch environments.
	c.Environment = environment
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns.
func (c *Config) expandVariables() {
	c.Storage.Path = expandVars(c.Storage.Path)
	c.Storage.RedisAddr = expandVars(c.Storage.RedisAddr)
	c.Catalog.SeedPath = expandVars(c.Catalog.SeedPath)
	c.Provider.BaseURL = expandVars(c.Provider.BaseURL)
	c.Metrics.Listen = expandVars(c.Metrics.Listen)
	c.Turn.SystemPrompt = expandVars(c.Turn.SystemPrompt)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains([]Environment{Development, Staging, Production}, c.Environment),
		"invalid environment: %s", c.Environment)
	check(slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel),
		"log_level must be one of debug, info, warn, error; got %q", c.LogLevel)

	check(c.Turn.MaxIterations > 0, "turn.max_iterations must be positive")
	check(c.Turn.ToolTimeout > 0, "turn.tool_timeout must be positive")
	check(c.Turn.TurnTimeout >= 0, "turn.turn_timeout must not be negative")
	check(c.Turn.MaxParallelTools > 0, "turn.max_parallel_tools must be positive")

	check(c.History.TokenBudget > 0, "history.token_budget must be positive")
	check(c.History.MessageOverheadTokens >= 0, "history.message_overhead_tokens must not be negative")

	check(c.Provider.Kind == "openai" || c.Provider.Kind == "anthropic",
		"provider.kind must be openai or anthropic; got %q", c.Provider.Kind)
	check(c.Provider.Model != "", "provider.model is required")
	check(c.Provider.MaxTokens > 0, "provider.max_tokens must be positive")

	r := c.Reliability
	check(r.ReservoirSize > 0, "reliability.reservoir_size must be positive")
	check(r.RefreshInterval > 0, "reliability.refresh_interval must be positive")
	check(r.MaxQueueWait >= 0, "reliability.max_queue_wait must not be negative")
	check(r.MaxRetries >= 0, "reliability.max_retries must not be negative")
	check(r.BaseBackoff > 0, "reliability.base_backoff must be positive")
	check(r.MaxBackoff >= r.BaseBackoff, "reliability.max_backoff must be at least base_backoff")
	check(r.AttemptTimeout >= 0, "reliability.attempt_timeout must not be negative")
	check(r.WindowSize > 0, "reliability.window_size must be positive")
	check(r.MinimumCalls > 0 && r.MinimumCalls <= r.WindowSize,
		"reliability.minimum_calls must be between 1 and window_size")
	check(r.FailureThreshold > 0 && r.FailureThreshold < 1,
		"reliability.failure_threshold must be in (0, 1)")
	check(r.Cooldown > 0, "reliability.cooldown must be positive")

	switch c.Storage.Driver {
	case "sqlite":
		check(c.Storage.Path != "", "storage.path is required for the sqlite driver")
	case "redis":
		check(c.Storage.RedisAddr != "", "storage.redis_addr is required for the redis driver")
	case "memory":
		check(c.Environment != Production, "storage.driver memory is not allowed in production")
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite, redis, or memory; got %q", c.Storage.Driver))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
