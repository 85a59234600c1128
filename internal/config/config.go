// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/skiff/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete skiff configuration. The value handed to
// component constructors is treated as immutable; anything that needs a
// different configuration builds a new value with Clone and passes that in.
type Config struct {
	// Version of the config schema, written on save.
	Version string `toml:"version" json:"version"`
	// DefaultModel names the entry in Models used when the caller does
	// not pick one.
	DefaultModel string `toml:"default_model" json:"default_model"`

	Bridge    BridgeConfig    `toml:"bridge" json:"bridge"`
	Retry     RetryConfig     `toml:"retry" json:"retry"`
	Monitor   MonitorConfig   `toml:"monitor" json:"monitor"`
	RateLimit RateLimitConfig `toml:"rate_limit" json:"rate_limit"`
	Cache     CacheConfig     `toml:"cache" json:"cache"`
	Request   RequestConfig   `toml:"request" json:"request"`
	Models    []ModelConfig   `toml:"models" json:"models"`
	History   HistoryConfig   `toml:"history" json:"history"`
	Stats     StatsConfig     `toml:"stats" json:"stats"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// BridgeConfig describes how to reach the hosted completion bridge.
type BridgeConfig struct {
	// BaseURL is the root URL of the bridge API.
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey authenticates against the bridge. Usually supplied via
	// SKIFF_API_KEY rather than written to disk.
	APIKey string `toml:"api_key" json:"api_key"`
	// PaceRPM throttles outbound bridge calls to at most this many per
	// minute. 0 disables pacing. This is a politeness throttle on the
	// wire, separate from the admission limiter in [rate_limit].
	PaceRPM int `toml:"pace_rpm" json:"pace_rpm"`
}

// RetryConfig drives the connection monitor's reconnection pass.
type RetryConfig struct {
	// MaxRetries is the number of probe attempts in one reconnection pass.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// BaseDelayMs is the delay before the second attempt; each further
	// attempt doubles it.
	BaseDelayMs int `toml:"base_delay_ms" json:"base_delay_ms"`
	// CapDelayMs bounds the exponential growth.
	CapDelayMs int `toml:"cap_delay_ms" json:"cap_delay_ms"`
}

// MonitorConfig controls passive connection monitoring.
type MonitorConfig struct {
	// CheckIntervalMs is the period of the passive re-probe timer.
	// 0 disables passive monitoring.
	CheckIntervalMs int `toml:"check_interval_ms" json:"check_interval_ms"`
	// Offline pins the client offline: no probes, no bridge calls,
	// every completion gets the offline fallback.
	Offline bool `toml:"offline" json:"offline"`
}

// RateLimitConfig bounds how many requests are admitted per window.
type RateLimitConfig struct {
	// Ceiling is the maximum number of admitted requests inside one
	// trailing window.
	Ceiling int `toml:"ceiling" json:"ceiling"`
	// WindowMs is the width of the trailing window.
	WindowMs int `toml:"window_ms" json:"window_ms"`
}

// CacheConfig controls the in-process response cache.
type CacheConfig struct {
	// Enabled turns response caching on.
	Enabled bool `toml:"enabled" json:"enabled"`
	// MaxSize is the entry capacity; the oldest-inserted entry is
	// evicted when full.
	MaxSize int `toml:"max_size" json:"max_size"`
	// PromptPrefix is how many leading characters of the prompt feed
	// the cache key hash.
	PromptPrefix int `toml:"prompt_prefix" json:"prompt_prefix"`
}

// RequestConfig shapes individual completion requests.
type RequestConfig struct {
	// TimeoutMs bounds a single bridge call.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms"`
	// MaxTokens is the default completion budget sent to the bridge.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// Temperature is the default sampling temperature.
	Temperature float64 `toml:"temperature" json:"temperature"`
	// ContextLength bounds, in characters, how much conversation
	// history is replayed into a prompt.
	ContextLength int `toml:"context_length" json:"context_length"`
}

// ModelConfig declares one selectable model. Completions naming a model
// outside this list are rejected.
type ModelConfig struct {
	// Name is the short alias used on the command line.
	Name string `toml:"name" json:"name"`
	// ID is the provider identifier sent to the bridge.
	ID string `toml:"id" json:"id"`
	// MaxTokens overrides request.max_tokens for this model when set.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
}

// HistoryConfig controls conversation persistence.
type HistoryConfig struct {
	// Dir holds one JSON file per conversation; empty means
	// ~/.skiff/conversations.
	Dir string `toml:"dir" json:"dir"`
	// MaxConversations bounds stored conversations; oldest are removed
	// first. 0 means unlimited.
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// StatsConfig controls local usage tracking.
type StatsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the SQLite database file; empty means ~/.skiff/stats.db.
	Path string `toml:"path" json:"path"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	File   string `toml:"file" json:"file"`
}

// =============================================================================
// DURATION ACCESSORS
// =============================================================================

// BaseDelay returns the backoff base as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// CapDelay returns the backoff ceiling as a duration.
func (r RetryConfig) CapDelay() time.Duration {
	return time.Duration(r.CapDelayMs) * time.Millisecond
}

// CheckInterval returns the passive probe period as a duration.
func (m MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalMs) * time.Millisecond
}

// Window returns the admission window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// Timeout returns the per-request bound as a duration.
func (r RequestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// =============================================================================
// MODEL LOOKUP
// =============================================================================

// Model resolves a model alias or provider ID against the configured
// list. An empty name resolves to DefaultModel.
func (c *Config) Model(name string) (ModelConfig, bool) {
	if name == "" {
		name = c.DefaultModel
	}
	for _, m := range c.Models {
		if m.Name == name || m.ID == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// ModelNames returns the configured aliases in declaration order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		names = append(names, m.Name)
	}
	return names
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "sonnet",

		Bridge: BridgeConfig{
			BaseURL: "https://api.skiff.chat",
			APIKey:  "",
			PaceRPM: 0,
		},

		Retry: RetryConfig{
			MaxRetries:  5,
			BaseDelayMs: 1000,
			CapDelayMs:  10000,
		},

		Monitor: MonitorConfig{
			CheckIntervalMs: 30000,
			Offline:         false,
		},

		RateLimit: RateLimitConfig{
			Ceiling:  10,
			WindowMs: 60000,
		},

		Cache: CacheConfig{
			Enabled:      true,
			MaxSize:      100,
			PromptPrefix: 256,
		},

		Request: RequestConfig{
			TimeoutMs:     30000,
			MaxTokens:     1024,
			Temperature:   0.7,
			ContextLength: 8000,
		},

		Models: []ModelConfig{
			{Name: "sonnet", ID: "anthropic/claude-3.5-sonnet", MaxTokens: 8192},
			{Name: "mini", ID: "openai/gpt-4o-mini", MaxTokens: 4096},
		},

		History: HistoryConfig{
			Dir:              "",
			MaxConversations: 100,
		},

		Stats: StatsConfig{
			Enabled: true,
			Path:    "",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the skiff configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".skiff"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// HistoryDir returns the conversation directory, honoring the
// configured override.
func (c *Config) HistoryDir() (string, error) {
	if c.History.Dir != "" {
		return c.History.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations"), nil
}

// StatsPath returns the usage database path, honoring the configured
// override.
func (c *Config) StatsPath() (string, error) {
	if c.Stats.Path != "" {
		return c.Stats.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stats.db"), nil
}

// ensureSecurePermissions tightens config files to 0600 so the API key
// is not group or world readable.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default file locations. TOML is
// tried first, then JSON, then built-in defaults. Environment overrides
// are applied after file contents, and the result is migrated,
// default-filled and validated.
func Load() (*Config, error) {
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file. Files ending
// in .json decode as JSON; everything else decodes as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := loadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := loadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// finish applies the shared post-load pipeline.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.Migrate()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

func loadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with a generated
// header. The write is atomic and the file ends up 0600 because it may
// carry the API key.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# skiff configuration file\n")
	buf.WriteString("# Generated by skiff - edit with care\n")
	buf.WriteString("#\n")
	buf.WriteString("# Documentation: https://github.com/jeranaias/skiff\n")
	buf.WriteString("\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Bridge.BaseURL != "" {
		if u, err := url.Parse(c.Bridge.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "bridge.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Bridge.BaseURL),
			})
		}
	} else {
		errs = append(errs, ValidationError{
			Field:   "bridge.base_url",
			Message: "must not be empty",
		})
	}
	if c.Bridge.PaceRPM < 0 {
		errs = append(errs, ValidationError{
			Field:   "bridge.pace_rpm",
			Message: "must be non-negative",
		})
	}

	if c.Retry.MaxRetries < 1 || c.Retry.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "retry.max_retries",
			Message: fmt.Sprintf("must be 1-10, got %d", c.Retry.MaxRetries),
		})
	}
	if c.Retry.BaseDelayMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "retry.base_delay_ms",
			Message: "must be positive",
		})
	}
	if c.Retry.CapDelayMs < c.Retry.BaseDelayMs {
		errs = append(errs, ValidationError{
			Field:   "retry.cap_delay_ms",
			Message: fmt.Sprintf("must be >= base_delay_ms (%d), got %d", c.Retry.BaseDelayMs, c.Retry.CapDelayMs),
		})
	}

	if c.Monitor.CheckIntervalMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "monitor.check_interval_ms",
			Message: "must be non-negative (0 disables passive monitoring)",
		})
	}

	if c.RateLimit.Ceiling < 1 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.ceiling",
			Message: "must be positive",
		})
	}
	if c.RateLimit.WindowMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.window_ms",
			Message: "must be positive",
		})
	}

	if c.Cache.MaxSize < 0 || c.Cache.MaxSize > 100000 {
		errs = append(errs, ValidationError{
			Field:   "cache.max_size",
			Message: fmt.Sprintf("must be 0-100000, got %d", c.Cache.MaxSize),
		})
	}
	if c.Cache.PromptPrefix < 1 {
		errs = append(errs, ValidationError{
			Field:   "cache.prompt_prefix",
			Message: "must be positive",
		})
	}

	if c.Request.TimeoutMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "request.timeout_ms",
			Message: "must be positive",
		})
	}
	if c.Request.Temperature < 0 || c.Request.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "request.temperature",
			Message: fmt.Sprintf("must be 0.0-2.0, got %g", c.Request.Temperature),
		})
	}
	if c.Request.ContextLength < 0 {
		errs = append(errs, ValidationError{
			Field:   "request.context_length",
			Message: "must be non-negative",
		})
	}

	if len(c.Models) == 0 {
		errs = append(errs, ValidationError{
			Field:   "models",
			Message: "at least one model must be configured",
		})
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" || m.ID == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("models[%d]", i),
				Message: "name and id must not be empty",
			})
			continue
		}
		if seen[m.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("models[%d].name", i),
				Message: fmt.Sprintf("duplicate model name '%s'", m.Name),
			})
		}
		seen[m.Name] = true
	}
	if c.DefaultModel != "" && len(c.Models) > 0 {
		if _, ok := c.Model(c.DefaultModel); !ok {
			errs = append(errs, ValidationError{
				Field:   "default_model",
				Message: fmt.Sprintf("'%s' does not name a configured model", c.DefaultModel),
			})
		}
	}

	if c.History.MaxConversations < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.max_conversations",
			Message: "must be non-negative (0 means unlimited)",
		})
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Logging.Format),
		})
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills missing or zero-value fields from Default().
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Bridge.BaseURL == "" {
		c.Bridge.BaseURL = defaults.Bridge.BaseURL
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = defaults.Retry.MaxRetries
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = defaults.Retry.BaseDelayMs
	}
	if c.Retry.CapDelayMs == 0 {
		c.Retry.CapDelayMs = defaults.Retry.CapDelayMs
	}

	if c.Monitor.CheckIntervalMs == 0 && !c.Monitor.Offline {
		c.Monitor.CheckIntervalMs = defaults.Monitor.CheckIntervalMs
	}

	if c.RateLimit.Ceiling == 0 {
		c.RateLimit.Ceiling = defaults.RateLimit.Ceiling
	}
	if c.RateLimit.WindowMs == 0 {
		c.RateLimit.WindowMs = defaults.RateLimit.WindowMs
	}

	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = defaults.Cache.MaxSize
	}
	if c.Cache.PromptPrefix == 0 {
		c.Cache.PromptPrefix = defaults.Cache.PromptPrefix
	}

	if c.Request.TimeoutMs == 0 {
		c.Request.TimeoutMs = defaults.Request.TimeoutMs
	}
	if c.Request.MaxTokens == 0 {
		c.Request.MaxTokens = defaults.Request.MaxTokens
	}
	if c.Request.Temperature == 0 {
		c.Request.Temperature = defaults.Request.Temperature
	}
	if c.Request.ContextLength == 0 {
		c.Request.ContextLength = defaults.Request.ContextLength
	}

	if len(c.Models) == 0 {
		c.Models = append([]ModelConfig(nil), defaults.Models...)
	}
	if c.DefaultModel == "" {
		if _, ok := c.Model(defaults.DefaultModel); ok {
			c.DefaultModel = defaults.DefaultModel
		} else if len(c.Models) > 0 {
			c.DefaultModel = c.Models[0].Name
		}
	}

	if c.History.MaxConversations == 0 {
		c.History.MaxConversations = defaults.History.MaxConversations
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// Migrate normalizes legacy spellings before validation.
func (c *Config) Migrate() {
	// "text" was an early alias for the console format.
	if strings.EqualFold(c.Logging.Format, "text") {
		c.Logging.Format = "console"
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Logging.Level = strings.ToLower(c.Logging.Level)

	// Duplicate model names keep the first declaration.
	seen := make(map[string]bool, len(c.Models))
	kept := c.Models[:0]
	for _, m := range c.Models {
		if m.Name != "" && seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		kept = append(kept, m)
	}
	c.Models = kept
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SKIFF_MODEL: overrides default_model
//   - SKIFF_API_KEY: overrides bridge.api_key
//   - SKIFF_BASE_URL: overrides bridge.base_url
//   - SKIFF_OFFLINE: set to "1" or "true" to pin offline mode
//   - SKIFF_NO_NETWORK: alias for SKIFF_OFFLINE
//   - SKIFF_LOG_LEVEL: overrides logging.level
//   - SKIFF_LOG_FORMAT: overrides logging.format
//   - SKIFF_STATS: set to "0" or "false" to disable usage tracking
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("SKIFF_MODEL"); model != "" {
		c.DefaultModel = model
	}

	if key := os.Getenv("SKIFF_API_KEY"); key != "" {
		c.Bridge.APIKey = key
	}

	if base := os.Getenv("SKIFF_BASE_URL"); base != "" {
		c.Bridge.BaseURL = base
	}

	if offline := os.Getenv("SKIFF_OFFLINE"); offline != "" {
		c.Monitor.Offline = isTruthy(offline)
	}
	if noNetwork := os.Getenv("SKIFF_NO_NETWORK"); noNetwork != "" {
		c.Monitor.Offline = isTruthy(noNetwork)
	}

	if level := os.Getenv("SKIFF_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("SKIFF_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if stats := os.Getenv("SKIFF_STATS"); stats != "" {
		c.Stats.Enabled = isTruthy(stats)
	}
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g., "rate_limit.ceiling").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 || key == "" {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation
// (e.g., "retry.max_retries").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 || key == "" {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with
// string conversion for the scalar kinds the CLI passes in.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(isTruthy(strVal))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns the scalar configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"default_model",
		"bridge.base_url",
		"bridge.api_key",
		"bridge.pace_rpm",
		"retry.max_retries",
		"retry.base_delay_ms",
		"retry.cap_delay_ms",
		"monitor.check_interval_ms",
		"monitor.offline",
		"rate_limit.ceiling",
		"rate_limit.window_ms",
		"cache.enabled",
		"cache.max_size",
		"cache.prompt_prefix",
		"request.timeout_ms",
		"request.max_tokens",
		"request.temperature",
		"request.context_length",
		"history.dir",
		"history.max_conversations",
		"stats.enabled",
		"stats.path",
		"logging.level",
		"logging.format",
		"logging.file",
	}
}

// =============================================================================
// COPY & DEBUG OUTPUT
// =============================================================================

// Clone creates a deep copy of the configuration, so a caller can
// modify its copy without the shared Models slice leaking changes back.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Models != nil {
		clone.Models = append([]ModelConfig(nil), c.Models...)
	}
	return &clone
}

// String renders the config as indented JSON with the API key redacted,
// safe to write into logs and error output.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Bridge.APIKey != "" {
		safe.Bridge.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
