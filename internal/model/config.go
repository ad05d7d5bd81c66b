package model

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	DBPath    string                    `yaml:"db_path" mapstructure:"db_path"`
	HTTP      HTTPConfig                `yaml:"http" mapstructure:"http"`
	Cache     CacheConfig               `yaml:"cache" mapstructure:"cache"`
	Log       LogConfig                 `yaml:"log" mapstructure:"log"`
	Match     MatchConfig               `yaml:"match" mapstructure:"match"`
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// HTTPConfig controls the reference HTTP scrape driver.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CheckRobots  bool          `yaml:"check_robots" mapstructure:"check_robots"`
}

// CacheConfig controls the in-memory front of the provider cache store.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MatchConfig tunes parent name matching during discovery.
type MatchConfig struct {
	// MinConfidence is the similarity score below which a candidate parent
	// link is reported but not registered.
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// ProviderConfig holds per-provider settings. RateLimitMs is the minimum
// delay between fetches against the provider; MaxGenerationDepth caps bulk
// ancestor traversals.
type ProviderConfig struct {
	RateLimitMs        int               `yaml:"rate_limit_ms" mapstructure:"rate_limit_ms"`
	MaxGenerationDepth int               `yaml:"max_generation_depth" mapstructure:"max_generation_depth"`
	BaseURL            string            `yaml:"base_url" mapstructure:"base_url"`
	LoginPath          string            `yaml:"login_path" mapstructure:"login_path"`
	IDPattern          string            `yaml:"id_pattern" mapstructure:"id_pattern"`
	FieldSelectors     map[string]string `yaml:"field_selectors" mapstructure:"field_selectors"`
	ParentSelectors    map[string]string `yaml:"parent_selectors" mapstructure:"parent_selectors"`
}

// RateLimit returns the configured minimum inter-request interval.
func (p ProviderConfig) RateLimit() time.Duration {
	return time.Duration(p.RateLimitMs) * time.Millisecond
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath: "kinsync.db",
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Kinsync/0.1 (genealogy sync)",
			MaxBodyBytes: 2_000_000,
			CheckRobots:  true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 15 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Match: MatchConfig{
			MinConfidence: 0.8,
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Validate checks the configuration at startup. Provider entries with
// non-positive rate limits or depth caps are rejected rather than silently
// defaulted, since both directly control load on external services.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("config: http.timeout must be positive")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: http.max_body_bytes must be positive")
	}
	if c.Match.MinConfidence <= 0 || c.Match.MinConfidence > 1 {
		return fmt.Errorf("config: match.min_confidence must be in (0, 1]")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "json", "console":
	default:
		return fmt.Errorf("config: log.format must be one of text, console, json")
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be one of debug, info, warn, error")
	}
	for name, p := range c.Providers {
		if name == "" {
			return fmt.Errorf("config: provider name must not be empty")
		}
		if p.RateLimitMs <= 0 {
			return fmt.Errorf("config: provider %q: rate_limit_ms must be positive", name)
		}
		if p.MaxGenerationDepth <= 0 {
			return fmt.Errorf("config: provider %q: max_generation_depth must be positive", name)
		}
	}
	return nil
}

// ProviderNames returns the configured provider names in no particular order.
func (c *Config) ProviderNames() []Provider {
	names := make([]Provider, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, Provider(name))
	}
	return names
}

// ProviderConfigFor returns the configuration for a provider.
func (c *Config) ProviderConfigFor(p Provider) (ProviderConfig, bool) {
	cfg, ok := c.Providers[string(p)]
	return cfg, ok
}
