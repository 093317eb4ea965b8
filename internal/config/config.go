// Package config loads and validates the Ragex configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete Ragex configuration (v2 schema)
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	AI        AIConfig                   `json:"ai" mapstructure:"ai"`
	Features  map[string]FeatureOverride `json:"features" mapstructure:"features"`
	Cache     CacheConfig                `json:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig            `json:"rateLimit" mapstructure:"rateLimit"`
	Retrieval RetrievalConfig            `json:"retrieval" mapstructure:"retrieval"`
	Batch     BatchConfig                `json:"batch" mapstructure:"batch"`
	Usage     UsageConfig                `json:"usage" mapstructure:"usage"`
	Logging   LoggingConfig              `json:"logging" mapstructure:"logging"`
}

// AIConfig contains provider selection and global generation defaults
type AIConfig struct {
	Enabled         bool                      `json:"enabled" mapstructure:"enabled"`
	DefaultProvider string                    `json:"defaultProvider" mapstructure:"defaultProvider"`
	Providers       map[string]ProviderConfig `json:"providers" mapstructure:"providers"`
	Temperature     float64                   `json:"temperature" mapstructure:"temperature"`
	MaxTokens       int                       `json:"maxTokens" mapstructure:"maxTokens"`
	TimeoutMs       int                       `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// ProviderConfig contains per-provider endpoint and credential configuration.
// Credentials are referenced by environment variable name, never stored inline.
type ProviderConfig struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Model     string `json:"model" mapstructure:"model"`
	APIKeyEnv string `json:"apiKeyEnv" mapstructure:"apiKeyEnv"`
}

// FeatureOverride contains per-feature overrides of the global AI defaults.
// Nil fields inherit the global value.
type FeatureOverride struct {
	Enabled         *bool    `json:"enabled,omitempty" mapstructure:"enabled"`
	Temperature     *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens       *int     `json:"maxTokens,omitempty" mapstructure:"maxTokens"`
	CacheTTLSeconds *int     `json:"cacheTtlSeconds,omitempty" mapstructure:"cacheTtlSeconds"`
	TimeoutMs       *int     `json:"timeoutMs,omitempty" mapstructure:"timeoutMs"`
}

// CacheConfig contains response cache configuration
type CacheConfig struct {
	Enabled              bool `json:"enabled" mapstructure:"enabled"`
	TTLSeconds           int  `json:"ttlSeconds" mapstructure:"ttlSeconds"`
	MaxSize              int  `json:"maxSize" mapstructure:"maxSize"`
	SweepIntervalSeconds int  `json:"sweepIntervalSeconds" mapstructure:"sweepIntervalSeconds"`
}

// RateLimitConfig overrides the pricing-table quotas when non-zero
type RateLimitConfig struct {
	MaxRequestsPerMinute int   `json:"maxRequestsPerMinute" mapstructure:"maxRequestsPerMinute"`
	MaxRequestsPerHour   int   `json:"maxRequestsPerHour" mapstructure:"maxRequestsPerHour"`
	MaxTokensPerDay      int64 `json:"maxTokensPerDay" mapstructure:"maxTokensPerDay"`
}

// RetrievalConfig contains retrieval defaults for the RAG pipeline
type RetrievalConfig struct {
	Limit           int     `json:"limit" mapstructure:"limit"`
	Threshold       float64 `json:"threshold" mapstructure:"threshold"`
	Strategy        string  `json:"strategy" mapstructure:"strategy"`
	MaxContextChars int     `json:"maxContextChars" mapstructure:"maxContextChars"`
}

// BatchConfig contains bounded-concurrency settings for batch enrichment
type BatchConfig struct {
	MaxConcurrent int `json:"maxConcurrent" mapstructure:"maxConcurrent"`
	ItemTimeoutMs int `json:"itemTimeoutMs" mapstructure:"itemTimeoutMs"`
}

// UsageConfig contains usage-history persistence settings
type UsageConfig struct {
	Persist bool   `json:"persist" mapstructure:"persist"`
	DBPath  string `json:"dbPath" mapstructure:"dbPath"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  2,
		RepoRoot: ".",
		AI: AIConfig{
			Enabled:         true,
			DefaultProvider: "ollama",
			Providers: map[string]ProviderConfig{
				"ollama": {
					Endpoint: "http://localhost:11434",
					Model:    "llama3.1",
				},
			},
			Temperature: 0.3,
			MaxTokens:   1024,
			TimeoutMs:   30000,
		},
		Features: map[string]FeatureOverride{},
		Cache: CacheConfig{
			Enabled:              true,
			TTLSeconds:           3600,
			MaxSize:              1000,
			SweepIntervalSeconds: 300,
		},
		Retrieval: RetrievalConfig{
			Limit:           5,
			Threshold:       0.3,
			Strategy:        "hybrid",
			MaxContextChars: 8000,
		},
		Batch: BatchConfig{
			MaxConcurrent: 3,
			ItemTimeoutMs: 5000,
		},
		Usage: UsageConfig{
			Persist: false,
			DBPath:  ".ragex/usage.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from .ragex/config.json
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("version", 2)
	v.SetDefault("repoRoot", ".")

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".ragex"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	// Unmarshal into config struct
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .ragex/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".ragex")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 2 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.AI.Enabled && c.AI.DefaultProvider == "" {
		return &ConfigError{Field: "ai.defaultProvider", Message: "required when ai.enabled is true"}
	}
	if c.Cache.MaxSize < 0 {
		return &ConfigError{Field: "cache.maxSize", Message: "must not be negative"}
	}
	if c.Batch.MaxConcurrent < 1 {
		return &ConfigError{Field: "batch.maxConcurrent", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
