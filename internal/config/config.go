// Package config handles configuration loading for folio.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrelworks/folio/internal/cache"
	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/pkg/models"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Chains  ChainsConfig  `mapstructure:"chains"  yaml:"chains"`
	Cache   CacheConfig   `mapstructure:"cache"   yaml:"cache"`
	LLM     LLMConfig     `mapstructure:"llm"     yaml:"llm"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ChainsConfig holds the ordered provider name lists per market data
// capability. List order is fallback priority.
type ChainsConfig struct {
	Snapshot     []string `mapstructure:"snapshot"     yaml:"snapshot"`
	Bars         []string `mapstructure:"bars"         yaml:"bars"`
	News         []string `mapstructure:"news"         yaml:"news"`
	Fundamentals []string `mapstructure:"fundamentals" yaml:"fundamentals"`
	MinBars      int      `mapstructure:"min_bars"     yaml:"min_bars"`
}

// Lists returns the provider name lists keyed by capability.
func (c ChainsConfig) Lists() map[models.CapabilityKind][]string {
	return map[models.CapabilityKind][]string{
		models.CapabilitySnapshot:     c.Snapshot,
		models.CapabilityBars:         c.Bars,
		models.CapabilityNews:         c.News,
		models.CapabilityFundamentals: c.Fundamentals,
	}
}

// CacheConfig holds per-capability cache entry lifetimes.
type CacheConfig struct {
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"     yaml:"snapshot_ttl"`
	BarsTTL         time.Duration `mapstructure:"bars_ttl"         yaml:"bars_ttl"`
	NewsTTL         time.Duration `mapstructure:"news_ttl"         yaml:"news_ttl"`
	FundamentalsTTL time.Duration `mapstructure:"fundamentals_ttl" yaml:"fundamentals_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"   yaml:"sweep_interval"`
}

// TTLs returns the configured lifetimes in the cache package's shape.
func (c CacheConfig) TTLs() cache.TTLs {
	return cache.TTLs{
		Snapshot:     c.SnapshotTTL,
		Bars:         c.BarsTTL,
		News:         c.NewsTTL,
		Fundamentals: c.FundamentalsTTL,
	}
}

// LLMConfig holds the ordered model fallback chain and analysis settings.
type LLMConfig struct {
	Models          []llm.Config  `mapstructure:"models"           yaml:"models"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout" yaml:"classify_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./folio.yaml (working directory)
//  2. ./config/folio.yaml
//  3. ~/.folio/folio.yaml (home directory)
//  4. /etc/folio/folio.yaml (system)
//
// Environment variables override config file values.
// Format: FOLIO_<SECTION>_<KEY>, e.g., FOLIO_SERVER_PORT
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	v.SetConfigName("folio")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".folio"))
	v.AddConfigPath("/etc/folio")

	// Environment variable settings
	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override sensitive values from environment
	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("FOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	// Chain defaults: list order is fallback priority
	v.SetDefault("chains.snapshot", []string{"yahoo", "stooq", "coingecko"})
	v.SetDefault("chains.bars", []string{"yahoo", "stooq", "coingecko"})
	v.SetDefault("chains.news", []string{"feeds"})
	v.SetDefault("chains.fundamentals", []string{"yahoo"})
	v.SetDefault("chains.min_bars", 30)

	// Cache defaults
	v.SetDefault("cache.snapshot_ttl", "60s")
	v.SetDefault("cache.bars_ttl", "1h")
	v.SetDefault("cache.news_ttl", "15m")
	v.SetDefault("cache.fundamentals_ttl", "24h")
	v.SetDefault("cache.sweep_interval", "5m")

	// LLM defaults: a single local model so analysis works without keys
	v.SetDefault("llm.classify_timeout", "4s")
	v.SetDefault("llm.models", []map[string]any{
		{
			"provider": "ollama",
			"model":    "llama3.1:8b",
			"base_url": "http://localhost:11434",
		},
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads provider API keys from environment
// variables. A key set in the environment wins over the config file for
// every model entry of that provider.
func overrideFromEnv(cfg *Config) {
	for i := range cfg.LLM.Models {
		envVar := apiKeyEnvVar(cfg.LLM.Models[i].Provider)
		if envVar == "" {
			continue
		}
		if key := os.Getenv(envVar); key != "" {
			cfg.LLM.Models[i].APIKey = key
		}
	}
}

// apiKeyEnvVar returns the environment variable holding the API key for a
// provider, or "" for providers that need none.
func apiKeyEnvVar(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return "FOLIO_OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		return "FOLIO_ANTHROPIC_API_KEY"
	case llm.ProviderGemini:
		return "FOLIO_GEMINI_API_KEY"
	default:
		return ""
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
