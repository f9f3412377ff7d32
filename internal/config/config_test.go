package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelworks/folio/internal/cache"
	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/pkg/models"
)

// keyEnvVars are the variables overrideFromEnv reads; tests clear them so a
// developer's shell does not leak into assertions.
var keyEnvVars = []string{
	"FOLIO_OPENAI_API_KEY", "FOLIO_ANTHROPIC_API_KEY", "FOLIO_GEMINI_API_KEY",
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, e := range keyEnvVars {
		os.Unsetenv(e)
	}
}

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	clearKeyEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host: got %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr(): got %q", cfg.Server.Addr())
	}

	// Chain defaults
	wantSnapshot := []string{"yahoo", "stooq", "coingecko"}
	if len(cfg.Chains.Snapshot) != len(wantSnapshot) {
		t.Fatalf("Chains.Snapshot: got %v, want %v", cfg.Chains.Snapshot, wantSnapshot)
	}
	for i, name := range wantSnapshot {
		if cfg.Chains.Snapshot[i] != name {
			t.Errorf("Chains.Snapshot[%d]: got %q, want %q", i, cfg.Chains.Snapshot[i], name)
		}
	}
	if len(cfg.Chains.News) != 1 || cfg.Chains.News[0] != "feeds" {
		t.Errorf("Chains.News: got %v", cfg.Chains.News)
	}
	if len(cfg.Chains.Fundamentals) != 1 || cfg.Chains.Fundamentals[0] != "yahoo" {
		t.Errorf("Chains.Fundamentals: got %v", cfg.Chains.Fundamentals)
	}
	if cfg.Chains.MinBars != 30 {
		t.Errorf("Chains.MinBars: got %d, want 30", cfg.Chains.MinBars)
	}

	// Cache defaults
	if cfg.Cache.SnapshotTTL != time.Minute {
		t.Errorf("Cache.SnapshotTTL: got %v, want 1m", cfg.Cache.SnapshotTTL)
	}
	if cfg.Cache.BarsTTL != time.Hour {
		t.Errorf("Cache.BarsTTL: got %v, want 1h", cfg.Cache.BarsTTL)
	}
	if cfg.Cache.NewsTTL != 15*time.Minute {
		t.Errorf("Cache.NewsTTL: got %v, want 15m", cfg.Cache.NewsTTL)
	}
	if cfg.Cache.FundamentalsTTL != 24*time.Hour {
		t.Errorf("Cache.FundamentalsTTL: got %v, want 24h", cfg.Cache.FundamentalsTTL)
	}

	// LLM defaults
	if cfg.LLM.ClassifyTimeout != 4*time.Second {
		t.Errorf("LLM.ClassifyTimeout: got %v, want 4s", cfg.LLM.ClassifyTimeout)
	}
	if len(cfg.LLM.Models) != 1 {
		t.Fatalf("LLM.Models: got %d entries, want 1", len(cfg.LLM.Models))
	}
	if cfg.LLM.Models[0].Provider != "ollama" {
		t.Errorf("LLM.Models[0].Provider: got %q, want %q", cfg.LLM.Models[0].Provider, "ollama")
	}
	if cfg.LLM.Models[0].Model != "llama3.1:8b" {
		t.Errorf("LLM.Models[0].Model: got %q", cfg.LLM.Models[0].Model)
	}
	if cfg.LLM.Models[0].BaseURL != "http://localhost:11434" {
		t.Errorf("LLM.Models[0].BaseURL: got %q", cfg.LLM.Models[0].BaseURL)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
}

// ── LoadFromFile ──

func TestLoadFromFile(t *testing.T) {
	clearKeyEnv(t)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "folio.yaml")
	content := []byte(`
server:
  port: 9090
chains:
  snapshot: ["stooq", "yahoo"]
  min_bars: 20
cache:
  snapshot_ttl: 30s
llm:
  classify_timeout: 2s
  models:
    - provider: "openai"
      model: "gpt-4o-mini"
      api_key: "sk-test-openai-key-123456"
      max_tokens: 700
      temperature: 0.3
    - provider: "ollama"
      model: "qwen2.5:7b"
      base_url: "http://ollama.internal:11434"
logging:
  level: "debug"
  format: "json"
`)
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port: got %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Chains.Snapshot) != 2 || cfg.Chains.Snapshot[0] != "stooq" || cfg.Chains.Snapshot[1] != "yahoo" {
		t.Errorf("Chains.Snapshot: got %v, want [stooq yahoo]", cfg.Chains.Snapshot)
	}
	if cfg.Chains.MinBars != 20 {
		t.Errorf("Chains.MinBars: got %d, want 20", cfg.Chains.MinBars)
	}
	// Keys the file does not set keep their defaults
	if len(cfg.Chains.Bars) != 3 || cfg.Chains.Bars[0] != "yahoo" {
		t.Errorf("Chains.Bars should keep defaults, got %v", cfg.Chains.Bars)
	}
	if cfg.Cache.SnapshotTTL != 30*time.Second {
		t.Errorf("Cache.SnapshotTTL: got %v, want 30s", cfg.Cache.SnapshotTTL)
	}
	if cfg.Cache.BarsTTL != time.Hour {
		t.Errorf("Cache.BarsTTL should keep default, got %v", cfg.Cache.BarsTTL)
	}
	if cfg.LLM.ClassifyTimeout != 2*time.Second {
		t.Errorf("LLM.ClassifyTimeout: got %v, want 2s", cfg.LLM.ClassifyTimeout)
	}
	if len(cfg.LLM.Models) != 2 {
		t.Fatalf("LLM.Models: got %d entries, want 2", len(cfg.LLM.Models))
	}
	first := cfg.LLM.Models[0]
	if first.Provider != "openai" || first.Model != "gpt-4o-mini" {
		t.Errorf("Models[0]: got %s/%s, want openai/gpt-4o-mini", first.Provider, first.Model)
	}
	if first.APIKey != "sk-test-openai-key-123456" {
		t.Errorf("Models[0].APIKey: got %q", first.APIKey)
	}
	if first.MaxTokens != 700 {
		t.Errorf("Models[0].MaxTokens: got %d, want 700", first.MaxTokens)
	}
	if first.Temperature != 0.3 {
		t.Errorf("Models[0].Temperature: got %f, want 0.3", first.Temperature)
	}
	second := cfg.LLM.Models[1]
	if second.Provider != "ollama" || second.BaseURL != "http://ollama.internal:11434" {
		t.Errorf("Models[1]: got %s @ %s", second.Provider, second.BaseURL)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging: got %s/%s, want debug/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/folio.yaml")
	if err == nil {
		t.Error("LoadFromFile() with nonexistent path should return error")
	}
}

// ── overrideFromEnv ──

func TestOverrideFromEnv(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{
			Models: []llm.Config{
				{Provider: "openai", Model: "gpt-4o-mini"},
				{Provider: "anthropic", Model: "claude-sonnet-4-5", APIKey: "from-config"},
				{Provider: "ollama", Model: "llama3.1:8b"},
			},
		},
	}

	os.Setenv("FOLIO_OPENAI_API_KEY", "sk-test-openai-key-123456")
	os.Setenv("FOLIO_ANTHROPIC_API_KEY", "sk-ant-test")
	defer func() {
		os.Unsetenv("FOLIO_OPENAI_API_KEY")
		os.Unsetenv("FOLIO_ANTHROPIC_API_KEY")
	}()

	overrideFromEnv(cfg)

	if cfg.LLM.Models[0].APIKey != "sk-test-openai-key-123456" {
		t.Errorf("openai key: got %q", cfg.LLM.Models[0].APIKey)
	}
	// Env wins over a key set in the file
	if cfg.LLM.Models[1].APIKey != "sk-ant-test" {
		t.Errorf("anthropic key: got %q", cfg.LLM.Models[1].APIKey)
	}
	if cfg.LLM.Models[2].APIKey != "" {
		t.Errorf("ollama should not get a key, got %q", cfg.LLM.Models[2].APIKey)
	}
}

func TestOverrideFromEnvNoEnvSet(t *testing.T) {
	clearKeyEnv(t)

	cfg := &Config{
		LLM: LLMConfig{
			Models: []llm.Config{{Provider: "openai", APIKey: "from-config"}},
		},
	}
	overrideFromEnv(cfg)

	// Should retain the original value when env is not set
	if cfg.LLM.Models[0].APIKey != "from-config" {
		t.Errorf("APIKey should stay as 'from-config' when env is unset, got %q", cfg.LLM.Models[0].APIKey)
	}
}

// ── maskKey ──

func TestMaskKeyShort(t *testing.T) {
	// Keys with 8 or fewer characters should be fully masked
	tests := []struct {
		input string
		want  string
	}{
		{"", "***"},
		{"a", "***"},
		{"abcd", "***"},
		{"12345678", "***"},
	}
	for _, tc := range tests {
		got := maskKey(tc.input)
		if got != tc.want {
			t.Errorf("maskKey(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestMaskKeyLong(t *testing.T) {
	// Keys with more than 8 characters show first 3 + ... + last 3
	tests := []struct {
		input string
		want  string
	}{
		{"123456789", "123...789"},
		{"sk-abcdef1234567890xyz", "sk-...xyz"},
		{"ABCDEFGHIJKLMNOP", "ABC...NOP"},
	}
	for _, tc := range tests {
		got := maskKey(tc.input)
		if got != tc.want {
			t.Errorf("maskKey(%q): got %q, want %q", tc.input, got, tc.want)
		}
	}
}

// ── CheckAPIKeys / checkKey ──

func TestCheckAPIKeysReportsEachProviderOnce(t *testing.T) {
	clearKeyEnv(t)

	cfg := &Config{
		LLM: LLMConfig{
			Models: []llm.Config{
				{Provider: "openai", Model: "gpt-4o-mini"},
				{Provider: "gemini", Model: "gemini-2.0-flash"},
				{Provider: "openai", Model: "gpt-4o"},
				{Provider: "ollama", Model: "llama3.1:8b"},
				{Provider: "anthropic", Model: "claude-sonnet-4-5"},
			},
		},
	}
	statuses := CheckAPIKeys(cfg)

	wantNames := []string{"OpenAI API Key", "Gemini API Key", "Anthropic API Key"}
	if len(statuses) != len(wantNames) {
		t.Fatalf("CheckAPIKeys: got %d statuses, want %d", len(statuses), len(wantNames))
	}
	for i, want := range wantNames {
		if statuses[i].Name != want {
			t.Errorf("statuses[%d].Name: got %q, want %q", i, statuses[i].Name, want)
		}
		if statuses[i].IsSet {
			t.Errorf("Key %q should not be set", statuses[i].Name)
		}
		if statuses[i].Source != KeySourceNone {
			t.Errorf("Key %q source: got %q, want %q", statuses[i].Name, statuses[i].Source, KeySourceNone)
		}
	}
}

func TestCheckAPIKeysNoKeyedProviders(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{
			Models: []llm.Config{{Provider: "ollama", Model: "llama3.1:8b"}},
		},
	}
	if statuses := CheckAPIKeys(cfg); len(statuses) != 0 {
		t.Errorf("ollama-only chain should report no keys, got %v", statuses)
	}
}

func TestCheckAPIKeysFromConfig(t *testing.T) {
	clearKeyEnv(t)

	cfg := &Config{
		LLM: LLMConfig{
			Models: []llm.Config{
				{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test-very-long-key-value"},
			},
		},
	}
	statuses := CheckAPIKeys(cfg)

	found := false
	for _, s := range statuses {
		if s.Name == "OpenAI API Key" {
			found = true
			if !s.IsSet {
				t.Error("OpenAI key should be set")
			}
			if s.Source != KeySourceConfig {
				t.Errorf("Source: got %q, want %q", s.Source, KeySourceConfig)
			}
			if s.Masked != "sk-...lue" {
				t.Errorf("Masked: got %q, want %q", s.Masked, "sk-...lue")
			}
		}
	}
	if !found {
		t.Error("OpenAI API Key status not found")
	}
}

func TestCheckAPIKeysFromEnv(t *testing.T) {
	os.Setenv("FOLIO_OPENAI_API_KEY", "sk-env-key-for-testing")
	defer os.Unsetenv("FOLIO_OPENAI_API_KEY")

	cfg := &Config{
		LLM: LLMConfig{
			Models: []llm.Config{
				{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-env-key-for-testing"},
			},
		},
	}
	statuses := CheckAPIKeys(cfg)

	for _, s := range statuses {
		if s.Name == "OpenAI API Key" {
			if s.Source != KeySourceEnv {
				t.Errorf("Source: got %q, want %q", s.Source, KeySourceEnv)
			}
		}
	}
}

func TestCheckKeySourceDetection(t *testing.T) {
	// No env, no value
	os.Unsetenv("TEST_VAR")
	s := checkKey("Test", "", "TEST_VAR")
	if s.Source != KeySourceNone {
		t.Errorf("empty value: got source %q, want %q", s.Source, KeySourceNone)
	}
	if s.IsSet {
		t.Error("empty value should not be set")
	}

	// Value from config (no env)
	s = checkKey("Test", "config-value-long-enough", "TEST_VAR")
	if s.Source != KeySourceConfig {
		t.Errorf("config value: got source %q, want %q", s.Source, KeySourceConfig)
	}
	if !s.IsSet {
		t.Error("config value should be set")
	}

	// Value from env
	os.Setenv("TEST_VAR", "env-value-long-enough")
	defer os.Unsetenv("TEST_VAR")
	s = checkKey("Test", "env-value-long-enough", "TEST_VAR")
	if s.Source != KeySourceEnv {
		t.Errorf("env value: got source %q, want %q", s.Source, KeySourceEnv)
	}
}

// ── Conversion helpers ──

func TestChainsLists(t *testing.T) {
	c := ChainsConfig{
		Snapshot:     []string{"yahoo"},
		Bars:         []string{"stooq", "yahoo"},
		News:         []string{"feeds"},
		Fundamentals: []string{"yahoo"},
	}
	lists := c.Lists()

	if len(lists[models.CapabilityBars]) != 2 || lists[models.CapabilityBars][0] != "stooq" {
		t.Errorf("bars list: got %v", lists[models.CapabilityBars])
	}
	if len(lists[models.CapabilityNews]) != 1 || lists[models.CapabilityNews][0] != "feeds" {
		t.Errorf("news list: got %v", lists[models.CapabilityNews])
	}
}

func TestCacheTTLs(t *testing.T) {
	c := CacheConfig{
		SnapshotTTL:     45 * time.Second,
		BarsTTL:         2 * time.Hour,
		NewsTTL:         10 * time.Minute,
		FundamentalsTTL: 12 * time.Hour,
	}
	ttls := c.TTLs()

	want := cache.TTLs{
		Snapshot:     45 * time.Second,
		Bars:         2 * time.Hour,
		News:         10 * time.Minute,
		Fundamentals: 12 * time.Hour,
	}
	if ttls != want {
		t.Errorf("TTLs(): got %+v, want %+v", ttls, want)
	}
}

// ── homeDir ──

func TestHomeDirReturnsNonEmpty(t *testing.T) {
	h := homeDir()
	if h == "" {
		t.Error("homeDir() should not return empty string")
	}
}

// ── APIKeySource constants ──

func TestAPIKeySourceConstants(t *testing.T) {
	if string(KeySourceEnv) != "env" {
		t.Errorf("KeySourceEnv: got %q", KeySourceEnv)
	}
	if string(KeySourceConfig) != "config" {
		t.Errorf("KeySourceConfig: got %q", KeySourceConfig)
	}
	if string(KeySourceNone) != "none" {
		t.Errorf("KeySourceNone: got %q", KeySourceNone)
	}
}
