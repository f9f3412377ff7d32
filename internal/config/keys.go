package config

import (
	"fmt"
	"os"

	"github.com/kestrelworks/folio/internal/llm"
)

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sk-...abc"
}

// CheckAPIKeys returns the status of every API key the configured model
// chain needs. Each provider is reported once, in chain order; Ollama
// entries need no key and are skipped.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	seen := make(map[string]bool)
	statuses := []KeyStatus{}
	for _, m := range cfg.LLM.Models {
		if m.Provider == llm.ProviderOllama || seen[m.Provider] {
			continue
		}
		seen[m.Provider] = true
		statuses = append(statuses, checkKey(keyDisplayName(m.Provider), m.APIKey, apiKeyEnvVar(m.Provider)))
	}
	return statuses
}

// keyDisplayName returns the human-readable name for a provider's key.
func keyDisplayName(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return "OpenAI API Key"
	case llm.ProviderAnthropic:
		return "Anthropic API Key"
	case llm.ProviderGemini:
		return "Gemini API Key"
	default:
		return fmt.Sprintf("%s API Key", provider)
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		// Check if it came from env
		if envVar != "" && os.Getenv(envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
