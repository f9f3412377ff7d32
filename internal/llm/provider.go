// Package llm streams narrative analysis from a priority-ordered chain of
// language-model providers (OpenAI, Anthropic, Gemini, Ollama). Providers
// are tried strictly in configuration order; once any fragment has been
// forwarded to the caller the chain never switches providers again.
package llm

import (
	"context"
	"errors"
)

// Provider names used in configuration and fragment attribution.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Common errors returned by model providers and the chain.
var (
	ErrNoAPIKey           = errors.New("llm: API key not configured")
	ErrRateLimit          = errors.New("llm: rate limit exceeded")
	ErrContextLength      = errors.New("llm: context length exceeded")
	ErrProviderDown       = errors.New("llm: provider unavailable")
	ErrInvalidModel       = errors.New("llm: invalid model")
	ErrNoProviders        = errors.New("llm: no providers configured")
	ErrAllProvidersFailed = errors.New("llm: all providers failed before emitting")
)

// Prompt is the input to a streaming call: a system instruction plus the
// user text. How the two are laid out on the wire is each provider's
// concern; some collapse them into a single turn.
type Prompt struct {
	System string `json:"system,omitempty"`
	User   string `json:"user"`
}

// Chunk is a single fragment of a streamed response. Text fragments carry
// the name and model of the provider that produced them so callers can
// attribute output. The final chunk has Done or Err set, never both.
type Chunk struct {
	Text     string `json:"text,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Done     bool   `json:"done"`
	Err      error  `json:"-"`
}

// Config describes one provider in the fallback chain. The configured list
// order is the fallback priority and is never reordered.
type Config struct {
	Provider    string  `mapstructure:"provider" json:"provider"`
	Model       string  `mapstructure:"model" json:"model"`
	APIKey      string  `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL     string  `mapstructure:"base_url" json:"base_url,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	Temperature float64 `mapstructure:"temperature" json:"temperature,omitempty"`
	Think       bool    `mapstructure:"think" json:"think,omitempty"`
	SingleTurn  bool    `mapstructure:"single_turn" json:"single_turn,omitempty"`
}

// Provider is the interface every model backend implements. Request shaping
// quirks (single-turn collapse, reasoning toggles, alternate wire formats)
// live in the implementations and never leak to callers.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string

	// Model returns the model identifier requests are issued against.
	Model() string

	// Stream sends the prompt and returns a channel of response fragments.
	// The channel is closed after a Done or Err chunk.
	Stream(ctx context.Context, prompt Prompt) (<-chan Chunk, error)

	// Ping checks if the provider is reachable and the API key is valid.
	Ping(ctx context.Context) error
}
