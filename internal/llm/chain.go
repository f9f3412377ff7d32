package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Chain tries each provider strictly in order and forwards the winner's
// fragments downstream. A provider that fails before any fragment has been
// forwarded is skipped silently. A failure after the first fragment is
// terminal: a partial narrative has already reached the caller, and
// restarting on another provider would splice two answers together.
type Chain struct {
	providers []Provider
}

// NewChain creates a chain over an ordered provider list.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// FromConfigs builds a chain from the configured provider list, preserving
// the configured order. Entries that cannot be constructed (missing key,
// unknown provider name) are skipped with a warning.
func FromConfigs(configs []Config) (*Chain, error) {
	var providers []Provider
	for _, cfg := range configs {
		p, err := newProvider(cfg)
		if err != nil {
			log.Warn().Str("provider", cfg.Provider).Str("model", cfg.Model).Err(err).
				Msg("skipping model provider")
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return NewChain(providers...), nil
}

func newProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		var opts []OpenAIOption
		if cfg.Model != "" {
			opts = append(opts, WithOpenAIModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, WithOpenAIMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			opts = append(opts, WithOpenAITemperature(cfg.Temperature))
		}
		return NewOpenAIProvider(cfg.APIKey, opts...)

	case ProviderAnthropic:
		var opts []AnthropicOption
		if cfg.Model != "" {
			opts = append(opts, WithAnthropicModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(cfg.BaseURL))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, WithAnthropicMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			opts = append(opts, WithAnthropicTemperature(cfg.Temperature))
		}
		if cfg.Think {
			opts = append(opts, WithAnthropicThinking(0))
		}
		return NewAnthropicProvider(cfg.APIKey, opts...)

	case ProviderGemini:
		var opts []GeminiOption
		if cfg.Model != "" {
			opts = append(opts, WithGeminiModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, WithGeminiBaseURL(cfg.BaseURL))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, WithGeminiMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			opts = append(opts, WithGeminiTemperature(cfg.Temperature))
		}
		if cfg.SingleTurn {
			opts = append(opts, WithGeminiSingleTurn())
		}
		return NewGeminiProvider(cfg.APIKey, opts...)

	case ProviderOllama:
		var opts []OllamaOption
		if cfg.Model != "" {
			opts = append(opts, WithOllamaModel(cfg.Model))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, WithOllamaMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			opts = append(opts, WithOllamaTemperature(cfg.Temperature))
		}
		return NewOllamaProvider(cfg.BaseURL, opts...)

	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// Names returns the provider identifiers in chain order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name() + "/" + p.Model()
	}
	return names
}

// Stream runs the fallback chain for the prompt. Fragments are forwarded in
// the order the serving provider produced them, tagged with that provider's
// name and model. The returned channel always ends with a Done or Err chunk
// before closing.
func (c *Chain) Stream(ctx context.Context, prompt Prompt) (<-chan Chunk, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProviders
	}
	out := make(chan Chunk, 64)
	go c.run(ctx, prompt, out)
	return out, nil
}

func (c *Chain) run(ctx context.Context, prompt Prompt, out chan<- Chunk) {
	defer close(out)

	session := uuid.NewString()
	emitted := false
	var lastErr error

	for _, p := range c.providers {
		// A cancelled caller gets no further attempts.
		if err := ctx.Err(); err != nil {
			out <- Chunk{Err: err}
			return
		}

		terminal, err := c.attempt(ctx, session, p, prompt, out, &emitted)
		if terminal {
			return
		}
		if err != nil {
			lastErr = err
		}
	}

	log.Warn().Str("session", session).Err(lastErr).
		Msg("model chain exhausted without emitting")
	out <- Chunk{Err: fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)}
}

// attempt runs one provider. It returns terminal=true when the session is
// over (completed, failed mid-narrative, or cancelled) and false when the
// chain should advance to the next provider.
func (c *Chain) attempt(ctx context.Context, session string, p Provider, prompt Prompt, out chan<- Chunk, emitted *bool) (bool, error) {
	// Abandoning a provider must release its upstream connection.
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	upstream, err := p.Stream(attemptCtx, prompt)
	if err != nil {
		log.Warn().Str("session", session).Str("provider", p.Name()).Str("model", p.Model()).
			Err(err).Msg("model provider refused stream, trying next")
		return false, err
	}

	for chunk := range upstream {
		if chunk.Err != nil {
			if *emitted {
				log.Error().Str("session", session).Str("provider", p.Name()).Err(chunk.Err).
					Msg("model provider failed mid-stream")
				out <- Chunk{Provider: p.Name(), Model: p.Model(), Err: chunk.Err}
				return true, chunk.Err
			}
			log.Warn().Str("session", session).Str("provider", p.Name()).Err(chunk.Err).
				Msg("model provider failed before emitting, trying next")
			return false, chunk.Err
		}

		if chunk.Text != "" {
			*emitted = true
			out <- Chunk{Text: chunk.Text, Provider: p.Name(), Model: p.Model()}
		}

		if chunk.Done {
			if *emitted {
				out <- Chunk{Provider: p.Name(), Model: p.Model(), Done: true}
				return true, nil
			}
			return false, fmt.Errorf("%s completed without emitting any text", p.Name())
		}
	}

	// Channel closed without a Done or Err marker.
	err = fmt.Errorf("%s stream ended unexpectedly", p.Name())
	if *emitted {
		out <- Chunk{Provider: p.Name(), Model: p.Model(), Err: err}
		return true, err
	}
	return false, err
}

// HealthCheck pings every provider in the chain concurrently and returns
// their status keyed by "name/model".
func (c *Chain) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error, len(c.providers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range c.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := p.Ping(pingCtx)
			mu.Lock()
			results[p.Name()+"/"+p.Model()] = err
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	return results
}
