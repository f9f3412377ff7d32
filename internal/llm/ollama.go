package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider implements Provider for local Ollama instances. Ollama
// streams JSON lines rather than SSE and needs no API key.
type OllamaProvider struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// OllamaOption configures the Ollama provider.
type OllamaOption func(*OllamaProvider)

// WithOllamaModel sets the model.
func WithOllamaModel(model string) OllamaOption {
	return func(p *OllamaProvider) { p.model = model }
}

// WithOllamaMaxTokens sets the prediction token ceiling.
func WithOllamaMaxTokens(n int) OllamaOption {
	return func(p *OllamaProvider) { p.maxTokens = n }
}

// WithOllamaTemperature sets the sampling temperature.
func WithOllamaTemperature(t float64) OllamaOption {
	return func(p *OllamaProvider) { p.temperature = t }
}

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.client = client }
}

// NewOllamaProvider creates an Ollama provider. baseURL is the Ollama server
// URL; empty selects the local default.
func NewOllamaProvider(baseURL string, opts ...OllamaOption) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	p := &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "qwen2.5:7b",
		client:  &http.Client{Timeout: 300 * time.Second}, // local models are slow
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *OllamaProvider) Name() string  { return ProviderOllama }
func (p *OllamaProvider) Model() string { return p.model }

// Ping checks if the Ollama server is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderDown, resp.StatusCode)
	}
	return nil
}

// Stream sends a streaming chat request to the /api/chat endpoint.
func (p *OllamaProvider) Stream(ctx context.Context, prompt Prompt) (<-chan Chunk, error) {
	body := ollamaChatRequest{
		Model:  p.model,
		Stream: true,
	}
	if prompt.System != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: "system", Content: prompt.System})
	}
	body.Messages = append(body.Messages, ollamaMessage{Role: "user", Content: prompt.User})

	if p.temperature > 0 || p.maxTokens > 0 {
		body.Options = &ollamaOptions{
			Temperature: p.temperature,
			NumPredict:  p.maxTokens,
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderDown, err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	ch := make(chan Chunk, 64)
	go p.readStream(resp.Body, ch)
	return ch, nil
}

// ── Internal Types ──

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// ── Helpers ──

func (p *OllamaProvider) readStream(body io.ReadCloser, ch chan<- Chunk) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	// Ollama may return large lines; increase buffer
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var chunk ollamaChatResponse
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			ch <- Chunk{Err: fmt.Errorf("ollama: stream parse: %w", err)}
			return
		}
		if chunk.Error != "" {
			ch <- Chunk{Err: fmt.Errorf("ollama: %s", chunk.Error)}
			return
		}

		ch <- Chunk{Text: chunk.Message.Content, Done: chunk.Done}
		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		ch <- Chunk{Err: fmt.Errorf("ollama: stream read: %w", err)}
	}
}
