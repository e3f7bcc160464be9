package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// Generator is the text generation collaborator contract. Retry and provider
// fallback live behind the implementation, not in the core.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Environment variables consulted by NewFromEnv
const (
	EnvBaseURL = "RAGINDEX_LLM_BASE_URL"
	EnvModel   = "RAGINDEX_LLM_MODEL"
	EnvAPIKey  = "RAGINDEX_LLM_API_KEY"

	defaultBaseURL = "http://localhost:11434/v1"
	defaultModel   = "llama3.1"
)

// HTTPGenerator calls an OpenAI-compatible chat completions endpoint. The
// default base URL points at a local Ollama instance.
type HTTPGenerator struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// Config for an explicit generator.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// New creates a generator with explicit configuration.
func New(cfg Config) *HTTPGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewFromEnv creates a generator from environment variables.
func NewFromEnv() *HTTPGenerator {
	return New(Config{
		BaseURL: os.Getenv(EnvBaseURL),
		Model:   os.Getenv(EnvModel),
		APIKey:  os.Getenv(EnvAPIKey),
	})
}

// Generate produces a completion for the prompt. Errors wrap
// types.ErrGeneration.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", types.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrGeneration, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", types.ErrGeneration, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", types.ErrGeneration, err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", types.ErrGeneration)
	}

	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}
