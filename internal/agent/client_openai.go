package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// OpenAIClient implements Client against the OpenAI chat-completions API or
// any compatible server reachable through BaseURL.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	model        string
	organization string
	httpClient   *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	Timeout      time.Duration
}

// NewOpenAIClientFromEnv reads the API key from the named environment
// variable and builds a client.
func NewOpenAIClientFromEnv(apiKeyEnv, model, baseURL, organization string) (*OpenAIClient, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("reading OpenAI api key from %s: variable is empty or unset", apiKeyEnv)
	}
	return NewOpenAIClient(OpenAIConfig{
		APIKey:       apiKey,
		BaseURL:      baseURL,
		Model:        model,
		Organization: organization,
	}), nil
}

// NewOpenAIClient builds a client, filling in endpoint and timeout defaults.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	return &OpenAIClient{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		model:        config.Model,
		organization: config.Organization,
		httpClient:   &http.Client{Timeout: config.Timeout},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat map[string]any  `json:"response_format"`
	Messages       []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a prompt and returns the raw completion text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	// Rate limiting: keep at least 100ms between requests.
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := openAIRequest{
		Model:          c.model,
		Temperature:    0.2,
		ResponseFormat: map[string]any{"type": "json_object"},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are TelosOps agent executing a ReAct loop. Always answer with valid JSON."},
			{Role: "user", Content: prompt},
		},
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request to OpenAI: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading OpenAI response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenAI returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing OpenAI response body: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("missing message content in OpenAI response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Identity() Identity {
	return Identity{Provider: "openai", Model: c.model}
}
