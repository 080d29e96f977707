package agent

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClientFromEnv reads the API key from the named environment
// variable and builds a Gemini client.
func NewGeminiClientFromEnv(ctx context.Context, apiKeyEnv, model string) (*GeminiClient, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("reading Gemini api key from %s: variable is empty or unset", apiKeyEnv)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Complete sends a prompt and returns the raw JSON completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			SystemInstruction: genai.NewContentFromText(
				"You are TelosOps agent executing a ReAct loop. Always answer with valid JSON.",
				genai.RoleUser),
		},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("no candidates returned")
	}
	return text, nil
}

func (c *GeminiClient) Identity() Identity {
	return Identity{Provider: "gemini", Model: c.model}
}
