package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiClient generates text through the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	if model == "" {
		model = geminiDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	temperature := float32(0.7)
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini API returned no content")
	}
	return text, nil
}
