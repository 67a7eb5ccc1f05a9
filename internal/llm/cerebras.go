package llm

import (
	"context"
	"net/http"
)

const (
	cerebrasAPIURL       = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasDefaultModel = "llama-3.3-70b"
)

type CerebrasClient struct {
	chat chatCompleter
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	if model == "" {
		model = cerebrasDefaultModel
	}
	return &CerebrasClient{chat: chatCompleter{
		name:       "cerebras",
		url:        cerebrasAPIURL,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}}
}

func (c *CerebrasClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.chat.complete(ctx, prompt, maxTokens)
}
