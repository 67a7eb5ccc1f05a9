package llm

import (
	"context"
	"strings"
	"sync"
)

// Canned replies used when Response is empty.
const (
	MockConsequenceResponse = `{"narrative":"The situation continues to unfold as others react to your decision.","fluents_initiated":[],"fluents_terminated":[]}`
	MockAnalysisResponse    = "Your choices show how competing obligations pull against each other in this case.\n\n" +
		"Where you matched the board, you gave weight to the same duties it did. Where you diverged, the board weighed those duties differently."
)

// MockClient is a configurable LLM client for testing.
// Responses are consumed in order; once exhausted, Response is returned, or
// the canned reply for the kind of prompt when Response is empty.
type MockClient struct {
	mu sync.Mutex

	Response  string
	Responses []string
	Err       error

	// Call tracking for assertions
	Prompts []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Prompts = append(c.Prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Err != nil {
		return "", c.Err
	}
	if len(c.Responses) > 0 {
		next := c.Responses[0]
		c.Responses = c.Responses[1:]
		return next, nil
	}
	if c.Response != "" {
		return c.Response, nil
	}
	if strings.HasPrefix(prompt, analysisPromptHeader) {
		return MockAnalysisResponse, nil
	}
	return MockConsequenceResponse, nil
}

// Calls returns how many completions were requested.
func (c *MockClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Prompts)
}

// Reset clears recorded calls and restores the canned replies.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = ""
	c.Responses = nil
	c.Err = nil
	c.Prompts = nil
}
