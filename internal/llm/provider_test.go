package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider string
		apiKey   string
		wantErr  bool
	}{
		{ProviderOpenAI, "sk-test", false},
		{ProviderOpenAI, "", true},
		{ProviderAnthropic, "key", false},
		{ProviderAnthropic, "", true},
		{ProviderCerebras, "key", false},
		{ProviderGemini, "", true},
		{ProviderMock, "", false},
		{"nope", "key", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := NewClient(tt.provider, tt.apiKey, "")
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	m.Responses = []string{"first", "second"}
	ctx := context.Background()

	out, err := m.Complete(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, _ = m.Complete(ctx, "p2", 10)
	assert.Equal(t, "second", out)

	out, _ = m.Complete(ctx, "p3", 10)
	assert.Equal(t, MockConsequenceResponse, out)
	assert.Equal(t, 3, m.Calls())

	out, _ = m.Complete(ctx, AnalysisPrompt("Case", nil, 0, 0), 10)
	assert.Equal(t, MockAnalysisResponse, out)
	_, err = ParseAnalysis(out)
	assert.NoError(t, err)

	m.Response = "fixed"
	out, _ = m.Complete(ctx, AnalysisPrompt("Case", nil, 0, 0), 10)
	assert.Equal(t, "fixed", out)

	m.Err = errors.New("boom")
	_, err = m.Complete(ctx, "p6", 10)
	assert.EqualError(t, err, "boom")

	m.Reset()
	assert.Equal(t, 0, m.Calls())
	assert.NoError(t, m.Err)
}
