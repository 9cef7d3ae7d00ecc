package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredProviders(t *testing.T) {
	providers := RegisteredProviders()
	assert.Contains(t, providers, "openai")
	assert.Contains(t, providers, "anthropic")
	assert.Contains(t, providers, "google")
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(ClientConfig{Provider: "nonexistent", APIKey: "key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		t.Run(provider, func(t *testing.T) {
			_, err := NewClient(ClientConfig{Provider: provider})
			assert.Error(t, err)
		})
	}
}

func TestNewClient_WrapsWithRetry(t *testing.T) {
	client, err := NewClient(ClientConfig{Provider: "openai", APIKey: "test-key"})
	require.NoError(t, err)
	assert.IsType(t, &RetryClient{}, client)
	assert.Equal(t, OpenAIDefaultModel, client.GetModel())
}

func TestNewClient_NegativeRetriesDisablesWrapper(t *testing.T) {
	client, err := NewClient(ClientConfig{Provider: "openai", APIKey: "test-key", MaxRetries: -1})
	require.NoError(t, err)
	_, isRetry := client.(*RetryClient)
	assert.False(t, isRetry)
}

func TestNewClient_ModelOverride(t *testing.T) {
	client, err := NewClient(ClientConfig{Provider: "openai", APIKey: "test-key", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", client.GetModel())
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https url", url: "https://proxy.internal/v1"},
		{name: "http url", url: "http://localhost:8080"},
		{name: "missing scheme", url: "proxy.internal/v1", wantErr: true},
		{name: "unsupported scheme", url: "ftp://proxy.internal", wantErr: true},
		{name: "no host", url: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateBaseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseRequestOptions(t *testing.T) {
	opts := parseRequestOptions(map[string]any{
		"model":       "custom-model",
		"max_tokens":  512,
		"temperature": 2.7,
		"system":      "you are terse",
	}, "default-model")

	assert.Equal(t, "custom-model", opts.model)
	assert.Equal(t, 512, opts.maxTokens)
	assert.Equal(t, "you are terse", opts.system)
	require.NotNil(t, opts.temperature)
	assert.InDelta(t, 2.0, *opts.temperature, 1e-9)

	defaults := parseRequestOptions(nil, "default-model")
	assert.Equal(t, "default-model", defaults.model)
	assert.Equal(t, DefaultMaxTokens, defaults.maxTokens)
	assert.Nil(t, defaults.temperature)
}
