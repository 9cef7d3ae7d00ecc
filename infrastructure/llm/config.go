// Package llm provides ports.LLMClient implementations backed by the
// OpenAI, Anthropic, and Google Gemini APIs, behind a provider registry and
// a shared retry wrapper.
package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Shared request defaults and bounds.
const (
	// DefaultMaxTokens caps completion length when the caller passes none.
	DefaultMaxTokens = 1024

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the retry budget for transient provider errors.
	DefaultMaxRetries = 3
)

// ClientConfig carries the settings needed to construct a provider client.
type ClientConfig struct {
	// Provider selects the registered provider factory, e.g. "openai".
	Provider string `yaml:"provider" validate:"required"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key" validate:"required"`

	// Model overrides the provider's default model when non-empty.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint, for proxies and test
	// doubles. Must be http or https when set.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single request. Zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the retry budget for transient errors. Zero means
	// DefaultMaxRetries; negative disables retries.
	MaxRetries int `yaml:"max_retries"`
}

// validateBaseURL checks that an endpoint override is an absolute http(s)
// URL.
func validateBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL must include a host")
	}
	return raw, nil
}

// requestOptions is the normalized view of the per-call options map.
type requestOptions struct {
	model       string
	maxTokens   int
	temperature *float64
	system      string
}

// parseRequestOptions extracts the supported options with defaults applied.
// Unknown keys are ignored so providers can share one options map.
func parseRequestOptions(opts map[string]any, defaultModel string) requestOptions {
	options := requestOptions{
		model:     defaultModel,
		maxTokens: DefaultMaxTokens,
	}
	if opts == nil {
		return options
	}

	if model, ok := opts["model"].(string); ok && model != "" {
		options.model = model
	}
	if maxTokens, ok := opts["max_tokens"].(int); ok && maxTokens > 0 {
		options.maxTokens = maxTokens
	}
	if system, ok := opts["system"].(string); ok {
		options.system = system
	}
	if temp, ok := opts["temperature"].(float64); ok {
		clamped := clampFloat64(temp, 0.0, 2.0)
		options.temperature = &clamped
	}
	return options
}

// clampFloat64 restricts a value to the given range.
func clampFloat64(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
