package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/visably/optimo/internal/ports"
)

// AnthropicDefaultModel is the default model for the Anthropic provider.
const AnthropicDefaultModel = "claude-3-5-sonnet-20241022"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

var _ ports.LLMClient = (*anthropicProvider)(nil)

// anthropicProvider implements ports.LLMClient against Anthropic's
// messages API.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

// newAnthropicProvider creates an Anthropic provider from the client
// config.
func newAnthropicProvider(config ClientConfig) (ports.LLMClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key cannot be empty")
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		validated, err := validateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(validated))
	}

	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Complete implements ports.LLMClient.
func (p *anthropicProvider) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	options := parseRequestOptions(opts, p.model)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.model),
		MaxTokens: int64(options.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if options.temperature != nil {
		// Anthropic caps temperature at 1.0.
		params.Temperature = anthropic.Float(clampFloat64(*options.temperature, 0.0, 1.0))
	}
	if options.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: options.system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.handleError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return "", ports.NewLLMError(p.model, "complete",
			fmt.Errorf("%w: empty message content", ports.ErrInvalidResponse))
	}
	return text.String(), nil
}

// GetModel implements ports.LLMClient.
func (p *anthropicProvider) GetModel() string { return p.model }

// handleError classifies Anthropic SDK errors onto the shared sentinels.
func (p *anthropicProvider) handleError(err error) error {
	if isContextError(err) {
		return classifyContextError(p.model, err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyHTTPError(p.model, apiErr.StatusCode, "anthropic API error", err)
	}
	return ports.NewLLMError(p.model, "complete", err)
}
