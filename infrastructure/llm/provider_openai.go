package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/visably/optimo/internal/ports"
)

// OpenAIDefaultModel is the default model for the OpenAI provider.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

var _ ports.LLMClient = (*openAIProvider)(nil)

// openAIProvider implements ports.LLMClient against OpenAI's chat
// completion API.
type openAIProvider struct {
	client *openai.Client
	model  string
}

// newOpenAIProvider creates an OpenAI provider from the client config.
func newOpenAIProvider(config ClientConfig) (ports.LLMClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key cannot be empty")
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		validated, err := validateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		clientConfig.BaseURL = validated
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &openAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Complete implements ports.LLMClient.
func (p *openAIProvider) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	options := parseRequestOptions(opts, p.model)

	req := openai.ChatCompletionRequest{
		Model:     options.model,
		MaxTokens: options.maxTokens,
		Messages:  buildOpenAIMessages(prompt, options),
	}
	if options.temperature != nil {
		req.Temperature = float32(*options.temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ports.NewLLMError(p.model, "complete",
			fmt.Errorf("%w: no choices returned", ports.ErrInvalidResponse))
	}
	return resp.Choices[0].Message.Content, nil
}

// GetModel implements ports.LLMClient.
func (p *openAIProvider) GetModel() string { return p.model }

// buildOpenAIMessages assembles the chat messages, with an optional system
// prompt ahead of the user prompt.
func buildOpenAIMessages(prompt string, options requestOptions) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if options.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.system,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// handleError classifies OpenAI SDK errors onto the shared sentinels.
func (p *openAIProvider) handleError(err error) error {
	if isContextError(err) {
		return classifyContextError(p.model, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return classifyHTTPError(p.model, apiErr.HTTPStatusCode, message, err)
	}
	return ports.NewLLMError(p.model, "complete", err)
}
