package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/visably/optimo/internal/ports"
)

// GoogleDefaultModel is the default model for the Google provider.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

var _ ports.LLMClient = (*googleProvider)(nil)

// googleProvider implements ports.LLMClient against Google's Gemini API.
type googleProvider struct {
	client *genai.Client
	model  string
}

// newGoogleProvider creates a Google Gemini provider from the client
// config.
func newGoogleProvider(config ClientConfig) (ports.LLMClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("google API key cannot be empty")
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{client: client, model: model}, nil
}

// Complete implements ports.LLMClient.
func (p *googleProvider) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	options := parseRequestOptions(opts, p.model)

	// Gemini has no separate system role; prepend the system prompt.
	finalPrompt := prompt
	if options.system != "" {
		finalPrompt = fmt.Sprintf("System: %s\n\nUser: %s", options.system, prompt)
	}
	contents := []*genai.Content{
		genai.NewContentFromText(finalPrompt, genai.RoleUser),
	}

	genConfig := &genai.GenerateContentConfig{}
	if options.temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*options.temperature))
	}
	if options.maxTokens > 0 && options.maxTokens <= math.MaxInt32 {
		genConfig.MaxOutputTokens = int32(options.maxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, options.model, contents, genConfig)
	if err != nil {
		return "", p.handleError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", ports.NewLLMError(p.model, "complete",
			fmt.Errorf("%w: empty generation", ports.ErrInvalidResponse))
	}
	return text, nil
}

// GetModel implements ports.LLMClient.
func (p *googleProvider) GetModel() string { return p.model }

// handleError classifies Google API errors onto the shared sentinels.
func (p *googleProvider) handleError(err error) error {
	if isContextError(err) {
		return classifyContextError(p.model, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return classifyHTTPError(p.model, apiErr.Code, message, err)
	}
	return ports.NewLLMError(p.model, "complete", err)
}
