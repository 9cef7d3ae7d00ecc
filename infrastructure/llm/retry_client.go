package llm

import (
	"context"
	"errors"
	"time"

	"github.com/visably/optimo/internal/ports"
)

var _ ports.LLMClient = (*RetryClient)(nil)

// retryBaseDelay seeds the exponential backoff between attempts.
const retryBaseDelay = 500 * time.Millisecond

// RetryClient wraps a ports.LLMClient with retries on transient failures.
// Non-retryable errors (authentication, invalid response, bad request)
// surface immediately. Backoff doubles per attempt unless the provider
// supplied a retry-after hint.
type RetryClient struct {
	inner      ports.LLMClient
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetryClient wraps the client with a retry budget of maxRetries
// additional attempts after the first.
func NewRetryClient(inner ports.LLMClient, maxRetries int) *RetryClient {
	return &RetryClient{
		inner:      inner,
		maxRetries: maxRetries,
		sleep:      sleepContext,
	}
}

// Complete implements ports.LLMClient with retries.
func (c *RetryClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(lastErr, attempt)); err != nil {
				return "", err
			}
		}

		reply, err := c.inner.Complete(ctx, prompt, options)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var llmErr *ports.LLMError
		if !errors.As(err, &llmErr) || !llmErr.IsRetryable() {
			return "", err
		}
	}
	return "", lastErr
}

// GetModel implements ports.LLMClient.
func (c *RetryClient) GetModel() string { return c.inner.GetModel() }

// backoff returns the wait before the given attempt, honoring a provider
// retry-after hint when present.
func (c *RetryClient) backoff(lastErr error, attempt int) time.Duration {
	var llmErr *ports.LLMError
	if errors.As(lastErr, &llmErr) && llmErr.RetryAfter != nil {
		return *llmErr.RetryAfter
	}
	return retryBaseDelay << (attempt - 1)
}

// sleepContext waits for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
