package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/visably/optimo/internal/ports"
)

// classifyHTTPError maps a provider HTTP status onto the shared error
// sentinels so callers can branch on errors.Is instead of provider codes.
func classifyHTTPError(model string, status int, message string, err error) *ports.LLMError {
	wrapped := fmt.Errorf("%s (status %d): %w", message, status, err)

	var sentinel error
	switch {
	case status == 401 || status == 403:
		sentinel = ports.ErrAuthenticationFailed
	case status == 429:
		sentinel = ports.ErrRateLimited
	case status == 408 || status == 504:
		sentinel = ports.ErrTimeout
	case status >= 500:
		sentinel = ports.ErrServiceUnavailable
	}
	if sentinel != nil {
		wrapped = fmt.Errorf("%w: %w", sentinel, wrapped)
	}

	llmErr := ports.NewLLMError(model, "complete", wrapped)
	if status == 429 {
		retryAfter := time.Second
		llmErr.RetryAfter = &retryAfter
	}
	return llmErr
}

// classifyContextError maps context cancellation and deadline errors onto
// the shared sentinels.
func classifyContextError(model string, err error) *ports.LLMError {
	if errors.Is(err, context.DeadlineExceeded) {
		return ports.NewLLMError(model, "complete",
			fmt.Errorf("%w: %w", ports.ErrTimeout, err))
	}
	return ports.NewLLMError(model, "complete", err)
}

// isContextError reports whether the error stems from the caller's context.
func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
