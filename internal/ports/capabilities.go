package ports

import (
	"context"
	"time"

	"github.com/visably/optimo/internal/domain"
)

// ScoreInput is the content handed to the external scoring function. The
// engine never inspects it beyond passing it through to both sides of a
// paired comparison.
type ScoreInput struct {
	// URL identifies the scored page, when applicable.
	URL string `json:"url,omitempty"`

	// Content is the extracted page text or fragment under evaluation.
	Content string `json:"content"`
}

// ScoreFunc is the scoring capability supplied by the surrounding
// content-analysis engine. Given an algorithm type, an input, and a weight
// vector it produces a 0-100 score. Implementations must be safe for
// concurrent use.
type ScoreFunc func(ctx context.Context, t domain.AlgorithmType, input ScoreInput, weights domain.Weights) (float64, error)

// ResponseEvaluator scores the quality of a generated response. The engine
// defines only the contract: a composite 0-100 score plus three 0-100
// sub-scores. Implementations range from deterministic heuristics to LLM
// judges.
type ResponseEvaluator interface {
	// Evaluate scores the response against the conversation context.
	Evaluate(ctx context.Context, agent domain.AgentType, response, evalContext string) (domain.RewardScore, error)
}

// LLMClient is the minimal completion interface the judge evaluator needs
// from a language-model provider.
type LLMClient interface {
	// Complete sends a completion request and returns the generated text.
	// The options map carries provider-specific parameters such as
	// "temperature" (float64) and "max_tokens" (int).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// GetModel returns the model identifier used by this client, for
	// logging and metric labels.
	GetModel() string
}

// Clock supplies the current time. The reward pipeline buckets daily
// metrics through this interface so tests can pin the day boundary.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations integrate with observability platforms such as Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)
}

// NopMetrics is a MetricsCollector that discards every observation. It keeps
// optional observability out of nil checks in the hot path.
type NopMetrics struct{}

// RecordLatency implements MetricsCollector.
func (NopMetrics) RecordLatency(string, time.Duration, map[string]string) {}

// RecordCounter implements MetricsCollector.
func (NopMetrics) RecordCounter(string, float64, map[string]string) {}

// RecordGauge implements MetricsCollector.
func (NopMetrics) RecordGauge(string, float64, map[string]string) {}
