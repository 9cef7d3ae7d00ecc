package evaluators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/ports"
)

var _ ports.ResponseEvaluator = (*JudgeEvaluator)(nil)

// Default configuration values for the judge evaluator.
const (
	DefaultJudgeMaxTokens   = 256
	DefaultJudgeTemperature = 0.0
	DefaultJudgeRPS         = 2.0
)

// defaultJudgePrompt asks the model for a strict JSON verdict so parsing
// stays mechanical.
const defaultJudgePrompt = `You are grading the response of a {{.Agent}} assistant that helps ` +
	`website owners improve their content's visibility in AI search engines.

Context of the interaction:
{{.Context}}

Response under evaluation:
{{.Response}}

Grade the response on three axes from 0 to 100:
- relevance: how directly it addresses the context
- accuracy: how factually sound and internally consistent it is
- usefulness: how actionable it is for the website owner

Reply with only a JSON object: {"score": <0-100 composite>, "relevance": <0-100>, "accuracy": <0-100>, "usefulness": <0-100>}`

// JudgeEvaluator scores responses with a language model. Calls are rate
// limited, and any judge failure degrades to the configured fallback
// evaluator so the reward pipeline never stalls on a provider outage.
type JudgeEvaluator struct {
	client   ports.LLMClient
	fallback ports.ResponseEvaluator
	config   JudgeConfig
	tmpl     *template.Template
	limiter  *rate.Limiter
	logger   *zap.Logger
	tracer   trace.Tracer
}

// JudgeConfig defines the configuration parameters for the JudgeEvaluator.
type JudgeConfig struct {
	// JudgePrompt is the Go template used to build the grading prompt.
	// It receives {{.Agent}}, {{.Context}}, and {{.Response}}.
	JudgePrompt string `yaml:"judge_prompt" json:"judge_prompt" validate:"required,min=20"`

	// Temperature controls randomness in the judge's scoring (0.0-1.0).
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	// MaxTokens limits the judge's reply length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=50,max=2000"`

	// RequestsPerSecond caps the call rate against the provider.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gt=0,lte=100"`
}

// DefaultJudgeConfig returns a JudgeConfig with sensible defaults.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{
		JudgePrompt:       defaultJudgePrompt,
		Temperature:       DefaultJudgeTemperature,
		MaxTokens:         DefaultJudgeMaxTokens,
		RequestsPerSecond: DefaultJudgeRPS,
	}
}

// judgeVerdict is the JSON shape the judge prompt demands.
type judgeVerdict struct {
	Score      float64 `json:"score"`
	Relevance  float64 `json:"relevance"`
	Accuracy   float64 `json:"accuracy"`
	Usefulness float64 `json:"usefulness"`
}

// promptData carries the template substitution values.
type promptData struct {
	Agent    string
	Context  string
	Response string
}

// NewJudgeEvaluator creates a JudgeEvaluator. The client and fallback are
// required; a nil logger defaults to a no-op logger. Returns an error if
// configuration validation or template compilation fails.
func NewJudgeEvaluator(
	client ports.LLMClient,
	fallback ports.ResponseEvaluator,
	config JudgeConfig,
	logger *zap.Logger,
) (*JudgeEvaluator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client must not be nil")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback evaluator must not be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	tmpl, err := template.New("judge_prompt").Parse(config.JudgePrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse judge prompt template: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JudgeEvaluator{
		client:   client,
		fallback: fallback,
		config:   config,
		tmpl:     tmpl,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:   logger,
		tracer:   otel.Tracer("judge-evaluator"),
	}, nil
}

// Evaluate grades the response through the judge model, falling back to
// the deterministic evaluator when the call or the verdict parsing fails.
func (j *JudgeEvaluator) Evaluate(
	ctx context.Context, agent domain.AgentType, response, evalContext string,
) (domain.RewardScore, error) {
	ctx, span := j.tracer.Start(ctx, "JudgeEvaluator.Evaluate",
		trace.WithAttributes(
			attribute.String("evaluator.type", "llm_judge"),
			attribute.String("agent", string(agent)),
			attribute.String("llm.model", j.client.GetModel()),
		),
	)
	defer span.End()

	if err := j.limiter.Wait(ctx); err != nil {
		return domain.RewardScore{}, err
	}

	var prompt strings.Builder
	if err := j.tmpl.Execute(&prompt, promptData{
		Agent:    string(agent),
		Context:  evalContext,
		Response: response,
	}); err != nil {
		return domain.RewardScore{}, fmt.Errorf("failed to render judge prompt: %w", err)
	}

	reply, err := j.client.Complete(ctx, prompt.String(), map[string]any{
		"temperature": j.config.Temperature,
		"max_tokens":  j.config.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		j.logger.Warn("judge call failed, falling back to heuristic",
			zap.String("model", j.client.GetModel()), zap.Error(err))
		return j.fallback.Evaluate(ctx, agent, response, evalContext)
	}

	verdict, err := parseVerdict(reply)
	if err != nil {
		span.RecordError(err)
		j.logger.Warn("judge verdict unparseable, falling back to heuristic",
			zap.String("model", j.client.GetModel()), zap.Error(err))
		return j.fallback.Evaluate(ctx, agent, response, evalContext)
	}

	score := domain.RewardScore(verdict)
	span.SetAttributes(attribute.Float64("eval.score", score.Score))
	return score, nil
}

// parseVerdict extracts the JSON verdict from the judge's reply, tolerating
// surrounding prose and markdown code fences, and range-checks every axis.
func parseVerdict(reply string) (judgeVerdict, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return judgeVerdict{}, fmt.Errorf("no JSON object in judge reply")
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &verdict); err != nil {
		return judgeVerdict{}, fmt.Errorf("failed to decode judge verdict: %w", err)
	}

	for _, v := range []float64{verdict.Score, verdict.Relevance, verdict.Accuracy, verdict.Usefulness} {
		if v < 0 || v > 100 {
			return judgeVerdict{}, fmt.Errorf("judge verdict value %.2f outside 0-100", v)
		}
	}
	return verdict, nil
}
