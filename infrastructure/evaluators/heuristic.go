// Package evaluators provides ResponseEvaluator implementations, from
// deterministic heuristics to LLM judges.
package evaluators

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/ports"
)

var (
	_ ports.ResponseEvaluator = (*HeuristicEvaluator)(nil)

	validate = validator.New()

	// foldCaser is a package-level Unicode case folder so token comparison
	// does not allocate a caser per call.
	foldCaser = cases.Fold()
)

// minTermLength filters stopword-sized tokens out of the overlap check.
const minTermLength = 4

// HeuristicEvaluator scores responses deterministically, without an LLM.
// Relevance comes from fuzzy term overlap with the evaluation context,
// accuracy from lexical diversity, and usefulness from length and structure.
// Deterministic scoring keeps the reward signal available when no judge
// model is configured and serves as the fallback when one fails.
//
// The evaluator is stateless and safe for concurrent use.
type HeuristicEvaluator struct {
	config HeuristicConfig
	tracer trace.Tracer
}

// HeuristicConfig defines the tuning knobs for the heuristic evaluator.
type HeuristicConfig struct {
	// TargetLength is the response length, in runes, at which the length
	// component of the usefulness score saturates.
	TargetLength int `yaml:"target_length" json:"target_length" validate:"min=50,max=100000"`

	// FuzzyThreshold is the minimum Levenshtein similarity (0.0-1.0) for a
	// context term to count as present in the response.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold" validate:"min=0.0,max=1.0"`
}

// DefaultHeuristicConfig returns a HeuristicConfig with sensible defaults.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		TargetLength:   600,
		FuzzyThreshold: 0.8,
	}
}

// NewHeuristicEvaluator creates a HeuristicEvaluator with the given
// configuration. Returns an error if configuration validation fails.
func NewHeuristicEvaluator(config HeuristicConfig) (*HeuristicEvaluator, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &HeuristicEvaluator{
		config: config,
		tracer: otel.Tracer("heuristic-evaluator"),
	}, nil
}

// Evaluate scores the response against the evaluation context. An empty
// response scores zero on every axis.
func (h *HeuristicEvaluator) Evaluate(
	ctx context.Context, agent domain.AgentType, response, evalContext string,
) (domain.RewardScore, error) {
	_, span := h.tracer.Start(ctx, "HeuristicEvaluator.Evaluate",
		trace.WithAttributes(
			attribute.String("evaluator.type", "heuristic"),
			attribute.String("agent", string(agent)),
		),
	)
	defer span.End()

	if strings.TrimSpace(response) == "" {
		span.SetAttributes(attribute.Float64("eval.score", 0))
		return domain.RewardScore{}, nil
	}

	relevance := h.relevanceScore(response, evalContext)
	accuracy := diversityScore(response)
	usefulness := h.usefulnessScore(response)

	score := domain.RewardScore{
		Score:      0.4*relevance + 0.3*accuracy + 0.3*usefulness,
		Relevance:  relevance,
		Accuracy:   accuracy,
		Usefulness: usefulness,
	}

	span.SetAttributes(
		attribute.Float64("eval.score", score.Score),
		attribute.Bool("no_llm_cost", true),
	)
	return score, nil
}

// relevanceScore measures what fraction of the context's significant terms
// appear in the response, exactly or within the fuzzy threshold. A context
// without significant terms yields a neutral midpoint score.
func (h *HeuristicEvaluator) relevanceScore(response, evalContext string) float64 {
	contextTerms := significantTerms(evalContext)
	if len(contextTerms) == 0 {
		return 50
	}

	responseTerms := significantTerms(response)
	matched := 0
	for term := range contextTerms {
		if _, ok := responseTerms[term]; ok {
			matched++
			continue
		}
		for candidate := range responseTerms {
			if similarity(term, candidate) >= h.config.FuzzyThreshold {
				matched++
				break
			}
		}
	}
	return 100 * float64(matched) / float64(len(contextTerms))
}

// usefulnessScore rewards substance and structure: the length component
// ramps linearly up to the target length, and list or multi-paragraph
// formatting earns the remainder.
func (h *HeuristicEvaluator) usefulnessScore(response string) float64 {
	length := utf8.RuneCountInString(response)
	lengthScore := 70 * float64(length) / float64(h.config.TargetLength)
	if lengthScore > 70 {
		lengthScore = 70
	}

	structureScore := 0.0
	if strings.Contains(response, "\n- ") || strings.Contains(response, "\n* ") ||
		strings.Contains(response, "\n1.") {
		structureScore += 15
	}
	if strings.Contains(response, "\n\n") {
		structureScore += 15
	}
	return lengthScore + structureScore
}

// diversityScore penalizes degenerate, repetitive output through the
// distinct-token ratio. Natural prose lands well above the floor; a looping
// generation collapses toward zero.
func diversityScore(response string) float64 {
	tokens := strings.Fields(foldCaser.String(response))
	if len(tokens) == 0 {
		return 0
	}
	distinct := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		distinct[tok] = struct{}{}
	}
	score := 140 * float64(len(distinct)) / float64(len(tokens))
	if score > 100 {
		score = 100
	}
	return score
}

// significantTerms case-folds the text and returns its distinct tokens of
// at least minTermLength runes, with surrounding punctuation trimmed.
func significantTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, tok := range strings.Fields(foldCaser.String(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]{}")
		if utf8.RuneCountInString(tok) >= minTermLength {
			terms[tok] = struct{}{}
		}
	}
	return terms
}

// similarity computes normalized Levenshtein similarity between two
// strings: 1.0 for identical, 0.0 for maximally distant. Rune counts keep
// the normalization consistent with the rune-based distance.
func similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(s1, s2)
	maxLen := utf8.RuneCountInString(s1)
	if n := utf8.RuneCountInString(s2); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	sim := 1.0 - float64(distance)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}
