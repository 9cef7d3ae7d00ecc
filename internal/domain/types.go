// Package domain contains the pure entities of the optimization engine:
// algorithm versions and their weight vectors, research findings, paired
// comparison records, prompt templates, and reward events. The package has
// no dependencies on storage or transport and is safe to share across layers.
package domain

import (
	"math"
	"sort"
)

// AlgorithmType identifies one of the fixed scoring categories the product
// evaluates content against. Each type carries its own independent version
// history and exactly one active version at a time.
type AlgorithmType string

// The four scoring dimensions served by the engine.
const (
	// AlgorithmSEO scores classic search-engine discoverability factors.
	AlgorithmSEO AlgorithmType = "seo"

	// AlgorithmGEO scores generative-engine (AI search) discoverability.
	AlgorithmGEO AlgorithmType = "geo"

	// AlgorithmStructure scores document structure and machine readability.
	AlgorithmStructure AlgorithmType = "structure"

	// AlgorithmFreshness scores content recency and update signals.
	AlgorithmFreshness AlgorithmType = "freshness"
)

// AlgorithmTypes lists every supported algorithm type in serving order.
// The learning trigger iterates this slice when running periodic cycles.
func AlgorithmTypes() []AlgorithmType {
	return []AlgorithmType{AlgorithmSEO, AlgorithmGEO, AlgorithmStructure, AlgorithmFreshness}
}

// Valid reports whether t is one of the supported algorithm types.
func (t AlgorithmType) Valid() bool {
	switch t {
	case AlgorithmSEO, AlgorithmGEO, AlgorithmStructure, AlgorithmFreshness:
		return true
	}
	return false
}

// AgentType identifies which generation agent produced a span or reward.
type AgentType string

// Supported agent types for the reward pipeline.
const (
	// AgentChat is the conversational assistant agent.
	AgentChat AgentType = "chat"

	// AgentContentRevision is the content rewriting agent.
	AgentContentRevision AgentType = "content_revision"

	// AgentSuggestions is the improvement-suggestion agent.
	AgentSuggestions AgentType = "suggestions"
)

// AgentTypes lists every supported agent type.
func AgentTypes() []AgentType {
	return []AgentType{AgentChat, AgentContentRevision, AgentSuggestions}
}

// Valid reports whether a is one of the supported agent types.
func (a AgentType) Valid() bool {
	switch a {
	case AgentChat, AgentContentRevision, AgentSuggestions:
		return true
	}
	return false
}

// SpanType distinguishes the two halves of an agent interaction.
type SpanType string

const (
	// SpanPrompt marks the prompt-emission half of an interaction.
	SpanPrompt SpanType = "prompt"

	// SpanResponse marks the response-emission half. Reward fields are
	// populated only on response spans, after evaluation.
	SpanResponse SpanType = "response"
)

// Valid reports whether s is a known span type.
func (s SpanType) Valid() bool { return s == SpanPrompt || s == SpanResponse }

// Weights is a named mapping from scoring-factor name to numeric coefficient.
// Map iteration order is not stable in Go, so all order-sensitive consumers
// must go through Factors.
type Weights map[string]float64

// Factors returns the factor names in sorted order. Learning and
// serialization iterate factors through this method so results are
// reproducible across runs.
func (w Weights) Factors() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the weight vector.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for name, coeff := range w {
		out[name] = coeff
	}
	return out
}

// Sum returns the total of all coefficients.
func (w Weights) Sum() float64 {
	var sum float64
	for _, coeff := range w {
		sum += coeff
	}
	return sum
}

// Validate checks that the vector is non-empty, factor names are non-empty,
// and every coefficient is a finite number.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return NewValidationError("weights", "must contain at least one factor")
	}
	for name, coeff := range w {
		if name == "" {
			return NewValidationError("weights", "factor name must not be empty")
		}
		if math.IsNaN(coeff) || math.IsInf(coeff, 0) {
			return NewValidationError("weights", "coefficient for "+name+" must be finite")
		}
	}
	return nil
}
