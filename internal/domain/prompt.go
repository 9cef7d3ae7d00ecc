package domain

import (
	"math"
	"time"
)

// PromptTemplate is one candidate prompt for an agent type. Templates are
// never deleted; superseded variants remain as a historical record so past
// responses stay reproducible.
type PromptTemplate struct {
	// ID uniquely identifies this template (UUID).
	ID string `json:"id"`

	// Agent is the agent type the template serves.
	Agent AgentType `json:"agent_type"`

	// Template is the prompt text with parameter placeholders.
	Template string `json:"template"`

	// Version is the monotonically increasing number within the agent
	// type, starting at 1.
	Version int `json:"version"`

	// AvgScore is the running mean of reward scores for responses
	// generated with this template.
	AvgScore float64 `json:"avg_score"`

	// TotalUses counts rewards recorded against this template.
	TotalUses int `json:"total_uses"`

	// SuccessRate is the fraction of rewards at or above the configured
	// success threshold.
	SuccessRate float64 `json:"success_rate"`

	// CreatedAt records when the variant was authored or derived.
	CreatedAt time.Time `json:"created_at"`
}

// FoldReward folds one reward score into the template's running stats:
// TotalUses increments, AvgScore becomes the running mean, and SuccessRate
// the fraction of rewards at or above the threshold. Callers must invoke
// this inside the same store transaction that persists the record so
// concurrent writers cannot lose updates.
func (p *PromptTemplate) FoldReward(score, successThreshold float64) {
	oldCount := float64(p.TotalUses)
	successes := math.Round(p.SuccessRate * oldCount)
	if score >= successThreshold {
		successes++
	}
	p.TotalUses++
	newCount := float64(p.TotalUses)
	p.AvgScore = (p.AvgScore*oldCount + score) / newCount
	p.SuccessRate = successes / newCount
}

// SpanPayload is the schema'd record attached to an emitted span. Keeping a
// fixed shape here means the aggregation logic never branches on ad hoc
// JSON blobs.
type SpanPayload struct {
	// Message is the user-facing message or prompt text for prompt spans.
	Message string `json:"message,omitempty"`

	// Response is the generated text for response spans.
	Response string `json:"response,omitempty"`

	// PromptVersion is the template version used to generate the
	// response, when known.
	PromptVersion int `json:"prompt_version,omitempty"`

	// SessionID correlates the two halves of one interaction.
	SessionID string `json:"session_id,omitempty"`
}

// RewardScore is the composite quality signal assigned to a generated
// response. All fields are on a 0-100 scale.
type RewardScore struct {
	// Score is the composite quality score.
	Score float64 `json:"score"`

	// Relevance measures topical fit with the conversation context.
	Relevance float64 `json:"relevance"`

	// Accuracy measures factual consistency with the provided context.
	Accuracy float64 `json:"accuracy"`

	// Usefulness measures actionability of the response.
	Usefulness float64 `json:"usefulness"`
}

// Valid reports whether every component is within the 0-100 scale.
func (r RewardScore) Valid() bool {
	for _, v := range []float64{r.Score, r.Relevance, r.Accuracy, r.Usefulness} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

// AgentReward is one interaction half recorded for learning. Prompt spans
// carry only the payload; response spans additionally carry the evaluated
// reward once it has been computed.
type AgentReward struct {
	// ID uniquely identifies this record (UUID).
	ID string `json:"id"`

	// Agent is the agent type that produced the span.
	Agent AgentType `json:"agent_type"`

	// Span marks which interaction half this record captures.
	Span SpanType `json:"span_type"`

	// Payload is the message or response content plus light metadata.
	Payload SpanPayload `json:"payload"`

	// Reward holds the evaluated quality scores. Nil on prompt spans and
	// on response spans that have not been evaluated.
	Reward *RewardScore `json:"reward,omitempty"`

	// TemplateID references the PromptTemplate in use, when known.
	TemplateID string `json:"template_id,omitempty"`

	// CreatedAt records when the span was emitted.
	CreatedAt time.Time `json:"created_at"`
}

// LearningMetricDaily is the pre-aggregated rollup for one agent type and
// day. It is derived state, recomputable from AgentReward and
// PromptTemplate rows, and exists to keep dashboard reads cheap.
type LearningMetricDaily struct {
	// Agent is the agent type the bucket covers.
	Agent AgentType `json:"agent_type"`

	// Date is the bucket day in UTC, truncated to midnight.
	Date time.Time `json:"date"`

	// TotalSpans counts rewards folded into the bucket.
	TotalSpans int `json:"total_spans"`

	// AvgReward is the running mean reward score for the day.
	AvgReward float64 `json:"avg_reward"`

	// ImprovementRate is the relative change of AvgReward against the
	// previous day's bucket, clamped to [-1, 1]; zero when no prior
	// bucket exists.
	ImprovementRate float64 `json:"improvement_rate"`

	// BestPromptVersion is the version number of the highest-scoring
	// template with at least the minimum sample size, zero when no
	// template qualifies yet.
	BestPromptVersion int `json:"best_prompt_version"`
}

// FoldReward folds one reward score into the bucket: TotalSpans increments,
// AvgReward becomes the running mean, BestPromptVersion is refreshed, and
// ImprovementRate is recomputed against the previous day's average when one
// is available. Must run inside the store transaction that persists the
// bucket.
func (m *LearningMetricDaily) FoldReward(score float64, previousDayAvg *float64, bestPromptVersion int) {
	oldCount := float64(m.TotalSpans)
	m.TotalSpans++
	m.AvgReward = (m.AvgReward*oldCount + score) / float64(m.TotalSpans)
	m.BestPromptVersion = bestPromptVersion

	m.ImprovementRate = 0
	if previousDayAvg != nil && *previousDayAvg > 0 {
		rate := (m.AvgReward - *previousDayAvg) / *previousDayAvg
		if rate > 1 {
			rate = 1
		}
		if rate < -1 {
			rate = -1
		}
		m.ImprovementRate = rate
	}
}
