package domain

import "time"

// Performance holds the accrued quality statistics for one algorithm
// version. Fields are merged in place as new test results arrive; merging is
// last-writer-wins per field with no aggregation at this layer.
type Performance struct {
	// AvgAccuracy is the mean agreement with confirmed outcomes, 0-1.
	AvgAccuracy float64 `json:"avg_accuracy"`

	// AvgError is the mean absolute error against confirmed outcomes.
	AvgError float64 `json:"avg_error"`

	// ImprovementRate is the relative error reduction measured when this
	// version was learned, clamped to [-1, 1].
	ImprovementRate float64 `json:"improvement_rate"`
}

// PerformanceUpdate carries a partial stats merge. Nil fields are left
// untouched on the stored record.
type PerformanceUpdate struct {
	AvgAccuracy     *float64
	AvgError        *float64
	ImprovementRate *float64
}

// Empty reports whether the update carries no fields.
func (u PerformanceUpdate) Empty() bool {
	return u.AvgAccuracy == nil && u.AvgError == nil && u.ImprovementRate == nil
}

// Apply merges the update into p, field by field.
func (u PerformanceUpdate) Apply(p *Performance) {
	if u.AvgAccuracy != nil {
		p.AvgAccuracy = *u.AvgAccuracy
	}
	if u.AvgError != nil {
		p.AvgError = *u.AvgError
	}
	if u.ImprovementRate != nil {
		p.ImprovementRate = *u.ImprovementRate
	}
}

// AlgorithmVersion identifies one scoring variant of an algorithm type.
//
// Invariant: at most one version per algorithm type has IsActive set at any
// time. Promotion atomically deactivates the prior active version; there is
// no window with zero or two active rows. Versions are never deleted, only
// superseded.
type AlgorithmVersion struct {
	// ID uniquely identifies this version (UUID).
	ID string `json:"id"`

	// Type is the algorithm type this version belongs to.
	Type AlgorithmType `json:"algorithm_type"`

	// Version is the monotonically increasing number within the type,
	// starting at 1 with no gaps or reuse.
	Version int `json:"version"`

	// Weights is the factor-name to coefficient mapping used by the
	// external scoring function.
	Weights Weights `json:"weights"`

	// IsActive marks the single version serving live scoring requests
	// for this type.
	IsActive bool `json:"is_active"`

	// ResearchBased is true only for versions produced by applying a
	// research finding; learner-derived versions carry false.
	ResearchBased bool `json:"research_based"`

	// Performance accrues quality stats as test results arrive.
	Performance Performance `json:"performance"`

	// CreatedAt records when the version was created.
	CreatedAt time.Time `json:"created_at"`
}

// ResearchFinding is an external knowledge input that may be folded into a
// new algorithm version. A finding transitions applied=false to true exactly
// once; AppliedVersionID is a weak back-reference into the version history
// and the finding does not own the version it produced.
type ResearchFinding struct {
	// ID uniquely identifies this finding (UUID).
	ID string `json:"id"`

	// Title summarizes the finding.
	Title string `json:"title"`

	// Source records where the finding came from.
	Source string `json:"source"`

	// Type is the algorithm type the finding suggests adjusting.
	Type AlgorithmType `json:"suggested_algorithm_type"`

	// WeightDelta is the suggested per-factor additive adjustment.
	// May be empty when the finding carries no concrete suggestion.
	WeightDelta Weights `json:"suggested_weight_delta,omitempty"`

	// Applied is true once the finding has been folded into a version.
	Applied bool `json:"applied"`

	// AppliedAt records when the finding was applied.
	AppliedAt *time.Time `json:"applied_at,omitempty"`

	// AppliedVersionID points at the version the application produced.
	AppliedVersionID string `json:"applied_version_id,omitempty"`

	// CreatedAt records when the finding was ingested.
	CreatedAt time.Time `json:"created_at"`
}
