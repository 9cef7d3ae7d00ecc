// Package learning implements the pure weight-learning computation: deriving
// adjusted weight vectors from batches of confirmed comparison records, and
// applying bounded research deltas. The package has no side effects and no
// dependencies beyond the domain types.
package learning

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/visably/optimo/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// Config bounds how far a single learning round or research finding can
// move a weight vector. Bounded steps prevent oscillation and runaway
// weights from one noisy batch.
type Config struct {
	// MaxStepRatio caps the per-round relative change of any coefficient
	// during batch learning. 0.1 means a coefficient moves at most 10%
	// per round.
	MaxStepRatio float64 `yaml:"max_step_ratio" validate:"gt=0,lte=0.5"`

	// MaxResearchDeltaRatio caps the relative change a single research
	// finding may apply to a coefficient. Factors the current vector does
	// not carry are bounded against a unit coefficient instead.
	MaxResearchDeltaRatio float64 `yaml:"max_research_delta_ratio" validate:"gt=0,lte=1"`
}

// DefaultConfig returns the production learning bounds: 10% per learning
// round, 20% per research finding.
func DefaultConfig() Config {
	return Config{
		MaxStepRatio:          0.10,
		MaxResearchDeltaRatio: 0.20,
	}
}

// Learner derives new weight vectors from evidence. It is stateless and
// safe for concurrent use.
type Learner struct {
	cfg Config
}

// New creates a Learner with the given bounds.
// Returns an error when the configuration violates its constraints.
func New(cfg Config) (*Learner, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("learner configuration validation failed: %w", err)
	}
	return &Learner{cfg: cfg}, nil
}

// Result carries the outcome of one learning round.
type Result struct {
	// Weights is the adjusted vector. When the batch carries no ground
	// truth it is an unchanged copy of the input.
	Weights domain.Weights

	// ImprovementRate is (old mean error - new predicted mean error) /
	// old mean error over the batch, clamped to [-1, 1]. Zero for empty
	// or truth-less batches.
	ImprovementRate float64
}

// LearnWeights produces an adjusted weight vector from a batch of recent
// comparisons. The prediction under evaluation is ScoreA, the score of the
// version currently serving traffic; tests without a confirmed outcome are
// ignored.
//
// The update rescales the whole vector by the factor that minimizes the
// batch's mean absolute error, clamped to MaxStepRatio per round. Because
// the error as a function of the scale is convex and the clamp keeps the
// step between the identity and the optimum, the predicted error on the
// training batch never exceeds the original error.
func (l *Learner) LearnWeights(current domain.Weights, tests []domain.AlgorithmTest) Result {
	unchanged := Result{Weights: current.Clone(), ImprovementRate: 0}

	samples := make([]sample, 0, len(tests))
	for _, test := range tests {
		if test.ActualScore == nil {
			continue
		}
		samples = append(samples, sample{predicted: test.ScoreA, actual: *test.ActualScore})
	}
	if len(samples) == 0 {
		return unchanged
	}

	var oldErrSum float64
	for _, s := range samples {
		oldErrSum += math.Abs(s.predicted - s.actual)
	}
	oldMAE := oldErrSum / float64(len(samples))
	if oldMAE == 0 {
		// The batch is already predicted perfectly.
		return unchanged
	}

	scale := optimalScale(samples)
	if math.IsNaN(scale) {
		return unchanged
	}
	scale = clamp(scale, 1-l.cfg.MaxStepRatio, 1+l.cfg.MaxStepRatio)

	adjusted := make(domain.Weights, len(current))
	for _, factor := range current.Factors() {
		adjusted[factor] = current[factor] * scale
	}

	var newErrSum float64
	for _, s := range samples {
		newErrSum += math.Abs(s.predicted*scale - s.actual)
	}
	newMAE := newErrSum / float64(len(samples))

	improvement := clamp((oldMAE-newMAE)/oldMAE, -1, 1)
	return Result{Weights: adjusted, ImprovementRate: improvement}
}

// AdjustFromResearch applies a suggested per-factor additive delta, each
// component clamped so one finding cannot swing a coefficient by more than
// MaxResearchDeltaRatio of its current magnitude. Factors absent from the
// current vector are admitted with the delta bounded against a unit
// coefficient. Factors the delta does not mention are untouched.
func (l *Learner) AdjustFromResearch(current, delta domain.Weights) domain.Weights {
	adjusted := current.Clone()
	if adjusted == nil {
		adjusted = make(domain.Weights, len(delta))
	}
	for _, factor := range delta.Factors() {
		coeff := adjusted[factor]
		bound := l.cfg.MaxResearchDeltaRatio * math.Abs(coeff)
		if coeff == 0 {
			bound = l.cfg.MaxResearchDeltaRatio
		}
		adjusted[factor] = coeff + clamp(delta[factor], -bound, bound)
	}
	return adjusted
}

// MaxResearchDelta returns the largest change AdjustFromResearch may apply
// to the given coefficient in one call.
func (l *Learner) MaxResearchDelta(coeff float64) float64 {
	if coeff == 0 {
		return l.cfg.MaxResearchDeltaRatio
	}
	return l.cfg.MaxResearchDeltaRatio * math.Abs(coeff)
}

// sample pairs one prediction with its confirmed outcome.
type sample struct{ predicted, actual float64 }

// optimalScale finds the multiplier r minimizing the sum of |r*p - a| over
// the samples: the weighted median of the ratios a/p weighted by p.
// Samples with a non-positive prediction contribute no information about
// scaling and are skipped. Returns NaN when no usable sample remains.
func optimalScale(samples []sample) float64 {
	type ratio struct{ value, weight float64 }
	ratios := make([]ratio, 0, len(samples))
	var total float64
	for _, s := range samples {
		if s.predicted <= 0 {
			continue
		}
		ratios = append(ratios, ratio{value: s.actual / s.predicted, weight: s.predicted})
		total += s.predicted
	}
	if len(ratios) == 0 || total == 0 {
		return math.NaN()
	}

	sort.Slice(ratios, func(i, j int) bool { return ratios[i].value < ratios[j].value })

	half := total / 2
	var cumulative float64
	for _, r := range ratios {
		cumulative += r.weight
		if cumulative >= half {
			return r.value
		}
	}
	return ratios[len(ratios)-1].value
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
