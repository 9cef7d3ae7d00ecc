package learning

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visably/optimo/internal/domain"
)

func newLearner(t *testing.T) *Learner {
	t.Helper()
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	return l
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero step", Config{MaxStepRatio: 0, MaxResearchDeltaRatio: 0.2}},
		{"negative step", Config{MaxStepRatio: -0.1, MaxResearchDeltaRatio: 0.2}},
		{"step too large", Config{MaxStepRatio: 0.6, MaxResearchDeltaRatio: 0.2}},
		{"zero research delta", Config{MaxStepRatio: 0.1, MaxResearchDeltaRatio: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestLearnWeights_EmptyBatch(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordDensity": 1.0, "headings": 0.5}

	result := l.LearnWeights(current, nil)

	assert.Equal(t, current, result.Weights)
	assert.Zero(t, result.ImprovementRate)
}

func TestLearnWeights_NoGroundTruth(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordDensity": 1.0}
	tests := []domain.AlgorithmTest{
		{ScoreA: 70, ScoreB: 75},
		{ScoreA: 60, ScoreB: 58},
	}

	result := l.LearnWeights(current, tests)

	assert.Equal(t, current, result.Weights)
	assert.Zero(t, result.ImprovementRate, "truth-less batches must not change weights")
}

func TestLearnWeights_ReturnsIndependentCopy(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordDensity": 1.0}

	result := l.LearnWeights(current, nil)
	result.Weights["keywordDensity"] = 99

	assert.Equal(t, 1.0, current["keywordDensity"])
}

func TestLearnWeights_OverpredictionScalesDown(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordDensity": 1.0, "headings": 0.5}

	actual := 50.0
	batch := []domain.AlgorithmTest{
		{ScoreA: 80, ActualScore: &actual},
		{ScoreA: 90, ActualScore: &actual},
	}

	result := l.LearnWeights(current, batch)

	assert.Less(t, result.Weights["keywordDensity"], 1.0)
	assert.Less(t, result.Weights["headings"], 0.5)
	assert.GreaterOrEqual(t, result.Weights["keywordDensity"], 0.9, "step must respect MaxStepRatio")
	assert.Greater(t, result.ImprovementRate, 0.0)
}

func TestLearnWeights_StepBound(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordDensity": 2.0}

	// Wildly underpredicting; the optimal rescale is far beyond the bound.
	actual := 100.0
	batch := []domain.AlgorithmTest{{ScoreA: 10, ActualScore: &actual}}

	result := l.LearnWeights(current, batch)

	cfg := DefaultConfig()
	assert.InDelta(t, 2.0*(1+cfg.MaxStepRatio), result.Weights["keywordDensity"], 1e-9)
}

func TestLearnWeights_ImprovementClamped(t *testing.T) {
	l := newLearner(t)
	actual := 70.0
	result := l.LearnWeights(domain.Weights{"keywordDensity": 1.0},
		[]domain.AlgorithmTest{{ScoreA: 70, ActualScore: &actual}})

	assert.Zero(t, result.ImprovementRate, "perfect batch has nothing to improve")
	assert.GreaterOrEqual(t, result.ImprovementRate, -1.0)
	assert.LessOrEqual(t, result.ImprovementRate, 1.0)
}

// Fifty synthetic comparisons with known outcomes: the learned vector's
// predicted mean error on the training batch must never exceed the original
// mean error.
func TestLearnWeights_NeverWorseOnTrainingBatch(t *testing.T) {
	l := newLearner(t)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		current := domain.Weights{
			"keywordDensity": 0.5 + rng.Float64(),
			"headings":       rng.Float64(),
			"altText":        rng.Float64(),
		}

		batch := make([]domain.AlgorithmTest, 50)
		for i := range batch {
			predicted := 20 + rng.Float64()*70
			actual := 20 + rng.Float64()*70
			batch[i] = domain.AlgorithmTest{ScoreA: predicted, ActualScore: &actual}
		}

		result := l.LearnWeights(current, batch)

		scale := result.Weights["keywordDensity"] / current["keywordDensity"]
		var oldSum, newSum float64
		for _, test := range batch {
			oldSum += math.Abs(test.ScoreA - *test.ActualScore)
			newSum += math.Abs(test.ScoreA*scale - *test.ActualScore)
		}
		assert.LessOrEqual(t, newSum, oldSum+1e-9,
			"trial %d: learning made the training batch worse", trial)
		assert.GreaterOrEqual(t, result.ImprovementRate, 0.0, "trial %d", trial)
	}
}

func TestAdjustFromResearch_AppliesDelta(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordWeight": 1.0, "headings": 0.5}

	adjusted := l.AdjustFromResearch(current, domain.Weights{"keywordWeight": 0.05})

	assert.InDelta(t, 1.05, adjusted["keywordWeight"], 1e-9)
	assert.Equal(t, 0.5, adjusted["headings"], "unmentioned factors stay untouched")
	assert.Equal(t, 1.0, current["keywordWeight"], "input must not be mutated")
}

func TestAdjustFromResearch_ClampsDelta(t *testing.T) {
	l := newLearner(t)
	current := domain.Weights{"keywordWeight": 1.0}

	up := l.AdjustFromResearch(current, domain.Weights{"keywordWeight": 3.0})
	down := l.AdjustFromResearch(current, domain.Weights{"keywordWeight": -3.0})

	assert.InDelta(t, 1.20, up["keywordWeight"], 1e-9)
	assert.InDelta(t, 0.80, down["keywordWeight"], 1e-9)
}

func TestAdjustFromResearch_NewFactorBoundedByUnit(t *testing.T) {
	l := newLearner(t)

	adjusted := l.AdjustFromResearch(domain.Weights{"headings": 0.5}, domain.Weights{"schemaMarkup": 5.0})

	assert.InDelta(t, 0.20, adjusted["schemaMarkup"], 1e-9)
}

// Property: no single call may move a coefficient by more than the
// configured maximum delta magnitude.
func TestAdjustFromResearch_DeltaMagnitudeProperty(t *testing.T) {
	l := newLearner(t)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 100; trial++ {
		coeff := rng.Float64()*4 - 2
		delta := rng.Float64()*10 - 5
		current := domain.Weights{"factor": coeff}

		adjusted := l.AdjustFromResearch(current, domain.Weights{"factor": delta})

		moved := math.Abs(adjusted["factor"] - coeff)
		assert.LessOrEqual(t, moved, l.MaxResearchDelta(coeff)+1e-12,
			"trial %d: coeff=%v delta=%v", trial, coeff, delta)
	}
}
