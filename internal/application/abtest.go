package application

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/learning"
	"github.com/visably/optimo/internal/ports"
)

// ABTestService creates and scores paired comparisons between algorithm
// versions and runs the evidence-gated learning cycle. The scoring function
// itself is an injected capability.
type ABTestService struct {
	store    ports.TestStore
	versions *VersionService
	learner  *learning.Learner
	score    ports.ScoreFunc
	cfg      TriggerConfig
	clock    ports.Clock
	logger   *zap.Logger
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
}

// NewABTestService creates an ABTestService. Store, version service,
// learner, and score function are required.
func NewABTestService(
	store ports.TestStore,
	versions *VersionService,
	learner *learning.Learner,
	score ports.ScoreFunc,
	cfg TriggerConfig,
	clock ports.Clock,
	logger *zap.Logger,
	metrics ports.MetricsCollector,
) (*ABTestService, error) {
	if store == nil || versions == nil || learner == nil || score == nil {
		return nil, domain.NewValidationError("abtest", "store, versions, learner, and score function are required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &ABTestService{
		store:    store,
		versions: versions,
		learner:  learner,
		score:    score,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("abtest-service"),
	}, nil
}

// CreateTest scores both versions against the same input and records the
// comparison. An empty versionAID compares the current active version
// against the candidate. When an actual outcome is supplied the winner is
// derived immediately; otherwise it stays undecided until ConfirmOutcome.
func (s *ABTestService) CreateTest(
	ctx context.Context,
	t domain.AlgorithmType,
	versionAID, versionBID string,
	input ports.ScoreInput,
	actual *float64,
) (*domain.AlgorithmTest, error) {
	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}

	versionA, err := s.resolveVersion(ctx, t, versionAID)
	if err != nil {
		return nil, err
	}
	versionB, err := s.resolveVersion(ctx, t, versionBID)
	if err != nil {
		return nil, err
	}

	scoreA, err := s.score(ctx, t, input, versionA.Weights)
	if err != nil {
		return nil, err
	}
	scoreB, err := s.score(ctx, t, input, versionB.Weights)
	if err != nil {
		return nil, err
	}

	test := domain.AlgorithmTest{
		ID:          uuid.NewString(),
		Type:        t,
		VersionAID:  versionA.ID,
		VersionBID:  versionB.ID,
		ScoreA:      scoreA,
		ScoreB:      scoreB,
		ActualScore: actual,
		Winner:      domain.DeriveWinner(scoreA, scoreB, actual),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.InsertTest(ctx, test); err != nil {
		return nil, err
	}

	s.metrics.RecordCounter("abtests_created_total", 1,
		map[string]string{"algorithm_type": string(t)})
	return &test, nil
}

// ConfirmOutcome records the ground-truth outcome on an existing test,
// re-deriving the winner.
func (s *ABTestService) ConfirmOutcome(ctx context.Context, testID string, actual float64) (*domain.AlgorithmTest, error) {
	return s.store.SetOutcome(ctx, testID, actual)
}

// Results aggregates stored tests for the type since the given time (zero
// time covers the whole history). The read degrades gracefully: on store
// failure it logs and returns an empty aggregation rather than an error,
// since it feeds best-effort reporting.
func (s *ABTestService) Results(ctx context.Context, t domain.AlgorithmType, since time.Time) domain.TestResults {
	results := domain.TestResults{Type: t}
	if !t.Valid() {
		return results
	}

	tests, err := s.store.ListTests(ctx, t, since, 0)
	if err != nil {
		s.logger.Warn("test aggregation degraded to empty results",
			zap.String("algorithm_type", string(t)), zap.Error(err))
		return results
	}

	var errSumA, errSumB float64
	var confirmed int
	for _, test := range tests {
		results.TotalTests++
		switch test.Winner {
		case domain.WinnerA:
			results.WinsA++
		case domain.WinnerB:
			results.WinsB++
		}
		if test.ActualScore != nil {
			confirmed++
			errSumA += math.Abs(test.ScoreA - *test.ActualScore)
			errSumB += math.Abs(test.ScoreB - *test.ActualScore)
		}
	}
	if confirmed > 0 {
		results.AvgErrorA = errSumA / float64(confirmed)
		results.AvgErrorB = errSumB / float64(confirmed)
	}
	return results
}

// RunLearningCycle pulls the tests recorded since the last promoted
// version, learns an adjusted weight vector, and promotes it only when the
// measured improvement strictly exceeds the configured gate. Returns the
// promoted version, or nil when no promotion happened.
//
// The cycle is idempotent: the batch boundary is re-read from the store
// each run, so a re-run after a partial failure converges on the same
// outcome instead of compounding it.
func (s *ABTestService) RunLearningCycle(ctx context.Context, t domain.AlgorithmType) (*domain.AlgorithmVersion, error) {
	ctx, span := s.tracer.Start(ctx, "ABTestService.RunLearningCycle",
		trace.WithAttributes(attribute.String("algorithm_type", string(t))),
	)
	defer span.End()

	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}

	active, err := s.versions.GetActive(ctx, t)
	if errors.Is(err, domain.ErrNotInitialized) {
		s.logger.Debug("skipping learning cycle, type not initialized",
			zap.String("algorithm_type", string(t)))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	batch, err := s.store.ListTests(ctx, t, active.CreatedAt, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("batch_size", len(batch)))

	result := s.learner.LearnWeights(active.Weights, batch)

	// Refresh the active version's accrued stats from the same batch.
	if update := batchPerformance(batch); !update.Empty() {
		if err := s.versions.UpdatePerformance(ctx, active.ID, update); err != nil {
			s.logger.Warn("performance update failed",
				zap.String("version_id", active.ID), zap.Error(err))
		}
	}

	s.metrics.RecordGauge("learning_improvement_rate", result.ImprovementRate,
		map[string]string{"algorithm_type": string(t)})

	if result.ImprovementRate <= s.cfg.MinImprovementRate {
		s.logger.Debug("improvement below promotion gate",
			zap.String("algorithm_type", string(t)),
			zap.Float64("improvement_rate", result.ImprovementRate),
		)
		return nil, nil
	}

	// The trigger may be aborted between steps but never mid-promote.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perf := domain.Performance{ImprovementRate: result.ImprovementRate}
	version, err := s.versions.CreateVersion(ctx, t, result.Weights, false, perf)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	promoted, err := s.versions.Promote(ctx, t, version.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.RecordCounter("learning_promotions_total", 1,
		map[string]string{"algorithm_type": string(t)})
	s.logger.Info("promoted learned version",
		zap.String("algorithm_type", string(t)),
		zap.Int("version", promoted.Version),
		zap.Float64("improvement_rate", result.ImprovementRate),
	)
	return promoted, nil
}

// RunAllLearningCycles runs one learning cycle per algorithm type
// concurrently and returns the first error encountered. Each type's cycle
// is independent; a failing type does not roll back the others.
func (s *ABTestService) RunAllLearningCycles(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range domain.AlgorithmTypes() {
		g.Go(func() error {
			_, err := s.RunLearningCycle(ctx, t)
			return err
		})
	}
	return g.Wait()
}

// resolveVersion fetches a version by id, defaulting an empty id to the
// type's active version. The version must belong to the requested type.
func (s *ABTestService) resolveVersion(ctx context.Context, t domain.AlgorithmType, id string) (*domain.AlgorithmVersion, error) {
	if id == "" {
		return s.versions.GetActive(ctx, t)
	}
	version, err := s.versions.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if version.Type != t {
		return nil, domain.NewStoreError("algorithm_version", "resolve", domain.ErrConflict)
	}
	return version, nil
}

// batchPerformance summarizes a test batch into a stats merge for the
// active version: mean absolute error and the share of decided comparisons
// the active side won. Batches without confirmed outcomes produce an empty
// update.
func batchPerformance(batch []domain.AlgorithmTest) domain.PerformanceUpdate {
	var errSum float64
	var confirmed, decided, winsA int
	for _, test := range batch {
		if test.ActualScore != nil {
			confirmed++
			errSum += math.Abs(test.ScoreA - *test.ActualScore)
		}
		switch test.Winner {
		case domain.WinnerA:
			decided++
			winsA++
		case domain.WinnerB:
			decided++
		}
	}
	if confirmed == 0 {
		return domain.PerformanceUpdate{}
	}

	avgError := errSum / float64(confirmed)
	update := domain.PerformanceUpdate{AvgError: &avgError}
	if decided > 0 {
		accuracy := float64(winsA) / float64(decided)
		update.AvgAccuracy = &accuracy
	}
	return update
}
