package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/learning"
	"github.com/visably/optimo/internal/ports"
)

// ResearchService records external research findings and folds them into
// new algorithm versions. Applying a finding is the only path that produces
// research-based versions.
type ResearchService struct {
	store    ports.FindingStore
	versions *VersionService
	learner  *learning.Learner
	clock    ports.Clock
	logger   *zap.Logger
}

// NewResearchService creates a ResearchService. Store, version service,
// and learner are required; a nil clock defaults to the system clock and a
// nil logger to a no-op logger.
func NewResearchService(
	store ports.FindingStore,
	versions *VersionService,
	learner *learning.Learner,
	clock ports.Clock,
	logger *zap.Logger,
) *ResearchService {
	if store == nil || versions == nil || learner == nil {
		panic("research service: store, versions, and learner are required")
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchService{
		store:    store,
		versions: versions,
		learner:  learner,
		clock:    clock,
		logger:   logger,
	}
}

// SaveFinding stores a new finding, unapplied.
func (s *ResearchService) SaveFinding(
	ctx context.Context,
	title, source string,
	t domain.AlgorithmType,
	weightDelta domain.Weights,
) (*domain.ResearchFinding, error) {
	if title == "" {
		return nil, domain.NewValidationError("title", "must not be empty")
	}
	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}
	if len(weightDelta) > 0 {
		if err := weightDelta.Validate(); err != nil {
			return nil, err
		}
	}

	finding := domain.ResearchFinding{
		ID:          uuid.NewString(),
		Title:       title,
		Source:      source,
		Type:        t,
		WeightDelta: weightDelta.Clone(),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.InsertFinding(ctx, finding); err != nil {
		return nil, err
	}
	return &finding, nil
}

// Unapplied returns findings not yet folded into a version, oldest first.
// A nil type covers every algorithm type.
func (s *ResearchService) Unapplied(ctx context.Context, t *domain.AlgorithmType) ([]domain.ResearchFinding, error) {
	if t != nil && !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(*t))
	}
	return s.store.ListUnapplied(ctx, t)
}

// ApplyFinding folds the finding into a new research-based version and
// promotes it. Idempotent: applying an already-applied finding returns the
// version it originally produced without side effects.
func (s *ResearchService) ApplyFinding(ctx context.Context, findingID string) (*domain.AlgorithmVersion, error) {
	finding, err := s.store.GetFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	if finding.Applied {
		return s.versions.GetVersion(ctx, finding.AppliedVersionID)
	}

	active, err := s.versions.GetActiveOrDefault(ctx, finding.Type)
	if err != nil {
		return nil, err
	}

	weights := s.learner.AdjustFromResearch(active.Weights, finding.WeightDelta)
	version, err := s.versions.CreateVersion(ctx, finding.Type, weights, true, domain.Performance{})
	if err != nil {
		return nil, err
	}
	promoted, err := s.versions.Promote(ctx, finding.Type, version.ID)
	if err != nil {
		return nil, err
	}

	err = s.store.MarkApplied(ctx, finding.ID, promoted.ID, s.clock.Now())
	if errors.Is(err, domain.ErrConflict) {
		// A racing caller applied the finding first; its version wins.
		s.logger.Warn("finding applied concurrently, yielding to first application",
			zap.String("finding_id", finding.ID))
		applied, getErr := s.store.GetFinding(ctx, finding.ID)
		if getErr != nil {
			return nil, getErr
		}
		return s.versions.GetVersion(ctx, applied.AppliedVersionID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("applied research finding",
		zap.String("finding_id", finding.ID),
		zap.String("algorithm_type", string(finding.Type)),
		zap.Int("version", promoted.Version),
	)
	return promoted, nil
}
