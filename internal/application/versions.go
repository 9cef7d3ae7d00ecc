package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/ports"
)

// VersionService manages the algorithm version catalog. It validates
// boundary inputs and enforces the type check on promotion; the atomicity
// of the promote itself is the store's responsibility.
type VersionService struct {
	store  ports.VersionStore
	logger *zap.Logger
}

// NewVersionService creates a VersionService.
// The store is required; a nil logger defaults to a no-op logger.
func NewVersionService(store ports.VersionStore, logger *zap.Logger) *VersionService {
	if store == nil {
		panic("version service: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionService{store: store, logger: logger}
}

// GetActive returns the active version for the type, or
// domain.ErrNotInitialized when none has been promoted yet.
func (s *VersionService) GetActive(ctx context.Context, t domain.AlgorithmType) (*domain.AlgorithmVersion, error) {
	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}
	return s.store.GetActive(ctx, t)
}

// GetActiveOrDefault returns the active version, falling back to a
// synthetic version zero built from the bootstrap weights when the type has
// no promoted version yet. The fallback is not persisted; it exists so read
// paths degrade gracefully before initialization.
func (s *VersionService) GetActiveOrDefault(ctx context.Context, t domain.AlgorithmType) (*domain.AlgorithmVersion, error) {
	active, err := s.GetActive(ctx, t)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, domain.ErrNotInitialized) {
		return nil, err
	}
	s.logger.Debug("serving bootstrap weights", zap.String("algorithm_type", string(t)))
	return &domain.AlgorithmVersion{
		Type:    t,
		Version: 0,
		Weights: DefaultWeights(t),
	}, nil
}

// CreateVersion allocates the next version number for the type and inserts
// the new version inactive.
func (s *VersionService) CreateVersion(
	ctx context.Context,
	t domain.AlgorithmType,
	weights domain.Weights,
	researchBased bool,
	perf domain.Performance,
) (*domain.AlgorithmVersion, error) {
	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	version, err := s.store.CreateVersion(ctx, t, weights, researchBased, perf)
	if err != nil {
		return nil, err
	}
	s.logger.Info("created algorithm version",
		zap.String("algorithm_type", string(t)),
		zap.Int("version", version.Version),
		zap.Bool("research_based", researchBased),
	)
	return version, nil
}

// Promote atomically activates the version and deactivates every other
// version of the type. Returns domain.ErrConflict when the version belongs
// to a different algorithm type than requested.
func (s *VersionService) Promote(ctx context.Context, t domain.AlgorithmType, id string) (*domain.AlgorithmVersion, error) {
	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}

	version, err := s.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if version.Type != t {
		return nil, domain.NewStoreError("algorithm_version", "promote", domain.ErrConflict)
	}

	promoted, err := s.store.Promote(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("promoted algorithm version",
		zap.String("algorithm_type", string(t)),
		zap.Int("version", promoted.Version),
	)
	return promoted, nil
}

// UpdatePerformance merges partial stats into a version, field by field.
func (s *VersionService) UpdatePerformance(ctx context.Context, id string, update domain.PerformanceUpdate) error {
	if update.Empty() {
		return nil
	}
	return s.store.UpdatePerformance(ctx, id, update)
}

// GetVersion returns a version by id.
func (s *VersionService) GetVersion(ctx context.Context, id string) (*domain.AlgorithmVersion, error) {
	return s.store.GetVersion(ctx, id)
}

// ListVersions returns the full history for a type, newest first.
func (s *VersionService) ListVersions(ctx context.Context, t domain.AlgorithmType) ([]domain.AlgorithmVersion, error) {
	if !t.Valid() {
		return nil, domain.NewValidationError("algorithmType", "unknown type "+string(t))
	}
	return s.store.ListVersions(ctx, t)
}
