// Package memory provides an in-process implementation of the persistence
// ports, guarded by a single mutex. It backs unit tests and embedded
// deployments that do not need durability.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/ports"
)

// Compile-time verification that Store implements every persistence port.
var _ ports.Store = (*Store)(nil)

// Store holds every record kind in process memory. All operations are
// linearized through one mutex, which trivially satisfies the atomicity
// requirements of Promote and the running-mean merges.
type Store struct {
	mu sync.Mutex

	clock ports.Clock

	versions  map[string]*domain.AlgorithmVersion
	findings  map[string]*domain.ResearchFinding
	tests     map[string]*domain.AlgorithmTest
	templates map[string]*domain.PromptTemplate
	spans     []domain.AgentReward
	daily     map[string]*domain.LearningMetricDaily
}

// New creates an empty Store. A nil clock defaults to the system clock.
func New(clock ports.Clock) *Store {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Store{
		clock:     clock,
		versions:  make(map[string]*domain.AlgorithmVersion),
		findings:  make(map[string]*domain.ResearchFinding),
		tests:     make(map[string]*domain.AlgorithmTest),
		templates: make(map[string]*domain.PromptTemplate),
		daily:     make(map[string]*domain.LearningMetricDaily),
	}
}

// Close implements ports.Store. Nothing to release.
func (s *Store) Close() error { return nil }

// GetActive implements ports.VersionStore.
func (s *Store) GetActive(ctx context.Context, t domain.AlgorithmType) (*domain.AlgorithmVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions {
		if v.Type == t && v.IsActive {
			clone := *v
			clone.Weights = v.Weights.Clone()
			return &clone, nil
		}
	}
	return nil, domain.NewStoreError("algorithm_version", "get_active", domain.ErrNotInitialized)
}

// GetVersion implements ports.VersionStore.
func (s *Store) GetVersion(ctx context.Context, id string) (*domain.AlgorithmVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, domain.NewStoreError("algorithm_version", "get", domain.ErrNotFound)
	}
	clone := *v
	clone.Weights = v.Weights.Clone()
	return &clone, nil
}

// ListVersions implements ports.VersionStore.
func (s *Store) ListVersions(ctx context.Context, t domain.AlgorithmType) ([]domain.AlgorithmVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AlgorithmVersion
	for _, v := range s.versions {
		if v.Type != t {
			continue
		}
		clone := *v
		clone.Weights = v.Weights.Clone()
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// CreateVersion implements ports.VersionStore. Version numbers are dense
// and strictly increasing per type because allocation happens under the
// store lock.
func (s *Store) CreateVersion(
	ctx context.Context,
	t domain.AlgorithmType,
	weights domain.Weights,
	researchBased bool,
	perf domain.Performance,
) (*domain.AlgorithmVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	for _, v := range s.versions {
		if v.Type == t && v.Version >= next {
			next = v.Version + 1
		}
	}

	version := &domain.AlgorithmVersion{
		ID:            uuid.NewString(),
		Type:          t,
		Version:       next,
		Weights:       weights.Clone(),
		IsActive:      false,
		ResearchBased: researchBased,
		Performance:   perf,
		CreatedAt:     s.clock.Now(),
	}
	s.versions[version.ID] = version

	clone := *version
	clone.Weights = version.Weights.Clone()
	return &clone, nil
}

// Promote implements ports.VersionStore. The whole read-deactivate-activate
// sequence runs under the lock, so there is no window with zero or two
// active rows.
func (s *Store) Promote(ctx context.Context, id string) (*domain.AlgorithmVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.versions[id]
	if !ok {
		return nil, domain.NewStoreError("algorithm_version", "promote", domain.ErrNotFound)
	}

	for _, v := range s.versions {
		if v.Type == target.Type && v.ID != id {
			v.IsActive = false
		}
	}
	target.IsActive = true

	clone := *target
	clone.Weights = target.Weights.Clone()
	return &clone, nil
}

// UpdatePerformance implements ports.VersionStore.
func (s *Store) UpdatePerformance(ctx context.Context, id string, update domain.PerformanceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return domain.NewStoreError("algorithm_version", "update_performance", domain.ErrNotFound)
	}
	update.Apply(&v.Performance)
	return nil
}

// InsertFinding implements ports.FindingStore.
func (s *Store) InsertFinding(ctx context.Context, f domain.ResearchFinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := f
	clone.WeightDelta = f.WeightDelta.Clone()
	s.findings[f.ID] = &clone
	return nil
}

// GetFinding implements ports.FindingStore.
func (s *Store) GetFinding(ctx context.Context, id string) (*domain.ResearchFinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.findings[id]
	if !ok {
		return nil, domain.NewStoreError("research_finding", "get", domain.ErrNotFound)
	}
	clone := *f
	clone.WeightDelta = f.WeightDelta.Clone()
	return &clone, nil
}

// ListUnapplied implements ports.FindingStore.
func (s *Store) ListUnapplied(ctx context.Context, t *domain.AlgorithmType) ([]domain.ResearchFinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ResearchFinding
	for _, f := range s.findings {
		if f.Applied {
			continue
		}
		if t != nil && f.Type != *t {
			continue
		}
		clone := *f
		clone.WeightDelta = f.WeightDelta.Clone()
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkApplied implements ports.FindingStore. The applied flag flips exactly
// once; a second call reports domain.ErrConflict.
func (s *Store) MarkApplied(ctx context.Context, findingID, versionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.findings[findingID]
	if !ok {
		return domain.NewStoreError("research_finding", "mark_applied", domain.ErrNotFound)
	}
	if f.Applied {
		return domain.NewStoreError("research_finding", "mark_applied", domain.ErrConflict)
	}
	f.Applied = true
	f.AppliedAt = &at
	f.AppliedVersionID = versionID
	return nil
}

// InsertTest implements ports.TestStore.
func (s *Store) InsertTest(ctx context.Context, test domain.AlgorithmTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := test
	s.tests[test.ID] = &clone
	return nil
}

// GetTest implements ports.TestStore.
func (s *Store) GetTest(ctx context.Context, id string) (*domain.AlgorithmTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	test, ok := s.tests[id]
	if !ok {
		return nil, domain.NewStoreError("algorithm_test", "get", domain.ErrNotFound)
	}
	clone := *test
	return &clone, nil
}

// SetOutcome implements ports.TestStore. Winner derivation happens under
// the lock together with the outcome write.
func (s *Store) SetOutcome(ctx context.Context, id string, actual float64) (*domain.AlgorithmTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	test, ok := s.tests[id]
	if !ok {
		return nil, domain.NewStoreError("algorithm_test", "set_outcome", domain.ErrNotFound)
	}
	test.ActualScore = &actual
	test.Winner = domain.DeriveWinner(test.ScoreA, test.ScoreB, &actual)

	clone := *test
	return &clone, nil
}

// ListTests implements ports.TestStore.
func (s *Store) ListTests(ctx context.Context, t domain.AlgorithmType, since time.Time, limit int) ([]domain.AlgorithmTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AlgorithmTest
	for _, test := range s.tests {
		if test.Type != t || test.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *test)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CreateTemplate implements ports.PromptStore.
func (s *Store) CreateTemplate(ctx context.Context, agent domain.AgentType, template string) (*domain.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	for _, tpl := range s.templates {
		if tpl.Agent == agent && tpl.Version >= next {
			next = tpl.Version + 1
		}
	}

	tpl := &domain.PromptTemplate{
		ID:        uuid.NewString(),
		Agent:     agent,
		Template:  template,
		Version:   next,
		CreatedAt: s.clock.Now(),
	}
	s.templates[tpl.ID] = tpl

	clone := *tpl
	return &clone, nil
}

// GetTemplate implements ports.PromptStore.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, domain.NewStoreError("prompt_template", "get", domain.ErrNotFound)
	}
	clone := *tpl
	return &clone, nil
}

// ListTemplates implements ports.PromptStore.
func (s *Store) ListTemplates(ctx context.Context, agent domain.AgentType) ([]domain.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PromptTemplate
	for _, tpl := range s.templates {
		if tpl.Agent == agent {
			out = append(out, *tpl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// ApplyReward implements ports.PromptStore. The count increment and mean
// recomputation run under the same lock acquisition.
func (s *Store) ApplyReward(ctx context.Context, templateID string, score, successThreshold float64) (*domain.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[templateID]
	if !ok {
		return nil, domain.NewStoreError("prompt_template", "apply_reward", domain.ErrNotFound)
	}
	tpl.FoldReward(score, successThreshold)

	clone := *tpl
	return &clone, nil
}

// BestTemplate implements ports.PromptStore. Ties on average score resolve
// to the newer version.
func (s *Store) BestTemplate(ctx context.Context, agent domain.AgentType, minUses int) (*domain.PromptTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.PromptTemplate
	for _, tpl := range s.templates {
		if tpl.Agent != agent || tpl.TotalUses < minUses {
			continue
		}
		if best == nil || tpl.AvgScore > best.AvgScore ||
			(tpl.AvgScore == best.AvgScore && tpl.Version > best.Version) {
			best = tpl
		}
	}
	if best == nil {
		return nil, domain.NewStoreError("prompt_template", "best", domain.ErrNotFound)
	}
	clone := *best
	return &clone, nil
}

// InsertSpan implements ports.SpanStore.
func (s *Store) InsertSpan(ctx context.Context, span domain.AgentReward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, span)
	return nil
}

// SpanCount returns the number of stored span records. Test helper.
func (s *Store) SpanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}

// ApplyDailyReward implements ports.MetricStore.
func (s *Store) ApplyDailyReward(
	ctx context.Context,
	agent domain.AgentType,
	date time.Time,
	score float64,
	bestPromptVersion int,
) (*domain.LearningMetricDaily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := date.UTC().Truncate(24 * time.Hour)
	key := dailyKey(agent, day)

	bucket, ok := s.daily[key]
	if !ok {
		bucket = &domain.LearningMetricDaily{Agent: agent, Date: day}
		s.daily[key] = bucket
	}

	var previousAvg *float64
	if prev, ok := s.daily[dailyKey(agent, day.AddDate(0, 0, -1))]; ok && prev.TotalSpans > 0 {
		avg := prev.AvgReward
		previousAvg = &avg
	}

	bucket.FoldReward(score, previousAvg, bestPromptVersion)

	clone := *bucket
	return &clone, nil
}

// GetDaily implements ports.MetricStore.
func (s *Store) GetDaily(ctx context.Context, agent domain.AgentType, date time.Time) (*domain.LearningMetricDaily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.daily[dailyKey(agent, date.UTC().Truncate(24*time.Hour))]
	if !ok {
		return nil, domain.NewStoreError("learning_metric_daily", "get", domain.ErrNotFound)
	}
	clone := *bucket
	return &clone, nil
}

func dailyKey(agent domain.AgentType, day time.Time) string {
	return string(agent) + "|" + day.Format("2006-01-02")
}
