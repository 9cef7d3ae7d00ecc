// Package ports defines the interfaces between the optimization engine and
// its collaborators: the persistence layer, the external scoring function,
// response evaluators, and observability sinks. Implementations live under
// infrastructure; application services depend only on these contracts.
package ports

import (
	"context"
	"time"

	"github.com/visably/optimo/internal/domain"
)

// VersionStore persists algorithm versions. Implementations must provide
// per-row atomic updates and make Promote a single transaction so the
// exactly-one-active invariant holds under concurrent callers.
type VersionStore interface {
	// GetActive returns the single active version for the type.
	// Returns domain.ErrNotInitialized when no version is active yet.
	GetActive(ctx context.Context, t domain.AlgorithmType) (*domain.AlgorithmVersion, error)

	// GetVersion returns a version by id, or domain.ErrNotFound.
	GetVersion(ctx context.Context, id string) (*domain.AlgorithmVersion, error)

	// ListVersions returns every version of the type, newest first.
	ListVersions(ctx context.Context, t domain.AlgorithmType) ([]domain.AlgorithmVersion, error)

	// CreateVersion inserts a new inactive version, atomically allocating
	// the next version number for the type (max existing + 1, starting
	// at 1). The returned record carries the assigned id and number.
	CreateVersion(ctx context.Context, t domain.AlgorithmType, weights domain.Weights, researchBased bool, perf domain.Performance) (*domain.AlgorithmVersion, error)

	// Promote activates the version and deactivates every other version
	// of the same type in one transaction. Concurrent promotions for one
	// type serialize with the later call winning. Returns
	// domain.ErrNotFound when the id is unknown.
	Promote(ctx context.Context, id string) (*domain.AlgorithmVersion, error)

	// UpdatePerformance merges partial stats into the version,
	// last-writer-wins per field.
	UpdatePerformance(ctx context.Context, id string, update domain.PerformanceUpdate) error
}

// FindingStore persists research findings.
type FindingStore interface {
	// InsertFinding stores a fully populated finding record.
	InsertFinding(ctx context.Context, f domain.ResearchFinding) error

	// GetFinding returns a finding by id, or domain.ErrNotFound.
	GetFinding(ctx context.Context, id string) (*domain.ResearchFinding, error)

	// ListUnapplied returns unapplied findings, oldest first. A nil type
	// returns findings for every algorithm type.
	ListUnapplied(ctx context.Context, t *domain.AlgorithmType) ([]domain.ResearchFinding, error)

	// MarkApplied transitions the finding to applied exactly once,
	// recording the produced version and timestamp. Returns
	// domain.ErrConflict when the finding is already applied so callers
	// can treat re-application as a no-op.
	MarkApplied(ctx context.Context, findingID, versionID string, at time.Time) error
}

// TestStore persists A/B comparison records. Records are append-only except
// for the single outcome confirmation.
type TestStore interface {
	// InsertTest appends a comparison record.
	InsertTest(ctx context.Context, test domain.AlgorithmTest) error

	// GetTest returns a test by id, or domain.ErrNotFound.
	GetTest(ctx context.Context, id string) (*domain.AlgorithmTest, error)

	// SetOutcome records the confirmed ground truth on a test and
	// re-derives the winner inside the same transaction. Returns the
	// updated record.
	SetOutcome(ctx context.Context, id string, actual float64) (*domain.AlgorithmTest, error)

	// ListTests returns tests for the type created at or after since,
	// oldest first, capped at limit (0 means no cap; when more than
	// limit match, the most recent ones are kept).
	ListTests(ctx context.Context, t domain.AlgorithmType, since time.Time, limit int) ([]domain.AlgorithmTest, error)
}

// PromptStore persists prompt templates and their running reward stats.
type PromptStore interface {
	// CreateTemplate inserts a new template variant, atomically
	// allocating the next version number for the agent type.
	CreateTemplate(ctx context.Context, agent domain.AgentType, template string) (*domain.PromptTemplate, error)

	// GetTemplate returns a template by id, or domain.ErrNotFound.
	GetTemplate(ctx context.Context, id string) (*domain.PromptTemplate, error)

	// ListTemplates returns every template for the agent type, newest
	// version first.
	ListTemplates(ctx context.Context, agent domain.AgentType) ([]domain.PromptTemplate, error)

	// ApplyReward folds one reward score into the template's running
	// stats. The mean and success-rate update happens in the same
	// transaction that increments the use count, so concurrent writers
	// cannot lose updates. Returns the updated record.
	ApplyReward(ctx context.Context, templateID string, score, successThreshold float64) (*domain.PromptTemplate, error)

	// BestTemplate returns the template with the highest average score
	// among those with at least minUses recorded rewards, or
	// domain.ErrNotFound when none qualifies.
	BestTemplate(ctx context.Context, agent domain.AgentType, minUses int) (*domain.PromptTemplate, error)
}

// SpanStore persists raw span and reward records.
type SpanStore interface {
	// InsertSpan appends one interaction-half record.
	InsertSpan(ctx context.Context, span domain.AgentReward) error
}

// MetricStore persists daily learning rollups.
type MetricStore interface {
	// ApplyDailyReward folds one reward score into the bucket for the
	// agent type and day, atomically: the running mean is recomputed in
	// the same transaction that increments the span count. The
	// improvement rate against the previous day's bucket and the best
	// prompt version are refreshed as part of the merge.
	ApplyDailyReward(ctx context.Context, agent domain.AgentType, date time.Time, score float64, bestPromptVersion int) (*domain.LearningMetricDaily, error)

	// GetDaily returns the bucket for the agent type and day, or
	// domain.ErrNotFound.
	GetDaily(ctx context.Context, agent domain.AgentType, date time.Time) (*domain.LearningMetricDaily, error)
}

// Store aggregates every persistence port plus lifecycle management. Store
// implementations are opened once at process start and closed at shutdown.
type Store interface {
	VersionStore
	FindingStore
	TestStore
	PromptStore
	SpanStore
	MetricStore

	// Close releases the underlying storage resources.
	Close() error
}
