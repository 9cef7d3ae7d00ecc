package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visably/optimo/internal/domain"
)

// fixedClock pins store timestamps for deterministic assertions.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newStore() *Store {
	return New(&fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)})
}

func TestCreateVersion_DenseNumbering(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	for want := 1; want <= 5; want++ {
		v, err := s.CreateVersion(ctx, domain.AlgorithmGEO, domain.Weights{"factorX": 1.0}, false, domain.Performance{})
		require.NoError(t, err)
		assert.Equal(t, want, v.Version)
		assert.False(t, v.IsActive, "new versions start inactive")
	}

	// A second type keeps its own independent counter.
	v, err := s.CreateVersion(ctx, domain.AlgorithmSEO, domain.Weights{"factorX": 1.0}, false, domain.Performance{})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Version)
}

func TestPromote_ExactlyOneActive(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	v1, err := s.CreateVersion(ctx, domain.AlgorithmGEO, domain.Weights{"factorX": 1.0}, false, domain.Performance{})
	require.NoError(t, err)
	_, err = s.Promote(ctx, v1.ID)
	require.NoError(t, err)

	active, err := s.GetActive(ctx, domain.AlgorithmGEO)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)

	v2, err := s.CreateVersion(ctx, domain.AlgorithmGEO, domain.Weights{"factorX": 1.1}, false, domain.Performance{})
	require.NoError(t, err)
	_, err = s.Promote(ctx, v2.ID)
	require.NoError(t, err)

	active, err = s.GetActive(ctx, domain.AlgorithmGEO)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	demoted, err := s.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsActive, "superseded version must be deactivated")

	versions, err := s.ListVersions(ctx, domain.AlgorithmGEO)
	require.NoError(t, err)
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestPromote_ConcurrentSerializes(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	ids := make([]string, 8)
	for i := range ids {
		v, err := s.CreateVersion(ctx, domain.AlgorithmSEO, domain.Weights{"factorX": 1.0}, false, domain.Performance{})
		require.NoError(t, err)
		ids[i] = v.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Promote(ctx, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	versions, err := s.ListVersions(ctx, domain.AlgorithmSEO)
	require.NoError(t, err)
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "racing promotions must leave exactly one active version")
}

func TestGetActive_NotInitialized(t *testing.T) {
	s := newStore()

	_, err := s.GetActive(context.Background(), domain.AlgorithmFreshness)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestUpdatePerformance_PartialMerge(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	v, err := s.CreateVersion(ctx, domain.AlgorithmGEO, domain.Weights{"factorX": 1.0}, false,
		domain.Performance{AvgAccuracy: 0.7, AvgError: 15})
	require.NoError(t, err)

	accuracy := 0.85
	require.NoError(t, s.UpdatePerformance(ctx, v.ID, domain.PerformanceUpdate{AvgAccuracy: &accuracy}))

	got, err := s.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.85, got.Performance.AvgAccuracy)
	assert.Equal(t, 15.0, got.Performance.AvgError, "unset field must survive the merge")
}

func TestMarkApplied_FlipsOnce(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	now := time.Now().UTC()

	finding := domain.ResearchFinding{
		ID: "finding-1", Title: "entity salience", Source: "journal",
		Type: domain.AlgorithmSEO, CreatedAt: now,
	}
	require.NoError(t, s.InsertFinding(ctx, finding))

	require.NoError(t, s.MarkApplied(ctx, "finding-1", "version-1", now))

	err := s.MarkApplied(ctx, "finding-1", "version-2", now)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.GetFinding(ctx, "finding-1")
	require.NoError(t, err)
	assert.True(t, got.Applied)
	assert.Equal(t, "version-1", got.AppliedVersionID, "first application must stick")

	unapplied, err := s.ListUnapplied(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

func TestListTests_SinceAndLimit(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.InsertTest(ctx, domain.AlgorithmTest{
			ID:        string(rune('a' + i)),
			Type:      domain.AlgorithmGEO,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := s.ListTests(ctx, domain.AlgorithmGEO, base.Add(5*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = s.ListTests(ctx, domain.AlgorithmGEO, base, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "h", got[0].ID, "limit keeps the most recent tests, oldest first")
	assert.Equal(t, "j", got[2].ID)
}

func TestSetOutcome_DerivesWinner(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.InsertTest(ctx, domain.AlgorithmTest{
		ID: "t1", Type: domain.AlgorithmSEO, ScoreA: 72, ScoreB: 90, CreatedAt: time.Now(),
	}))

	got, err := s.SetOutcome(ctx, "t1", 70)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerA, got.Winner)
	require.NotNil(t, got.ActualScore)
	assert.Equal(t, 70.0, *got.ActualScore)
}

func TestApplyReward_RunningMean(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	tpl, err := s.CreateTemplate(ctx, domain.AgentChat, "You are a helpful assistant. {{context}}")
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)

	_, err = s.ApplyReward(ctx, tpl.ID, 80, 70)
	require.NoError(t, err)
	got, err := s.ApplyReward(ctx, tpl.ID, 60, 70)
	require.NoError(t, err)

	assert.Equal(t, 2, got.TotalUses)
	assert.InDelta(t, 70.0, got.AvgScore, 1e-9)
	assert.InDelta(t, 0.5, got.SuccessRate, 1e-9, "one of two rewards met the threshold")
}

func TestBestTemplate_MinimumSampleSize(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	lucky, err := s.CreateTemplate(ctx, domain.AgentChat, "lucky variant")
	require.NoError(t, err)
	steady, err := s.CreateTemplate(ctx, domain.AgentChat, "steady variant")
	require.NoError(t, err)

	// One lucky high score must not crown a template.
	_, err = s.ApplyReward(ctx, lucky.ID, 99, 70)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = s.ApplyReward(ctx, steady.ID, 75, 70)
		require.NoError(t, err)
	}

	best, err := s.BestTemplate(ctx, domain.AgentChat, 3)
	require.NoError(t, err)
	assert.Equal(t, steady.ID, best.ID)

	_, err = s.BestTemplate(ctx, domain.AgentSuggestions, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyDailyReward_BucketsAndImprovement(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	day1 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	_, err := s.ApplyDailyReward(ctx, domain.AgentChat, day1, 50, 1)
	require.NoError(t, err)
	_, err = s.ApplyDailyReward(ctx, domain.AgentChat, day1, 70, 1)
	require.NoError(t, err)

	bucket, err := s.GetDaily(ctx, domain.AgentChat, day1)
	require.NoError(t, err)
	assert.Equal(t, 2, bucket.TotalSpans)
	assert.InDelta(t, 60.0, bucket.AvgReward, 1e-9)
	assert.Zero(t, bucket.ImprovementRate, "no prior day to compare against")

	got, err := s.ApplyDailyReward(ctx, domain.AgentChat, day2, 75, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalSpans)
	assert.InDelta(t, 0.25, got.ImprovementRate, 1e-9, "(75-60)/60")
	assert.Equal(t, 2, got.BestPromptVersion)

	// Different agent types bucket independently.
	_, err = s.GetDaily(ctx, domain.AgentSuggestions, day1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertSpan_Appends(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.InsertSpan(ctx, domain.AgentReward{
		ID: "s1", Agent: domain.AgentChat, Span: domain.SpanPrompt,
		Payload: domain.SpanPayload{Message: "how do I rank for AI search?"},
	}))
	require.NoError(t, s.InsertSpan(ctx, domain.AgentReward{
		ID: "s2", Agent: domain.AgentChat, Span: domain.SpanResponse,
		Payload: domain.SpanPayload{Response: "Add structured data."},
	}))

	assert.Equal(t, 2, s.SpanCount())
}
