package badgerstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visably/optimo/internal/domain"
)

// fixedClock advances one millisecond per Now call from a fixed base so
// records created in sequence stay ordered.
type fixedClock struct {
	mu    sync.Mutex
	base  time.Time
	calls int
}

func newFixedClock() *fixedClock {
	return &fixedClock{base: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.calls) * time.Millisecond)
	c.calls++
	return t
}

func openTestStore(t *testing.T) (*Store, *fixedClock) {
	t.Helper()
	clock := newFixedClock()
	store, err := Open(Config{InMemory: true}, clock, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store, clock
}

func TestOpen_RequiresPathWhenPersistent(t *testing.T) {
	_, err := Open(Config{}, nil, nil)
	assert.Error(t, err)
}

func TestClosedStore_SurfacesPersistenceFailure(t *testing.T) {
	store, err := Open(Config{InMemory: true}, newFixedClock(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.GetVersion(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestVersionLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	_, err := store.GetActive(ctx, domain.AlgorithmSEO)
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	v1, err := store.CreateVersion(ctx, domain.AlgorithmSEO,
		domain.Weights{"keywordDensity": 1.0}, false, domain.Performance{})
	require.NoError(t, err)
	v2, err := store.CreateVersion(ctx, domain.AlgorithmSEO,
		domain.Weights{"keywordDensity": 1.1}, true, domain.Performance{})
	require.NoError(t, err)

	// Numbers are dense per type; another type starts at one.
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	g1, err := store.CreateVersion(ctx, domain.AlgorithmGEO,
		domain.Weights{"citations": 1.0}, false, domain.Performance{})
	require.NoError(t, err)
	assert.Equal(t, 1, g1.Version)

	_, err = store.Promote(ctx, v1.ID)
	require.NoError(t, err)
	_, err = store.Promote(ctx, v2.ID)
	require.NoError(t, err)

	active, err := store.GetActive(ctx, domain.AlgorithmSEO)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)
	assert.True(t, active.IsActive)

	// The superseded version was deactivated in the same transaction.
	old, err := store.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	history, err := store.ListVersions(ctx, domain.AlgorithmSEO)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, 1, history[1].Version)
}

func TestPromote_UnknownVersion(t *testing.T) {
	store, _ := openTestStore(t)
	_, err := store.Promote(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePerformance_MergesPartially(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	v, err := store.CreateVersion(ctx, domain.AlgorithmSEO,
		domain.Weights{"keywordDensity": 1.0}, false,
		domain.Performance{AvgAccuracy: 0.5, AvgError: 10, ImprovementRate: 0.1})
	require.NoError(t, err)

	avgErr := 4.0
	require.NoError(t, store.UpdatePerformance(ctx, v.ID,
		domain.PerformanceUpdate{AvgError: &avgErr}))

	got, err := store.GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.Performance.AvgError, 1e-9)
	assert.InDelta(t, 0.5, got.Performance.AvgAccuracy, 1e-9)
	assert.InDelta(t, 0.1, got.Performance.ImprovementRate, 1e-9)
}

func TestFindings_MarkAppliedFlipsOnce(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	finding := domain.ResearchFinding{
		ID:        "f1",
		Title:     "entity clarity matters",
		Type:      domain.AlgorithmGEO,
		CreatedAt: clock.Now(),
	}
	require.NoError(t, store.InsertFinding(ctx, finding))

	unapplied, err := store.ListUnapplied(ctx, nil)
	require.NoError(t, err)
	require.Len(t, unapplied, 1)

	require.NoError(t, store.MarkApplied(ctx, "f1", "v1", clock.Now()))
	err = store.MarkApplied(ctx, "f1", "v2", clock.Now())
	require.ErrorIs(t, err, domain.ErrConflict)

	applied, err := store.GetFinding(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "v1", applied.AppliedVersionID)

	unapplied, err = store.ListUnapplied(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

func TestListUnapplied_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	for _, f := range []domain.ResearchFinding{
		{ID: "a", Title: "first", Type: domain.AlgorithmSEO, CreatedAt: clock.Now()},
		{ID: "b", Title: "second", Type: domain.AlgorithmGEO, CreatedAt: clock.Now()},
		{ID: "c", Title: "third", Type: domain.AlgorithmSEO, CreatedAt: clock.Now()},
	} {
		require.NoError(t, store.InsertFinding(ctx, f))
	}

	seo := domain.AlgorithmSEO
	findings, err := store.ListUnapplied(ctx, &seo)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "a", findings[0].ID)
	assert.Equal(t, "c", findings[1].ID)
}

func TestTests_ListSinceAndLimit(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	var stamps []time.Time
	for i := 0; i < 5; i++ {
		at := clock.Now()
		stamps = append(stamps, at)
		require.NoError(t, store.InsertTest(ctx, domain.AlgorithmTest{
			ID:        string(rune('a' + i)),
			Type:      domain.AlgorithmSEO,
			ScoreA:    float64(50 + i),
			ScoreB:    60,
			CreatedAt: at,
		}))
	}

	// Since the third record, all following are returned oldest first.
	tests, err := store.ListTests(ctx, domain.AlgorithmSEO, stamps[2], 0)
	require.NoError(t, err)
	require.Len(t, tests, 3)
	assert.Equal(t, "c", tests[0].ID)
	assert.Equal(t, "e", tests[2].ID)

	// A limit keeps the most recent matches.
	tests, err = store.ListTests(ctx, domain.AlgorithmSEO, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "d", tests[0].ID)
	assert.Equal(t, "e", tests[1].ID)
}

func TestSetOutcome_DerivesWinner(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	require.NoError(t, store.InsertTest(ctx, domain.AlgorithmTest{
		ID: "t1", Type: domain.AlgorithmSEO, ScoreA: 50, ScoreB: 60, CreatedAt: clock.Now(),
	}))

	updated, err := store.SetOutcome(ctx, "t1", 52)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerA, updated.Winner)
	require.NotNil(t, updated.ActualScore)

	_, err = store.SetOutcome(ctx, "missing", 52)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplates_RewardFoldAndBest(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	lucky, err := store.CreateTemplate(ctx, domain.AgentChat, "lucky variant")
	require.NoError(t, err)
	steady, err := store.CreateTemplate(ctx, domain.AgentChat, "steady variant")
	require.NoError(t, err)
	assert.Equal(t, 1, lucky.Version)
	assert.Equal(t, 2, steady.Version)

	_, err = store.ApplyReward(ctx, lucky.ID, 99, 70)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = store.ApplyReward(ctx, steady.ID, 75, 70)
		require.NoError(t, err)
	}

	updated, err := store.GetTemplate(ctx, steady.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalUses)
	assert.InDelta(t, 75, updated.AvgScore, 1e-9)
	assert.InDelta(t, 1.0, updated.SuccessRate, 1e-9)

	// The lucky single use cannot outrank the steady variant.
	best, err := store.BestTemplate(ctx, domain.AgentChat, 3)
	require.NoError(t, err)
	assert.Equal(t, steady.ID, best.ID)

	_, err = store.BestTemplate(ctx, domain.AgentSuggestions, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDailyMetrics_FoldAndImprovement(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	today := clock.Now()
	yesterday := today.AddDate(0, 0, -1)

	_, err := store.ApplyDailyReward(ctx, domain.AgentChat, yesterday, 60, 1)
	require.NoError(t, err)

	bucket, err := store.ApplyDailyReward(ctx, domain.AgentChat, today, 75, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, bucket.TotalSpans)
	assert.InDelta(t, 75, bucket.AvgReward, 1e-9)
	assert.InDelta(t, 0.25, bucket.ImprovementRate, 1e-9) // (75-60)/60
	assert.Equal(t, 2, bucket.BestPromptVersion)

	got, err := store.GetDaily(ctx, domain.AgentChat, today)
	require.NoError(t, err)
	assert.Equal(t, bucket.TotalSpans, got.TotalSpans)

	_, err = store.GetDaily(ctx, domain.AgentChat, today.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertSpan(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	require.NoError(t, store.InsertSpan(ctx, domain.AgentReward{
		ID:        "s1",
		Agent:     domain.AgentChat,
		Span:      domain.SpanPrompt,
		Payload:   domain.SpanPayload{Message: "hello"},
		Reward:    nil,
		CreatedAt: clock.Now(),
	}))
}

func TestConcurrentPromotes_LeaveExactlyOneActive(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	ids := make([]string, 8)
	for i := range ids {
		v, err := store.CreateVersion(ctx, domain.AlgorithmSEO,
			domain.Weights{"keywordDensity": float64(i + 1)}, false, domain.Performance{})
		require.NoError(t, err)
		ids[i] = v.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Promote(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := store.ListVersions(ctx, domain.AlgorithmSEO)
	require.NoError(t, err)
	activeCount := 0
	for _, v := range history {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	active, err := store.GetActive(ctx, domain.AlgorithmSEO)
	require.NoError(t, err)
	assert.True(t, active.IsActive)
}
