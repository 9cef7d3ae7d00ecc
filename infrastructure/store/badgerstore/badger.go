// Package badgerstore implements ports.Store on BadgerDB, an embedded
// key-value store. Rows are JSON-encoded; secondary index keys keep
// per-type version ordering and time-ordered test scans cheap. All
// read-modify-write operations run in a single Badger transaction and
// retry on optimistic-concurrency conflicts.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/ports"
)

var _ ports.Store = (*Store)(nil)

// txnRetries bounds retry attempts on badger.ErrConflict.
const txnRetries = 10

// Key prefixes. Row keys hold the JSON record; index keys hold the row id.
//
//	av:<id>                      algorithm version row
//	avt:<type>:<version %06d>    per-type version index
//	ava:<type>                   active version pointer
//	rf:<id>                      research finding row
//	at:<id>                      a/b test row
//	att:<type>:<nanos %020d>:<id> per-type time index for tests
//	pt:<id>                      prompt template row
//	ptt:<agent>:<version %06d>   per-agent template index
//	sp:<nanos %020d>:<id>        span row, append only
//	md:<agent>:<yyyy-mm-dd>      daily metric row
const (
	prefixVersion       = "av:"
	prefixVersionIndex  = "avt:"
	prefixActive        = "ava:"
	prefixFinding       = "rf:"
	prefixTest          = "at:"
	prefixTestIndex     = "att:"
	prefixTemplate      = "pt:"
	prefixTemplateIndex = "ptt:"
	prefixSpan          = "sp:"
	prefixDaily         = "md:"
)

// Config holds the settings for a Badger-backed store.
type Config struct {
	// Path is the directory for the database files. Required unless
	// InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps the whole store in RAM, for tests.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `yaml:"sync_writes"`
}

// DefaultConfig returns production defaults: persistent, synchronous
// writes.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// Store implements ports.Store on BadgerDB.
type Store struct {
	db     *badger.DB
	clock  ports.Clock
	logger *zap.Logger
}

// badgerLogger adapts zap to Badger's logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.logger.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }

// Open opens the store, creating the database directory when needed. A nil
// clock defaults to the system clock and a nil logger to a no-op logger.
// Call Close when done.
func Open(cfg Config, clock ports.Clock, logger *zap.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, clock: clock, logger: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// update runs fn in a read-write transaction, retrying on optimistic
// conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if err == nil || !errors.Is(err, badger.ErrConflict) || attempt >= txnRetries {
			return err
		}
	}
}

func putJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

func notFound(err error) bool { return errors.Is(err, badger.ErrKeyNotFound) }

// persistenceErr marks an infrastructure cause with domain.ErrPersistence.
// Domain sentinels and context errors pass through untouched so callers
// keep matching the failure they actually hit.
func persistenceErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

func versionKey(id string) string { return prefixVersion + id }

func versionIndexKey(t domain.AlgorithmType, version int) string {
	return fmt.Sprintf("%s%s:%06d", prefixVersionIndex, t, version)
}

func activeKey(t domain.AlgorithmType) string { return prefixActive + string(t) }

func testIndexKey(t domain.AlgorithmType, at time.Time, id string) string {
	return fmt.Sprintf("%s%s:%020d:%s", prefixTestIndex, t, at.UnixNano(), id)
}

func templateIndexKey(agent domain.AgentType, version int) string {
	return fmt.Sprintf("%s%s:%06d", prefixTemplateIndex, agent, version)
}

func dailyKey(agent domain.AgentType, day time.Time) string {
	return prefixDaily + string(agent) + ":" + day.UTC().Format("2006-01-02")
}

// GetActive implements ports.VersionStore.
func (s *Store) GetActive(ctx context.Context, t domain.AlgorithmType) (*domain.AlgorithmVersion, error) {
	var version domain.AlgorithmVersion
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(activeKey(t)))
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(data []byte) error {
			id = string(data)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, versionKey(id), &version)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("algorithm_version", "get_active", domain.ErrNotInitialized)
	}
	if err != nil {
		return nil, domain.NewStoreError("algorithm_version", "get_active", persistenceErr(err))
	}
	return &version, nil
}

// GetVersion implements ports.VersionStore.
func (s *Store) GetVersion(ctx context.Context, id string) (*domain.AlgorithmVersion, error) {
	var version domain.AlgorithmVersion
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, versionKey(id), &version)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("algorithm_version", "get", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("algorithm_version", "get", persistenceErr(err))
	}
	return &version, nil
}

// ListVersions implements ports.VersionStore. The per-type index is
// iterated in reverse so the newest version comes first.
func (s *Store) ListVersions(ctx context.Context, t domain.AlgorithmType) ([]domain.AlgorithmVersion, error) {
	var versions []domain.AlgorithmVersion
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixVersionIndex + string(t) + ":")
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(data []byte) error {
				id = string(data)
				return nil
			}); err != nil {
				return err
			}
			var version domain.AlgorithmVersion
			if err := getJSON(txn, versionKey(id), &version); err != nil {
				return err
			}
			versions = append(versions, version)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("algorithm_version", "list", persistenceErr(err))
	}
	return versions, nil
}

// CreateVersion implements ports.VersionStore. The next version number is
// read from the tail of the per-type index inside the same transaction
// that inserts the row, so concurrent creators cannot collide.
func (s *Store) CreateVersion(
	ctx context.Context,
	t domain.AlgorithmType,
	weights domain.Weights,
	researchBased bool,
	perf domain.Performance,
) (*domain.AlgorithmVersion, error) {
	version := domain.AlgorithmVersion{
		ID:            uuid.NewString(),
		Type:          t,
		Weights:       weights.Clone(),
		ResearchBased: researchBased,
		Performance:   perf,
		CreatedAt:     s.clock.Now(),
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		version.Version = nextIndexNumber(txn, prefixVersionIndex+string(t)+":")
		if err := putJSON(txn, versionKey(version.ID), version); err != nil {
			return err
		}
		return txn.Set([]byte(versionIndexKey(t, version.Version)), []byte(version.ID))
	})
	if err != nil {
		return nil, domain.NewStoreError("algorithm_version", "create", persistenceErr(err))
	}
	return &version, nil
}

// nextIndexNumber returns one past the highest allocated number under a
// numeric index prefix.
func nextIndexNumber(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefixBytes := []byte(prefix)
	seek := append(append([]byte{}, prefixBytes...), 0xff)
	it.Seek(seek)
	if !it.ValidForPrefix(prefixBytes) {
		return 1
	}
	var last int
	fmt.Sscanf(string(it.Item().Key()[len(prefixBytes):]), "%d", &last)
	return last + 1
}

// Promote implements ports.VersionStore. The pointer flip and both row
// updates commit in one transaction, so readers never observe zero or two
// active versions.
func (s *Store) Promote(ctx context.Context, id string) (*domain.AlgorithmVersion, error) {
	var promoted domain.AlgorithmVersion
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, versionKey(id), &promoted); err != nil {
			return err
		}

		key := activeKey(promoted.Type)
		if item, err := txn.Get([]byte(key)); err == nil {
			var oldID string
			if err := item.Value(func(data []byte) error {
				oldID = string(data)
				return nil
			}); err != nil {
				return err
			}
			if oldID != id {
				var old domain.AlgorithmVersion
				if err := getJSON(txn, versionKey(oldID), &old); err != nil {
					return err
				}
				old.IsActive = false
				if err := putJSON(txn, versionKey(oldID), old); err != nil {
					return err
				}
			}
		} else if !notFound(err) {
			return err
		}

		promoted.IsActive = true
		if err := putJSON(txn, versionKey(id), promoted); err != nil {
			return err
		}
		return txn.Set([]byte(key), []byte(id))
	})
	if notFound(err) {
		return nil, domain.NewStoreError("algorithm_version", "promote", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("algorithm_version", "promote", persistenceErr(err))
	}
	return &promoted, nil
}

// UpdatePerformance implements ports.VersionStore.
func (s *Store) UpdatePerformance(ctx context.Context, id string, update domain.PerformanceUpdate) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var version domain.AlgorithmVersion
		if err := getJSON(txn, versionKey(id), &version); err != nil {
			return err
		}
		update.Apply(&version.Performance)
		return putJSON(txn, versionKey(id), version)
	})
	if notFound(err) {
		return domain.NewStoreError("algorithm_version", "update_performance", domain.ErrNotFound)
	}
	if err != nil {
		return domain.NewStoreError("algorithm_version", "update_performance", persistenceErr(err))
	}
	return nil
}

// InsertFinding implements ports.FindingStore.
func (s *Store) InsertFinding(ctx context.Context, f domain.ResearchFinding) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, prefixFinding+f.ID, f)
	})
	if err != nil {
		return domain.NewStoreError("research_finding", "insert", persistenceErr(err))
	}
	return nil
}

// GetFinding implements ports.FindingStore.
func (s *Store) GetFinding(ctx context.Context, id string) (*domain.ResearchFinding, error) {
	var finding domain.ResearchFinding
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixFinding+id, &finding)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("research_finding", "get", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("research_finding", "get", persistenceErr(err))
	}
	return &finding, nil
}

// ListUnapplied implements ports.FindingStore. Findings are few, so a
// prefix scan with an in-memory sort keeps the schema simple.
func (s *Store) ListUnapplied(ctx context.Context, t *domain.AlgorithmType) ([]domain.ResearchFinding, error) {
	var findings []domain.ResearchFinding
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixFinding)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var finding domain.ResearchFinding
			if err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &finding)
			}); err != nil {
				return err
			}
			if finding.Applied {
				continue
			}
			if t != nil && finding.Type != *t {
				continue
			}
			findings = append(findings, finding)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("research_finding", "list_unapplied", persistenceErr(err))
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].CreatedAt.Before(findings[j].CreatedAt)
	})
	return findings, nil
}

// MarkApplied implements ports.FindingStore. The applied flag flips at
// most once; a second call observes it inside the transaction and fails
// with ErrConflict.
func (s *Store) MarkApplied(ctx context.Context, findingID, versionID string, at time.Time) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var finding domain.ResearchFinding
		if err := getJSON(txn, prefixFinding+findingID, &finding); err != nil {
			return err
		}
		if finding.Applied {
			return domain.ErrConflict
		}
		finding.Applied = true
		finding.AppliedAt = &at
		finding.AppliedVersionID = versionID
		return putJSON(txn, prefixFinding+findingID, finding)
	})
	if notFound(err) {
		return domain.NewStoreError("research_finding", "mark_applied", domain.ErrNotFound)
	}
	if errors.Is(err, domain.ErrConflict) {
		return domain.NewStoreError("research_finding", "mark_applied", domain.ErrConflict)
	}
	if err != nil {
		return domain.NewStoreError("research_finding", "mark_applied", persistenceErr(err))
	}
	return nil
}

// InsertTest implements ports.TestStore.
func (s *Store) InsertTest(ctx context.Context, test domain.AlgorithmTest) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := putJSON(txn, prefixTest+test.ID, test); err != nil {
			return err
		}
		return txn.Set([]byte(testIndexKey(test.Type, test.CreatedAt, test.ID)), []byte(test.ID))
	})
	if err != nil {
		return domain.NewStoreError("algorithm_test", "insert", persistenceErr(err))
	}
	return nil
}

// GetTest implements ports.TestStore.
func (s *Store) GetTest(ctx context.Context, id string) (*domain.AlgorithmTest, error) {
	var test domain.AlgorithmTest
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixTest+id, &test)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("algorithm_test", "get", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("algorithm_test", "get", persistenceErr(err))
	}
	return &test, nil
}

// SetOutcome implements ports.TestStore. The winner is re-derived in the
// same transaction that records the outcome.
func (s *Store) SetOutcome(ctx context.Context, id string, actual float64) (*domain.AlgorithmTest, error) {
	var test domain.AlgorithmTest
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTest+id, &test); err != nil {
			return err
		}
		test.ActualScore = &actual
		test.Winner = domain.DeriveWinner(test.ScoreA, test.ScoreB, &actual)
		return putJSON(txn, prefixTest+id, test)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("algorithm_test", "set_outcome", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("algorithm_test", "set_outcome", persistenceErr(err))
	}
	return &test, nil
}

// ListTests implements ports.TestStore. The time index yields tests oldest
// first; when more than limit match, the most recent ones are kept.
func (s *Store) ListTests(ctx context.Context, t domain.AlgorithmType, since time.Time, limit int) ([]domain.AlgorithmTest, error) {
	var tests []domain.AlgorithmTest
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixTestIndex + string(t) + ":")
		seek := []byte(fmt.Sprintf("%s%s:%020d:", prefixTestIndex, t, since.UnixNano()))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(data []byte) error {
				id = string(data)
				return nil
			}); err != nil {
				return err
			}
			var test domain.AlgorithmTest
			if err := getJSON(txn, prefixTest+id, &test); err != nil {
				return err
			}
			tests = append(tests, test)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("algorithm_test", "list", persistenceErr(err))
	}
	if limit > 0 && len(tests) > limit {
		tests = tests[len(tests)-limit:]
	}
	return tests, nil
}

// CreateTemplate implements ports.PromptStore.
func (s *Store) CreateTemplate(ctx context.Context, agent domain.AgentType, template string) (*domain.PromptTemplate, error) {
	tmpl := domain.PromptTemplate{
		ID:        uuid.NewString(),
		Agent:     agent,
		Template:  template,
		CreatedAt: s.clock.Now(),
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		tmpl.Version = nextIndexNumber(txn, prefixTemplateIndex+string(agent)+":")
		if err := putJSON(txn, prefixTemplate+tmpl.ID, tmpl); err != nil {
			return err
		}
		return txn.Set([]byte(templateIndexKey(agent, tmpl.Version)), []byte(tmpl.ID))
	})
	if err != nil {
		return nil, domain.NewStoreError("prompt_template", "create", persistenceErr(err))
	}
	return &tmpl, nil
}

// GetTemplate implements ports.PromptStore.
func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.PromptTemplate, error) {
	var tmpl domain.PromptTemplate
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixTemplate+id, &tmpl)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("prompt_template", "get", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("prompt_template", "get", persistenceErr(err))
	}
	return &tmpl, nil
}

// ListTemplates implements ports.PromptStore, newest version first.
func (s *Store) ListTemplates(ctx context.Context, agent domain.AgentType) ([]domain.PromptTemplate, error) {
	var templates []domain.PromptTemplate
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixTemplateIndex + string(agent) + ":")
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(data []byte) error {
				id = string(data)
				return nil
			}); err != nil {
				return err
			}
			var tmpl domain.PromptTemplate
			if err := getJSON(txn, prefixTemplate+id, &tmpl); err != nil {
				return err
			}
			templates = append(templates, tmpl)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("prompt_template", "list", persistenceErr(err))
	}
	return templates, nil
}

// ApplyReward implements ports.PromptStore. The fold runs inside the
// transaction, so concurrent rewards serialize through conflict retries
// instead of losing updates.
func (s *Store) ApplyReward(ctx context.Context, templateID string, score, successThreshold float64) (*domain.PromptTemplate, error) {
	var tmpl domain.PromptTemplate
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, prefixTemplate+templateID, &tmpl); err != nil {
			return err
		}
		tmpl.FoldReward(score, successThreshold)
		return putJSON(txn, prefixTemplate+templateID, tmpl)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("prompt_template", "apply_reward", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("prompt_template", "apply_reward", persistenceErr(err))
	}
	return &tmpl, nil
}

// BestTemplate implements ports.PromptStore.
func (s *Store) BestTemplate(ctx context.Context, agent domain.AgentType, minUses int) (*domain.PromptTemplate, error) {
	templates, err := s.ListTemplates(ctx, agent)
	if err != nil {
		return nil, err
	}
	var best *domain.PromptTemplate
	for i := range templates {
		tmpl := &templates[i]
		if tmpl.TotalUses < minUses {
			continue
		}
		if best == nil || tmpl.AvgScore > best.AvgScore {
			best = tmpl
		}
	}
	if best == nil {
		return nil, domain.NewStoreError("prompt_template", "best", domain.ErrNotFound)
	}
	return best, nil
}

// InsertSpan implements ports.SpanStore.
func (s *Store) InsertSpan(ctx context.Context, span domain.AgentReward) error {
	key := fmt.Sprintf("%s%020d:%s", prefixSpan, span.CreatedAt.UnixNano(), span.ID)
	err := s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, key, span)
	})
	if err != nil {
		return domain.NewStoreError("agent_reward", "insert", persistenceErr(err))
	}
	return nil
}

// ApplyDailyReward implements ports.MetricStore. The previous day's bucket
// is read inside the same transaction so the improvement rate and the fold
// stay consistent.
func (s *Store) ApplyDailyReward(
	ctx context.Context,
	agent domain.AgentType,
	date time.Time,
	score float64,
	bestPromptVersion int,
) (*domain.LearningMetricDaily, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	var bucket domain.LearningMetricDaily
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, dailyKey(agent, day), &bucket); err != nil {
			if !notFound(err) {
				return err
			}
			bucket = domain.LearningMetricDaily{Agent: agent, Date: day}
		}

		var previousAvg *float64
		var previous domain.LearningMetricDaily
		prevErr := getJSON(txn, dailyKey(agent, day.AddDate(0, 0, -1)), &previous)
		if prevErr == nil && previous.TotalSpans > 0 {
			previousAvg = &previous.AvgReward
		} else if prevErr != nil && !notFound(prevErr) {
			return prevErr
		}

		bucket.FoldReward(score, previousAvg, bestPromptVersion)
		return putJSON(txn, dailyKey(agent, day), bucket)
	})
	if err != nil {
		return nil, domain.NewStoreError("learning_metric", "apply_daily_reward", persistenceErr(err))
	}
	return &bucket, nil
}

// GetDaily implements ports.MetricStore.
func (s *Store) GetDaily(ctx context.Context, agent domain.AgentType, date time.Time) (*domain.LearningMetricDaily, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	var bucket domain.LearningMetricDaily
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, dailyKey(agent, day), &bucket)
	})
	if notFound(err) {
		return nil, domain.NewStoreError("learning_metric", "get_daily", domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStoreError("learning_metric", "get_daily", persistenceErr(err))
	}
	return &bucket, nil
}
