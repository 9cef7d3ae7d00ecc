package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visably/optimo/internal/domain"
	"github.com/visably/optimo/internal/ports"
)

// rewardEvent is one unit of work on the pipeline's queue: a span record,
// optionally carrying a reward to fold into template and daily stats.
type rewardEvent struct {
	span domain.AgentReward
}

// RewardPipeline ingests interaction spans and reward signals on a bounded
// queue and folds them into prompt-template and daily rollup stats. Every
// write path is best effort: a full queue or a failing store drops the
// event with a log line and a counter, never an error to the caller. Reads
// (OptimizedPrompt, DailyMetrics) degrade to defaults on failure.
type RewardPipeline struct {
	spans     ports.SpanStore
	prompts   ports.PromptStore
	metrics   ports.MetricStore
	evaluator ports.ResponseEvaluator
	cfg       RewardConfig
	clock     ports.Clock
	logger    *zap.Logger
	collector ports.MetricsCollector

	queue chan rewardEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRewardPipeline creates a RewardPipeline and starts its drain
// goroutine. The three stores and the evaluator are required. Call Close to
// drain and stop the pipeline.
func NewRewardPipeline(
	spans ports.SpanStore,
	prompts ports.PromptStore,
	metrics ports.MetricStore,
	evaluator ports.ResponseEvaluator,
	cfg RewardConfig,
	clock ports.Clock,
	logger *zap.Logger,
	collector ports.MetricsCollector,
) (*RewardPipeline, error) {
	if spans == nil || prompts == nil || metrics == nil || evaluator == nil {
		return nil, domain.NewValidationError("reward", "spans, prompts, metrics stores and evaluator are required")
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
	if collector == nil {
		collector = ports.NopMetrics{}
	}

	p := &RewardPipeline{
		spans:     spans,
		prompts:   prompts,
		metrics:   metrics,
		evaluator: evaluator,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		collector: collector,
		queue:     make(chan rewardEvent, cfg.QueueCapacity),
		done:      make(chan struct{}),
	}
	go p.drain()
	return p, nil
}

// EmitSpan records one half of an interaction (the prompt or the response)
// without a reward. Invalid input or a full queue drops the event.
func (p *RewardPipeline) EmitSpan(agent domain.AgentType, span domain.SpanType, payload domain.SpanPayload) {
	if !agent.Valid() || !span.Valid() {
		p.logger.Warn("dropping span with invalid type",
			zap.String("agent", string(agent)), zap.String("span", string(span)))
		p.collector.RecordCounter("reward_events_dropped_total", 1,
			map[string]string{"reason": "invalid"})
		return
	}
	p.enqueue(rewardEvent{span: domain.AgentReward{
		ID:        uuid.NewString(),
		Agent:     agent,
		Span:      span,
		Payload:   payload,
		CreatedAt: p.clock.Now(),
	}})
}

// EmitReward records a scored response span and queues the reward for
// folding into the template's and the day's running stats. Invalid input or
// a full queue drops the event.
func (p *RewardPipeline) EmitReward(agent domain.AgentType, payload domain.SpanPayload, reward domain.RewardScore, templateID string) {
	if !agent.Valid() {
		p.logger.Warn("dropping reward with invalid agent type", zap.String("agent", string(agent)))
		p.collector.RecordCounter("reward_events_dropped_total", 1,
			map[string]string{"reason": "invalid"})
		return
	}
	if !reward.Valid() {
		p.logger.Warn("dropping reward with out-of-range score",
			zap.String("agent", string(agent)), zap.Float64("score", reward.Score))
		p.collector.RecordCounter("reward_events_dropped_total", 1,
			map[string]string{"reason": "invalid"})
		return
	}
	r := reward
	p.enqueue(rewardEvent{span: domain.AgentReward{
		ID:         uuid.NewString(),
		Agent:      agent,
		Span:       domain.SpanResponse,
		Payload:    payload,
		Reward:     &r,
		TemplateID: templateID,
		CreatedAt:  p.clock.Now(),
	}})
}

// EvaluateResponse scores a generated response through the configured
// evaluator. The caller decides whether to feed the result to EmitReward.
func (p *RewardPipeline) EvaluateResponse(ctx context.Context, agent domain.AgentType, response, evalContext string) (domain.RewardScore, error) {
	if !agent.Valid() {
		return domain.RewardScore{}, domain.NewValidationError("agentType", "unknown type "+string(agent))
	}
	start := p.clock.Now()
	score, err := p.evaluator.Evaluate(ctx, agent, response, evalContext)
	p.collector.RecordLatency("evaluate_response", time.Since(start),
		map[string]string{"agent": string(agent)})
	return score, err
}

// OptimizedPrompt returns the best-performing template for the agent type,
// falling back to the built-in default when no variant has accumulated the
// minimum sample size or the store read fails.
func (p *RewardPipeline) OptimizedPrompt(ctx context.Context, agent domain.AgentType) (string, int) {
	if !agent.Valid() {
		return "", 0
	}
	best, err := p.prompts.BestTemplate(ctx, agent, p.cfg.MinSampleSize)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Warn("best-template lookup failed, serving default prompt",
				zap.String("agent", string(agent)), zap.Error(err))
		}
		return DefaultPromptTemplate(agent), 0
	}
	return best.Template, best.Version
}

// CreateTemplate registers a new prompt variant for the agent type with
// zeroed stats.
func (p *RewardPipeline) CreateTemplate(ctx context.Context, agent domain.AgentType, template string) (*domain.PromptTemplate, error) {
	if !agent.Valid() {
		return nil, domain.NewValidationError("agentType", "unknown type "+string(agent))
	}
	if template == "" {
		return nil, domain.NewValidationError("template", "must not be empty")
	}
	return p.prompts.CreateTemplate(ctx, agent, template)
}

// DailyMetrics returns the rollup bucket for the agent type and day. A
// missing bucket or a failing read degrades to a zeroed bucket.
func (p *RewardPipeline) DailyMetrics(ctx context.Context, agent domain.AgentType, date time.Time) domain.LearningMetricDaily {
	day := date.UTC().Truncate(24 * time.Hour)
	bucket, err := p.metrics.GetDaily(ctx, agent, day)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Warn("daily metrics read degraded to empty bucket",
				zap.String("agent", string(agent)), zap.Error(err))
		}
		return domain.LearningMetricDaily{Agent: agent, Date: day}
	}
	return *bucket
}

// Close stops accepting events, drains the queue, and waits for the drain
// goroutine to exit. Safe to call more than once.
func (p *RewardPipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.queue)
	<-p.done
}

// enqueue offers the event to the queue without blocking. Events arriving
// after Close or while the queue is full are dropped.
func (p *RewardPipeline) enqueue(ev rewardEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.collector.RecordCounter("reward_events_dropped_total", 1,
			map[string]string{"reason": "closed"})
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("reward queue full, dropping event",
			zap.String("agent", string(ev.span.Agent)))
		p.collector.RecordCounter("reward_events_dropped_total", 1,
			map[string]string{"reason": "queue_full"})
	}
}

// drain is the single consumer of the queue. It runs until the queue is
// closed and drained.
func (p *RewardPipeline) drain() {
	defer close(p.done)
	for ev := range p.queue {
		p.process(ev)
	}
}

// process persists one event. Store failures are logged and counted; the
// remaining steps still run so a failed template fold does not also lose
// the daily rollup.
func (p *RewardPipeline) process(ev rewardEvent) {
	ctx := context.Background()

	if err := p.spans.InsertSpan(ctx, ev.span); err != nil {
		p.logger.Warn("span insert failed",
			zap.String("span_id", ev.span.ID), zap.Error(err))
		p.collector.RecordCounter("reward_store_failures_total", 1,
			map[string]string{"operation": "insert_span"})
	}

	if ev.span.Reward == nil {
		return
	}
	score := ev.span.Reward.Score

	if ev.span.TemplateID != "" {
		if _, err := p.prompts.ApplyReward(ctx, ev.span.TemplateID, score, p.cfg.SuccessThreshold); err != nil {
			p.logger.Warn("template reward fold failed",
				zap.String("template_id", ev.span.TemplateID), zap.Error(err))
			p.collector.RecordCounter("reward_store_failures_total", 1,
				map[string]string{"operation": "apply_reward"})
		}
	}

	bestVersion := 0
	if best, err := p.prompts.BestTemplate(ctx, ev.span.Agent, p.cfg.MinSampleSize); err == nil {
		bestVersion = best.Version
	} else if !errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("best-template lookup failed during rollup",
			zap.String("agent", string(ev.span.Agent)), zap.Error(err))
	}

	day := ev.span.CreatedAt.UTC().Truncate(24 * time.Hour)
	if _, err := p.metrics.ApplyDailyReward(ctx, ev.span.Agent, day, score, bestVersion); err != nil {
		p.logger.Warn("daily rollup fold failed",
			zap.String("agent", string(ev.span.Agent)), zap.Error(err))
		p.collector.RecordCounter("reward_store_failures_total", 1,
			map[string]string{"operation": "apply_daily_reward"})
	}

	p.collector.RecordCounter("rewards_processed_total", 1,
		map[string]string{"agent": string(ev.span.Agent)})
}
