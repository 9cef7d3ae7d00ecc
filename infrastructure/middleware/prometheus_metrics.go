// Package middleware provides cross-cutting concerns for the optimization
// engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/visably/optimo/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It covers the learning trigger, the A/B comparison flow, and
// the reward pipeline's drop and failure accounting.
type PrometheusMetrics struct {
	abtestsCreated   *prometheus.CounterVec
	promotions       *prometheus.CounterVec
	improvementRate  *prometheus.GaugeVec
	rewardsProcessed *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	storeFailures    *prometheus.CounterVec
	operationCounter *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// all metrics in the global Prometheus registry. Call it at most once per
// process; promauto panics on duplicate registration.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		abtestsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimo_abtests_created_total",
				Help: "Total number of A/B comparison records created.",
			},
			[]string{"algorithm_type"},
		),
		promotions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimo_learning_promotions_total",
				Help: "Total number of learned versions promoted to active.",
			},
			[]string{"algorithm_type"},
		),
		improvementRate: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimo_learning_improvement_rate",
				Help: "Improvement rate measured by the most recent learning cycle.",
			},
			[]string{"algorithm_type"},
		),
		rewardsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimo_rewards_processed_total",
				Help: "Total number of reward events folded into template stats.",
			},
			[]string{"agent"},
		),
		eventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimo_reward_events_dropped_total",
				Help: "Total number of reward events dropped before processing.",
			},
			[]string{"reason"},
		),
		storeFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimo_reward_store_failures_total",
				Help: "Total number of store writes the reward pipeline lost.",
			},
			[]string{"operation"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimo_operations_total",
				Help: "Total number of engine operations by name.",
			},
			[]string{"operation"},
		),
		operationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optimo_operation_duration_seconds",
				Help:    "Execution time of engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "agent"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optimo_system_state",
				Help: "Current engine state values by metric name.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationLatency.WithLabelValues(operation, labels["agent"]).
		Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters. Known engine metrics route to their dedicated
// labeled series; everything else lands on the generic operation counter.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "abtests_created_total":
		pm.abtestsCreated.WithLabelValues(labels["algorithm_type"]).Add(value)
	case "learning_promotions_total":
		pm.promotions.WithLabelValues(labels["algorithm_type"]).Add(value)
	case "rewards_processed_total":
		pm.rewardsProcessed.WithLabelValues(labels["agent"]).Add(value)
	case "reward_events_dropped_total":
		pm.eventsDropped.WithLabelValues(labels["reason"]).Add(value)
	case "reward_store_failures_total":
		pm.storeFailures.WithLabelValues(labels["operation"]).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "learning_improvement_rate":
		pm.improvementRate.WithLabelValues(labels["algorithm_type"]).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
