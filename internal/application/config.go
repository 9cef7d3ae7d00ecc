// Package application wires the engine's services together: version
// management, research ingestion, A/B testing with the periodic learning
// trigger, and the reward pipeline. Services depend only on the ports
// package; storage and evaluator implementations are injected.
package application

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/visably/optimo/internal/learning"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// Config is the complete engine configuration.
type Config struct {
	// Learning bounds the weight learner's step sizes.
	Learning learning.Config `yaml:"learning" validate:"required"`

	// Trigger configures the periodic learning trigger.
	Trigger TriggerConfig `yaml:"trigger" validate:"required"`

	// Reward configures the reward pipeline.
	Reward RewardConfig `yaml:"reward" validate:"required"`
}

// TriggerConfig bounds one run of the periodic learning trigger.
type TriggerConfig struct {
	// BatchSize caps how many recent tests one learning cycle pulls.
	// This is the cycle's execution budget.
	BatchSize int `yaml:"batch_size" validate:"min=1,max=10000"`

	// MinImprovementRate gates promotion: a learned vector is only
	// promoted when its measured improvement strictly exceeds this
	// threshold.
	MinImprovementRate float64 `yaml:"min_improvement_rate" validate:"gte=0,lt=1"`
}

// RewardConfig tunes the reward pipeline's best-effort channel and the
// template ranking policy.
type RewardConfig struct {
	// QueueCapacity bounds the outbox. A full queue drops the event
	// rather than blocking the caller.
	QueueCapacity int `yaml:"queue_capacity" validate:"min=1,max=1000000"`

	// SuccessThreshold is the reward score (0-100) at or above which an
	// interaction counts toward a template's success rate.
	SuccessThreshold float64 `yaml:"success_threshold" validate:"gte=0,lte=100"`

	// MinSampleSize is the minimum recorded uses before a template can
	// be ranked best, so a single lucky use cannot crown it.
	MinSampleSize int `yaml:"min_sample_size" validate:"min=1,max=100000"`
}

// DefaultConfig returns production defaults for every knob.
func DefaultConfig() Config {
	return Config{
		Learning: learning.DefaultConfig(),
		Trigger: TriggerConfig{
			BatchSize:          200,
			MinImprovementRate: 0.02,
		},
		Reward: RewardConfig{
			QueueCapacity:    1024,
			SuccessThreshold: 70,
			MinSampleSize:    5,
		},
	}
}

// LoadConfig reads a yaml configuration file, overlaying it onto the
// defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
