package config

import (
	"errors"
	"fmt"

	"github.com/cartridge/valuerl/internal/learner"
)

// ErrConfiguration is returned for missing or out-of-range settings.
var ErrConfiguration = errors.New("invalid configuration")

// Hyperparameters holds the agent's learning configuration
type Hyperparameters struct {
	LearningRate          float64 `mapstructure:"learning_rate" json:"learning_rate"`
	Gamma                 float64 `mapstructure:"gamma" json:"gamma"`
	EpsilonStart          float64 `mapstructure:"epsilon_start" json:"epsilon_start"`
	EpsilonMin            float64 `mapstructure:"epsilon_min" json:"epsilon_min"`
	EpsilonDecay          float64 `mapstructure:"epsilon_decay" json:"epsilon_decay"`
	BatchSize             int     `mapstructure:"batch_size" json:"batch_size"`
	TargetUpdateFrequency int     `mapstructure:"target_update_frequency" json:"target_update_frequency"`
	BurnInPeriod          int     `mapstructure:"burn_in_period" json:"burn_in_period"`

	// Double DQN only
	SoftUpdate bool    `mapstructure:"soft_update" json:"soft_update"`
	TWeight    float64 `mapstructure:"t_weight" json:"t_weight"`
}

// DefaultHyperparameters returns the documented defaults for a variant
func DefaultHyperparameters(variant learner.Variant) Hyperparameters {
	h := Hyperparameters{
		LearningRate:          0.0001,
		Gamma:                 0.99,
		EpsilonStart:          1.0,
		EpsilonMin:            0.0001,
		EpsilonDecay:          0.986,
		BatchSize:             32,
		TargetUpdateFrequency: 1000,
		BurnInPeriod:          7000,
		TWeight:               0.2,
	}

	switch variant {
	case learner.DQV:
		h.LearningRate = 0.00025
		h.EpsilonMin = 0.001
		h.EpsilonDecay = 0.9998
		h.TargetUpdateFrequency = 2000
	case learner.DQVMax:
		h.LearningRate = 0.00025
		h.EpsilonStart = 0.5
		h.EpsilonMin = 0.001
		h.EpsilonDecay = 0.9998
		h.TargetUpdateFrequency = 200
	}

	return h
}

// Validate checks the hyperparameters for variant
func (h Hyperparameters) Validate(variant learner.Variant) error {
	switch {
	case h.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate must be positive, got %g", ErrConfiguration, h.LearningRate)
	case h.Gamma < 0 || h.Gamma > 1:
		return fmt.Errorf("%w: gamma must be in [0, 1], got %g", ErrConfiguration, h.Gamma)
	case h.EpsilonStart < 0 || h.EpsilonStart > 1:
		return fmt.Errorf("%w: epsilon_start must be in [0, 1], got %g", ErrConfiguration, h.EpsilonStart)
	case h.EpsilonMin < 0 || h.EpsilonMin > h.EpsilonStart:
		return fmt.Errorf("%w: epsilon_min must be in [0, epsilon_start], got %g", ErrConfiguration, h.EpsilonMin)
	case h.EpsilonDecay <= 0 || h.EpsilonDecay > 1:
		return fmt.Errorf("%w: epsilon_decay must be in (0, 1], got %g", ErrConfiguration, h.EpsilonDecay)
	case h.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive", ErrConfiguration)
	case h.TargetUpdateFrequency <= 0:
		return fmt.Errorf("%w: target_update_frequency must be positive", ErrConfiguration)
	case h.BurnInPeriod < h.BatchSize:
		return fmt.Errorf("%w: burn_in_period (%d) must be at least batch_size (%d)", ErrConfiguration, h.BurnInPeriod, h.BatchSize)
	}

	if h.SoftUpdate {
		if variant != learner.DoubleDQN {
			return fmt.Errorf("%w: soft_update is only supported by %v", ErrConfiguration, learner.DoubleDQN)
		}
		if h.TWeight <= 0 || h.TWeight >= 1 {
			return fmt.Errorf("%w: t_weight must be in (0, 1), got %g", ErrConfiguration, h.TWeight)
		}
	}
	return nil
}

// Settings converts the hyperparameters into learning rule settings
func (h Hyperparameters) Settings() learner.Settings {
	return learner.Settings{
		Gamma:      h.Gamma,
		SyncEvery:  h.TargetUpdateFrequency,
		SoftUpdate: h.SoftUpdate,
		Tau:        h.TWeight,
	}
}

func (h Hyperparameters) asMap() map[string]any {
	return map[string]any{
		"learning_rate":           h.LearningRate,
		"gamma":                   h.Gamma,
		"epsilon_start":           h.EpsilonStart,
		"epsilon_min":             h.EpsilonMin,
		"epsilon_decay":           h.EpsilonDecay,
		"batch_size":              h.BatchSize,
		"target_update_frequency": h.TargetUpdateFrequency,
		"burn_in_period":          h.BurnInPeriod,
		"soft_update":             h.SoftUpdate,
		"t_weight":                h.TWeight,
	}
}
