package metrics

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/valuerl/internal/learner"
)

// Collector logs training metrics as structured events
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track completed learning steps
func (c *Collector) LearnStep(variant learner.Variant, res learner.Result, latency time.Duration) {
	evt := c.logger.Debug().
		Str("metric", "learn_step").
		Str("variant", variant.String()).
		Int("step", res.Step).
		Float64("epsilon", res.Epsilon).
		Dur("latency", latency)
	for name, loss := range res.Losses {
		evt = evt.Float64("loss_"+name, loss)
	}
	evt.Msg("Learn step metric")
}

// Track target network refreshes
func (c *Collector) TargetSync(variant learner.Variant, step int, mode string) {
	c.logger.Info().
		Str("metric", "target_sync").
		Str("variant", variant.String()).
		Int("step", step).
		Str("mode", mode).
		Msg("Target sync metric")
}

// Track finished episodes
func (c *Collector) EpisodeCompleted(runID string, episode, steps int, episodeReturn, epsilon float64) {
	c.logger.Info().
		Str("metric", "episode_completed").
		Str("run_id", runID).
		Int("episode", episode).
		Int("steps", steps).
		Float64("return", episodeReturn).
		Float64("epsilon", epsilon).
		Msg("Episode metric")
}
