package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/valuerl/internal/env"
	"github.com/cartridge/valuerl/internal/events"
	"github.com/cartridge/valuerl/internal/learner"
	"github.com/cartridge/valuerl/internal/metrics"
	"github.com/cartridge/valuerl/internal/storage"
)

// returnWindow is the number of recent episodes averaged into MeanReturn.
const returnWindow = 100

// Learner is the agent surface driven by the episode loop.
type Learner interface {
	ChooseAction(observation []float64) (int, error)
	StoreTransition(state []float64, action int, reward float64, nextState []float64, done bool) error
	Learn() (*learner.Result, error)
	Epsilon() float64
	Steps() int
	Variant() learner.Variant
	SyncMode() string
	ReplayStats() storage.Stats
}

// Config controls episode management.
type Config struct {
	// MaxEpisodes stops the loop after this many episodes; -1 runs until
	// the context is cancelled.
	MaxEpisodes int
	// MaxSteps truncates an episode that has not terminated.
	MaxSteps int
}

// Stats is a point-in-time snapshot of training progress.
type Stats struct {
	RunID      string        `json:"run_id"`
	Variant    string        `json:"variant"`
	Running    bool          `json:"running"`
	Episodes   int           `json:"episodes"`
	TotalSteps int           `json:"total_steps"`
	LearnSteps int           `json:"learn_steps"`
	Epsilon    float64       `json:"epsilon"`
	LastReturn float64       `json:"last_return"`
	MeanReturn float64       `json:"mean_return"`
	Replay     storage.Stats `json:"replay"`
}

// Actor runs episodes of an environment against a learning agent
type Actor struct {
	cfg       Config
	env       env.Environment
	agent     Learner
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    zerolog.Logger
	runID     string

	mu      sync.RWMutex
	stats   Stats
	returns []float64
}

// New creates a new actor instance. A nil publisher discards events and a
// nil collector skips metrics.
func New(cfg Config, environment env.Environment, agent Learner, publisher events.Publisher, collector *metrics.Collector, logger zerolog.Logger) (*Actor, error) {
	if cfg.MaxEpisodes == 0 || cfg.MaxEpisodes < -1 {
		return nil, fmt.Errorf("max episodes must be positive or -1 for unlimited, got %d", cfg.MaxEpisodes)
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("max steps must be positive, got %d", cfg.MaxSteps)
	}
	if environment == nil || agent == nil {
		return nil, errors.New("environment and agent are required")
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	runID := uuid.NewString()
	return &Actor{
		cfg:       cfg,
		env:       environment,
		agent:     agent,
		publisher: publisher,
		metrics:   collector,
		logger:    logger.With().Str("run_id", runID).Logger(),
		runID:     runID,
		stats: Stats{
			RunID:   runID,
			Variant: agent.Variant().String(),
			Epsilon: agent.Epsilon(),
			Replay:  agent.ReplayStats(),
		},
	}, nil
}

// RunID identifies this training run
func (a *Actor) RunID() string {
	return a.runID
}

// Run starts the actor main loop. It returns nil once MaxEpisodes have
// completed, ctx.Err() when cancelled, or the first environment or learning
// error.
func (a *Actor) Run(ctx context.Context) error {
	a.logger.Info().
		Str("variant", a.agent.Variant().String()).
		Int("max_episodes", a.cfg.MaxEpisodes).
		Int("max_steps", a.cfg.MaxSteps).
		Msg("Actor starting main loop")

	a.setRunning(true)
	defer a.setRunning(false)

	for episode := 1; ; episode++ {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Context cancelled, stopping actor")
			return ctx.Err()
		default:
		}

		if a.cfg.MaxEpisodes > 0 && episode > a.cfg.MaxEpisodes {
			a.logger.Info().Int("episodes", a.cfg.MaxEpisodes).Msg("Reached maximum episodes, stopping")
			return nil
		}

		if err := a.runEpisode(ctx, episode); err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}

		if episode%10 == 0 {
			snap := a.Stats()
			a.logger.Info().
				Int("episodes", episode).
				Float64("mean_return", snap.MeanReturn).
				Float64("epsilon", snap.Epsilon).
				Msg("Training progress")
		}
	}
}

// runEpisode plays one episode, storing every transition and running one
// learning step after each.
func (a *Actor) runEpisode(ctx context.Context, episode int) error {
	obs, err := a.env.Reset()
	if err != nil {
		return fmt.Errorf("reset environment: %w", err)
	}

	var (
		episodeReturn float64
		steps         int
		done          bool
	)
	for steps < a.cfg.MaxSteps && !done {
		if err := ctx.Err(); err != nil {
			return err
		}

		action, err := a.agent.ChooseAction(obs)
		if err != nil {
			return fmt.Errorf("choose action: %w", err)
		}
		step, err := a.env.Step(action)
		if err != nil {
			return fmt.Errorf("step environment: %w", err)
		}
		if err := a.agent.StoreTransition(obs, action, step.Reward, step.Observation, step.Done); err != nil {
			return fmt.Errorf("store transition: %w", err)
		}

		res, err := a.agent.Learn()
		if err != nil {
			return err
		}
		if res != nil && res.Synced {
			a.publishSync(ctx, res.Step)
		}

		episodeReturn += step.Reward
		obs = step.Observation
		done = step.Done
		steps++
	}

	a.finishEpisode(ctx, episode, steps, episodeReturn, !done)
	return nil
}

func (a *Actor) finishEpisode(ctx context.Context, episode, steps int, episodeReturn float64, truncated bool) {
	epsilon := a.agent.Epsilon()
	learnSteps := a.agent.Steps()
	replay := a.agent.ReplayStats()

	a.mu.Lock()
	a.returns = append(a.returns, episodeReturn)
	a.stats.Episodes = episode
	a.stats.TotalSteps += steps
	a.stats.LearnSteps = learnSteps
	a.stats.Epsilon = epsilon
	a.stats.LastReturn = episodeReturn
	a.stats.MeanReturn = meanOfLast(a.returns, returnWindow)
	a.stats.Replay = replay
	a.mu.Unlock()

	a.logger.Debug().
		Int("episode", episode).
		Int("steps", steps).
		Float64("return", episodeReturn).
		Bool("truncated", truncated).
		Msg("Episode completed")

	if a.metrics != nil {
		a.metrics.EpisodeCompleted(a.runID, episode, steps, episodeReturn, epsilon)
	}

	event := events.EpisodeEvent{
		RunID:      a.runID,
		Variant:    a.agent.Variant().String(),
		Episode:    episode,
		Steps:      steps,
		Return:     episodeReturn,
		Epsilon:    epsilon,
		LearnSteps: learnSteps,
		ReplaySize: replay.Size,
		Truncated:  truncated,
	}
	if err := a.publisher.PublishEpisode(ctx, event); err != nil {
		a.logger.Warn().Err(err).Int("episode", episode).Msg("Failed to publish episode event")
	}
}

func (a *Actor) publishSync(ctx context.Context, step int) {
	event := events.TargetSyncEvent{
		RunID:   a.runID,
		Variant: a.agent.Variant().String(),
		Step:    step,
		Mode:    a.agent.SyncMode(),
	}
	if err := a.publisher.PublishTargetSync(ctx, event); err != nil {
		a.logger.Warn().Err(err).Int("step", step).Msg("Failed to publish target sync event")
	}
}

// Stats returns a snapshot of training progress. Safe for concurrent use.
func (a *Actor) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Returns returns a copy of every completed episode's return.
func (a *Actor) Returns() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]float64(nil), a.returns...)
}

func (a *Actor) setRunning(running bool) {
	a.mu.Lock()
	a.stats.Running = running
	a.mu.Unlock()
}

func meanOfLast(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) > n {
		values = values[len(values)-n:]
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
