// Package agent wires the transition store, the ε-greedy policy and one
// learning rule into the store/act/learn cycle driven by an environment loop.
package agent

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/config"
	"github.com/cartridge/valuerl/internal/learner"
	"github.com/cartridge/valuerl/internal/metrics"
	"github.com/cartridge/valuerl/internal/policy"
	"github.com/cartridge/valuerl/internal/storage"
)

// Options configures a new Agent.
type Options struct {
	Variant    learner.Variant
	Capacity   int
	StateShape []int
	NumActions int

	// QFactory builds action-value approximators; VFactory builds the
	// state-value approximators needed by DQV and DQV-Max.
	QFactory approx.Factory
	VFactory approx.Factory

	Hyper config.Hyperparameters

	// Rand drives sampling and exploration. Nil seeds from the clock.
	Rand    *rand.Rand
	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// Agent is a value-based learner over a discrete action space. It is not
// safe for concurrent use; callers serialize access.
type Agent struct {
	variant    learner.Variant
	hyper      config.Hyperparameters
	dim        int
	numActions int

	store   *storage.Ring
	explore *policy.EpsilonGreedy
	rule    learner.Rule

	logger  zerolog.Logger
	metrics *metrics.Collector
}

// New validates opts, builds the networks for the variant and returns a
// ready agent. Configuration problems wrap config.ErrConfiguration.
func New(opts Options) (*Agent, error) {
	if err := opts.Hyper.Validate(opts.Variant); err != nil {
		return nil, err
	}
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", config.ErrConfiguration)
	}
	if opts.Capacity < opts.Hyper.BurnInPeriod {
		return nil, fmt.Errorf("%w: capacity (%d) is smaller than burn_in_period (%d)",
			config.ErrConfiguration, opts.Capacity, opts.Hyper.BurnInPeriod)
	}
	if opts.NumActions <= 0 {
		return nil, fmt.Errorf("%w: action space size must be positive", config.ErrConfiguration)
	}
	if opts.QFactory == nil {
		return nil, fmt.Errorf("%w: q approximator factory is required", config.ErrConfiguration)
	}
	if opts.Variant.UsesValueNetwork() && opts.VFactory == nil {
		return nil, fmt.Errorf("%w: %v needs a v approximator factory", config.ErrConfiguration, opts.Variant)
	}
	dim, err := storage.StateDim(opts.StateShape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	store, err := storage.NewRing(opts.Capacity, opts.StateShape, rng)
	if err != nil {
		return nil, err
	}
	explore, err := policy.NewEpsilonGreedy(opts.NumActions, opts.Hyper.EpsilonStart, opts.Hyper.EpsilonMin, opts.Hyper.EpsilonDecay, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	nets, err := buildNetworks(opts, dim)
	if err != nil {
		return nil, err
	}
	rule, err := learner.New(opts.Variant, nets, opts.Hyper.Settings())
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.With().Str("variant", opts.Variant.String()).Logger()
	logger.Info().
		Int("capacity", opts.Capacity).
		Ints("state_shape", opts.StateShape).
		Int("actions", opts.NumActions).
		Int("batch_size", opts.Hyper.BatchSize).
		Int("burn_in", opts.Hyper.BurnInPeriod).
		Msg("agent initialized")

	return &Agent{
		variant:    opts.Variant,
		hyper:      opts.Hyper,
		dim:        dim,
		numActions: opts.NumActions,
		store:      store,
		explore:    explore,
		rule:       rule,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

func buildNetworks(opts Options, dim int) (learner.Networks, error) {
	var nets learner.Networks
	build := func(name string, factory approx.Factory, outputs int) (approx.Approximator, error) {
		net, err := factory(dim, outputs)
		if err != nil {
			return nil, fmt.Errorf("build %s network: %w", name, err)
		}
		if net.Outputs() != outputs {
			return nil, fmt.Errorf("build %s network: %w: got %d outputs, want %d", name, approx.ErrDimension, net.Outputs(), outputs)
		}
		return net, nil
	}

	var err error
	if nets.Q, err = build("q", opts.QFactory, opts.NumActions); err != nil {
		return nets, err
	}
	if opts.Variant != learner.DQV {
		if nets.QTarget, err = build("target q", opts.QFactory, opts.NumActions); err != nil {
			return nets, err
		}
	}
	if opts.Variant.UsesValueNetwork() {
		if nets.V, err = build("v", opts.VFactory, 1); err != nil {
			return nets, err
		}
	}
	if opts.Variant == learner.DQV {
		if nets.VTarget, err = build("target v", opts.VFactory, 1); err != nil {
			return nets, err
		}
	}
	return nets, nil
}

// StoreTransition records one environment step.
func (a *Agent) StoreTransition(state []float64, action int, reward float64, nextState []float64, done bool) error {
	if action < 0 || action >= a.numActions {
		return fmt.Errorf("%w: action %d out of range [0, %d)", storage.ErrShape, action, a.numActions)
	}
	return a.store.Record(storage.Transition{
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: nextState,
		Terminal:  done,
	})
}

// ChooseAction returns an ε-greedy action for observation. The Q network is
// only evaluated when exploiting.
func (a *Agent) ChooseAction(observation []float64) (int, error) {
	if len(observation) != a.dim {
		return 0, fmt.Errorf("%w: observation has %d values, want %d", storage.ErrShape, len(observation), a.dim)
	}
	return a.explore.Select(func() (int, error) {
		state := mat.NewDense(1, a.dim, append([]float64(nil), observation...))
		values, err := a.rule.QNetwork().Predict(state, approx.Eval)
		if err != nil {
			return 0, fmt.Errorf("evaluate q: %w", err)
		}
		return approx.Argmax(values.RawRowView(0)), nil
	})
}

// Learn runs one update. While fewer than burn_in_period transitions are
// stored it does nothing and returns (nil, nil). Any error from the update
// leaves the networks in an unknown state and should stop training.
func (a *Agent) Learn() (*learner.Result, error) {
	if a.store.Len() < a.hyper.BurnInPeriod {
		return nil, nil
	}
	start := time.Now()

	batch, err := a.store.Sample(a.hyper.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("sample batch: %w", err)
	}
	res, err := a.rule.Update(batch)
	if err != nil {
		return nil, fmt.Errorf("learn step %d: %w", a.rule.Steps()+1, err)
	}

	a.explore.Decay()
	res.Epsilon = a.explore.Epsilon()

	if a.metrics != nil {
		a.metrics.LearnStep(a.variant, res, time.Since(start))
		if res.Synced {
			a.metrics.TargetSync(a.variant, res.Step, a.SyncMode())
		}
	}
	return &res, nil
}

// Variant returns the learning rule in use.
func (a *Agent) Variant() learner.Variant { return a.variant }

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.explore.Epsilon() }

// Steps returns the number of completed learning steps.
func (a *Agent) Steps() int { return a.rule.Steps() }

// ReplayStats returns transition store statistics.
func (a *Agent) ReplayStats() storage.Stats { return a.store.Stats() }

// SyncMode reports how target networks are refreshed: "hard" or "soft".
func (a *Agent) SyncMode() string {
	if a.hyper.SoftUpdate {
		return "soft"
	}
	return "hard"
}
