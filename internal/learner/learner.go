// Package learner implements the temporal-difference update rules. Each rule
// owns its online and target approximators, turns a sampled batch into
// regression targets, issues the fit steps and keeps target networks in sync.
package learner

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/storage"
)

// Variant names a learning rule.
type Variant int

const (
	DQN Variant = iota
	DoubleDQN
	DQV
	DQVMax
)

var variantNames = map[Variant]string{
	DQN:       "dqn",
	DoubleDQN: "double-dqn",
	DQV:       "dqv",
	DQVMax:    "dqv-max",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// UsesValueNetwork reports whether the rule needs a state-value approximator.
func (v Variant) UsesValueNetwork() bool {
	return v == DQV || v == DQVMax
}

// ParseVariant maps a name such as "double-dqn" to its Variant.
func ParseVariant(name string) (Variant, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for v, n := range variantNames {
		if n == normalized {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown variant %q", name)
}

// Loss keys reported in Result.Losses.
const (
	LossQ = "q"
	LossV = "v"
)

// Result describes one completed update.
type Result struct {
	Step    int                `json:"step"`
	Losses  map[string]float64 `json:"losses"`
	Synced  bool               `json:"synced"`
	Epsilon float64            `json:"epsilon"`
}

// Rule converts a sampled batch into parameter updates.
type Rule interface {
	// Update runs one learning step on batch.
	Update(batch *storage.Batch) (Result, error)

	// QNetwork returns the online action-value approximator used for
	// greedy action selection.
	QNetwork() approx.Approximator

	// Steps returns the number of completed updates.
	Steps() int

	// Variant identifies the rule.
	Variant() Variant
}

// Networks carries the approximators a rule needs. Unused fields are nil.
type Networks struct {
	Q       approx.Approximator
	QTarget approx.Approximator
	V       approx.Approximator
	VTarget approx.Approximator
}

// Settings holds the hyperparameters the update rules read.
type Settings struct {
	Gamma      float64
	SyncEvery  int
	SoftUpdate bool
	Tau        float64
}

// New builds the rule for variant from nets and settings.
func New(variant Variant, nets Networks, settings Settings) (Rule, error) {
	switch variant {
	case DQN:
		return NewDQN(nets.Q, nets.QTarget, settings)
	case DoubleDQN:
		return NewDoubleDQN(nets.Q, nets.QTarget, settings)
	case DQV:
		return NewDQV(nets.Q, nets.V, nets.VTarget, settings)
	case DQVMax:
		return NewDQVMax(nets.Q, nets.QTarget, nets.V, settings)
	default:
		return nil, fmt.Errorf("unknown variant %v", variant)
	}
}

// Helper functions

func (s Settings) validate(variant Variant) error {
	if s.Gamma < 0 || s.Gamma > 1 {
		return fmt.Errorf("%v: gamma must be in [0, 1], got %g", variant, s.Gamma)
	}
	if s.SyncEvery <= 0 {
		return fmt.Errorf("%v: target update frequency must be positive, got %d", variant, s.SyncEvery)
	}
	if s.SoftUpdate && (s.Tau <= 0 || s.Tau >= 1) {
		return fmt.Errorf("%v: soft update weight must be in (0, 1), got %g", variant, s.Tau)
	}
	return nil
}

func requireNets(variant Variant, named map[string]approx.Approximator) error {
	for name, net := range named {
		if net == nil {
			return fmt.Errorf("%v: %s network is required", variant, name)
		}
	}
	return nil
}

// syncTarget hard-copies online into target and wraps failures.
func syncTarget(target, online approx.Approximator) error {
	if err := approx.HardUpdate(target, online); err != nil {
		return fmt.Errorf("sync target: %w", err)
	}
	return nil
}

// bootstrap builds y = r + γ·(1-terminal)·next. Terminal rows get exactly r.
func bootstrap(rewards []float64, terminals []bool, gamma float64, next []float64) []float64 {
	y := make([]float64, len(rewards))
	for i, r := range rewards {
		y[i] = r
		if !terminals[i] {
			y[i] += gamma * next[i]
		}
	}
	return y
}

// stateValues evaluates a state-value approximator and returns column 0.
func stateValues(v approx.Approximator, states mat.Matrix) ([]float64, error) {
	est, err := v.Predict(states, approx.Eval)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, est), nil
}
