package policy

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// GreedyFunc returns the greedy action. It is only called on the exploit
// branch, so any inference it performs is skipped while exploring.
type GreedyFunc func() (int, error)

// EpsilonGreedy explores with probability ε and otherwise defers to a greedy
// action source. ε decays geometrically toward a floor.
type EpsilonGreedy struct {
	rng     *rand.Rand
	random  *Uniform
	epsilon float64
	min     float64
	decay   float64
}

// NewEpsilonGreedy creates an ε-greedy policy over n actions.
func NewEpsilonGreedy(n int, start, min, decay float64, rng *rand.Rand) (*EpsilonGreedy, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	random, err := NewUniform(n, rng)
	if err != nil {
		return nil, err
	}
	if start < 0 || start > 1 {
		return nil, fmt.Errorf("epsilon start must be in [0, 1], got %g", start)
	}
	if min < 0 || min > start {
		return nil, fmt.Errorf("epsilon min must be in [0, %g], got %g", start, min)
	}
	if decay <= 0 || decay > 1 {
		return nil, fmt.Errorf("epsilon decay must be in (0, 1], got %g", decay)
	}

	return &EpsilonGreedy{
		rng:     rng,
		random:  random,
		epsilon: start,
		min:     min,
		decay:   decay,
	}, nil
}

// Select draws the explore/exploit coin first and calls greedy only when
// exploiting.
func (p *EpsilonGreedy) Select(greedy GreedyFunc) (int, error) {
	if p.rng.Float64() < p.epsilon {
		return p.random.SelectAction(), nil
	}

	action, err := greedy()
	if err != nil {
		return 0, err
	}
	if action < 0 || action >= p.random.N() {
		return 0, fmt.Errorf("greedy action %d out of range [0, %d)", action, p.random.N())
	}
	return action, nil
}

// Decay applies ε ← max(ε_min, ε·d).
func (p *EpsilonGreedy) Decay() {
	p.epsilon = math.Max(p.min, p.epsilon*p.decay)
}

// Epsilon returns the current exploration rate.
func (p *EpsilonGreedy) Epsilon() float64 {
	return p.epsilon
}
