// Package policy provides action selection strategies for the agent
package policy

import (
	"fmt"
	"math/rand"
	"time"
)

// Uniform selects actions uniformly at random from a discrete action space
type Uniform struct {
	rng       *rand.Rand
	discreteN int
}

// NewUniform creates a uniform random policy over n actions
func NewUniform(n int, rng *rand.Rand) (*Uniform, error) {
	if n <= 0 {
		return nil, fmt.Errorf("action space size must be positive, got %d", n)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Uniform{rng: rng, discreteN: n}, nil
}

// SelectAction returns an action in [0, n)
func (p *Uniform) SelectAction() int {
	return p.rng.Intn(p.discreteN)
}

// N returns the size of the action space
func (p *Uniform) N() int {
	return p.discreteN
}
