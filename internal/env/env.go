// Package env defines the environment contract driven by the episode loop.
package env

import "errors"

var (
	// ErrEpisodeDone is returned by Step once the episode has terminated.
	ErrEpisodeDone = errors.New("episode is done; call Reset")
	// ErrInvalidAction is returned for actions outside the action space.
	ErrInvalidAction = errors.New("invalid action")
)

// Step is the outcome of one environment transition.
type Step struct {
	Observation []float64
	Reward      float64
	Done        bool
}

// Environment is an episodic task with a flat observation and a discrete
// action space.
type Environment interface {
	Reset() ([]float64, error)
	Step(action int) (Step, error)
	ObservationShape() []int
	NumActions() int
}
