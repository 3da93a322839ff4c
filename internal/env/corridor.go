package env

import "fmt"

const (
	// Left and Right are the corridor actions.
	Left = iota
	Right
)

const (
	goalReward = 1.0
	stepReward = -0.01
)

// Corridor is a one-dimensional walk from cell 0 to the last cell. The
// observation is a one-hot encoding of the current cell. Reaching the goal
// pays 1 and ends the episode; every other step costs 0.01. Moving left from
// cell 0 stays put.
type Corridor struct {
	length   int
	position int
	done     bool
}

var _ Environment = (*Corridor)(nil)

// NewCorridor creates a corridor with length cells.
func NewCorridor(length int) (*Corridor, error) {
	if length < 2 {
		return nil, fmt.Errorf("corridor needs at least 2 cells, got %d", length)
	}
	return &Corridor{length: length, done: true}, nil
}

// Reset implements Environment.Reset
func (c *Corridor) Reset() ([]float64, error) {
	c.position = 0
	c.done = false
	return c.observation(), nil
}

// Step implements Environment.Step
func (c *Corridor) Step(action int) (Step, error) {
	if c.done {
		return Step{}, ErrEpisodeDone
	}

	switch action {
	case Left:
		if c.position > 0 {
			c.position--
		}
	case Right:
		c.position++
	default:
		return Step{}, fmt.Errorf("%w: %d", ErrInvalidAction, action)
	}

	reward := stepReward
	if c.position == c.length-1 {
		reward = goalReward
		c.done = true
	}
	return Step{Observation: c.observation(), Reward: reward, Done: c.done}, nil
}

// ObservationShape implements Environment.ObservationShape
func (c *Corridor) ObservationShape() []int {
	return []int{c.length}
}

// NumActions implements Environment.NumActions
func (c *Corridor) NumActions() int {
	return 2
}

func (c *Corridor) observation() []float64 {
	obs := make([]float64, c.length)
	obs[c.position] = 1
	return obs
}
