package storage

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned when a state does not match the store's state shape.
	ErrShape = errors.New("shape mismatch")
	// ErrInsufficientData is returned when a sample asks for more rows than are stored.
	ErrInsufficientData = errors.New("insufficient data")
)

// Transition represents a single experience transition
type Transition struct {
	State     []float64 `json:"state"`
	Action    int       `json:"action"`
	Reward    float64   `json:"reward"`
	NextState []float64 `json:"next_state"`
	Terminal  bool      `json:"terminal"`
}

// Batch holds sampled transitions as aligned columns. Row i of every field
// describes the same transition.
type Batch struct {
	Indices    []int
	States     *mat.Dense
	Actions    []int
	Rewards    []float64
	NextStates *mat.Dense
	Terminals  []bool
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.Indices)
}

// Stats represents replay buffer statistics
type Stats struct {
	Capacity int    `json:"capacity"`
	Size     int    `json:"size"`
	Writes   uint64 `json:"writes"`
}

// Store defines the interface for transition store implementations
type Store interface {
	// Record writes a transition into the next slot. Negative actions are
	// rejected with ErrShape; the store does not know the action-space size,
	// so callers check the upper bound.
	Record(t Transition) error

	// Sample draws distinct transitions uniformly at random
	Sample(batchSize int) (*Batch, error)

	// Len reports the number of valid transitions
	Len() int

	// Stats reports buffer statistics
	Stats() Stats
}
