package storage

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Ring implements a fixed-capacity circular transition store. The five
// fields of a transition live in parallel arrays indexed by slot; once the
// buffer is full each write overwrites the oldest slot.
type Ring struct {
	mu         sync.Mutex
	capacity   int
	shape      []int
	dim        int
	states     *mat.Dense // capacity x dim
	actions    []int
	rewards    []float64
	nextStates *mat.Dense // capacity x dim
	terminals  []bool
	writes     uint64
	rng        *rand.Rand
}

var _ Store = (*Ring)(nil)

// NewRing creates a ring store for states of the given shape. A nil rng is
// replaced by a time-seeded source.
func NewRing(capacity int, stateShape []int, rng *rand.Rand) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	dim, err := StateDim(stateShape)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Ring{
		capacity:   capacity,
		shape:      append([]int(nil), stateShape...),
		dim:        dim,
		states:     mat.NewDense(capacity, dim, nil),
		actions:    make([]int, capacity),
		rewards:    make([]float64, capacity),
		nextStates: mat.NewDense(capacity, dim, nil),
		terminals:  make([]bool, capacity),
		rng:        rng,
	}, nil
}

// StateDim returns the flattened size of a state shape.
func StateDim(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty state shape", ErrShape)
	}
	dim := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: non-positive dimension in %v", ErrShape, shape)
		}
		dim *= d
	}
	return dim, nil
}

// Dim returns the flattened state size.
func (r *Ring) Dim() int {
	return r.dim
}

// Record implements Store.Record
func (r *Ring) Record(t Transition) error {
	if len(t.State) != r.dim {
		return fmt.Errorf("%w: state has %d values, want %d (shape %v)", ErrShape, len(t.State), r.dim, r.shape)
	}
	if len(t.NextState) != r.dim {
		return fmt.Errorf("%w: next state has %d values, want %d (shape %v)", ErrShape, len(t.NextState), r.dim, r.shape)
	}
	if t.Action < 0 {
		return fmt.Errorf("%w: negative action %d", ErrShape, t.Action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := int(r.writes % uint64(r.capacity))
	r.states.SetRow(idx, t.State)
	r.actions[idx] = t.Action
	r.rewards[idx] = t.Reward
	r.nextStates.SetRow(idx, t.NextState)
	r.terminals[idx] = t.Terminal
	r.writes++

	return nil
}

// Sample implements Store.Sample
func (r *Ring) Sample(batchSize int) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.size()
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if size < batchSize {
		return nil, fmt.Errorf("%w: %d transitions stored, batch size %d", ErrInsufficientData, size, batchSize)
	}

	indices := r.uniformIndices(size, batchSize)

	batch := &Batch{
		Indices:    indices,
		States:     mat.NewDense(batchSize, r.dim, nil),
		Actions:    make([]int, batchSize),
		Rewards:    make([]float64, batchSize),
		NextStates: mat.NewDense(batchSize, r.dim, nil),
		Terminals:  make([]bool, batchSize),
	}
	for row, idx := range indices {
		batch.States.SetRow(row, r.states.RawRowView(idx))
		batch.Actions[row] = r.actions[idx]
		batch.Rewards[row] = r.rewards[idx]
		batch.NextStates.SetRow(row, r.nextStates.RawRowView(idx))
		batch.Terminals[row] = r.terminals[idx]
	}

	return batch, nil
}

// Len implements Store.Len
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size()
}

// Stats implements Store.Stats
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Capacity: r.capacity,
		Size:     r.size(),
		Writes:   r.writes,
	}
}

// Slot returns a copy of the transition held in slot i, or false if the slot
// has never been written.
func (r *Ring) Slot(i int) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= r.size() {
		return Transition{}, false
	}
	return Transition{
		State:     mat.Row(nil, i, r.states),
		Action:    r.actions[i],
		Reward:    r.rewards[i],
		NextState: mat.Row(nil, i, r.nextStates),
		Terminal:  r.terminals[i],
	}, true
}

// Helper methods

func (r *Ring) size() int {
	if r.writes < uint64(r.capacity) {
		return int(r.writes)
	}
	return r.capacity
}

// uniformIndices draws k distinct indices from [0, n) with a partial
// Fisher-Yates shuffle.
func (r *Ring) uniformIndices(n, k int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}

	for i := 0; i < k; i++ {
		j := i + r.rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:k:k]
}
