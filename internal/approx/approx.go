// Package approx defines the function approximator contract consumed by the
// learning rules, plus parameter sync helpers and a linear reference model.
package approx

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrDimension is returned when inputs, outputs or parameters have the wrong size.
var ErrDimension = errors.New("dimension mismatch")

// Mode selects how an approximator evaluates a batch.
type Mode int

const (
	// Train evaluates with training behaviour enabled. Fit always runs its
	// forward pass in this mode.
	Train Mode = iota
	// Eval evaluates for inference only; parameters are never touched.
	// Target computation and action selection use this mode.
	Eval
)

func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Eval:
		return "eval"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Approximator maps a batch of states (one per row) to value estimates.
// Action-value approximators produce one column per action; state-value
// approximators produce a single column.
type Approximator interface {
	// Predict returns one row of estimates per input row.
	Predict(states mat.Matrix, mode Mode) (*mat.Dense, error)

	// Fit performs one gradient step minimising the mean squared error
	// between targets[i] and the Train-mode estimate in column outputs[i]
	// of row i.
	// A nil outputs slice selects column 0 for every row. It returns the
	// loss measured before the step.
	Fit(states mat.Matrix, outputs []int, targets []float64) (float64, error)

	// Parameters returns a copy of the flattened parameters.
	Parameters() []float64

	// SetParameters overwrites every parameter.
	SetParameters(params []float64) error

	// Outputs returns the number of estimates per state.
	Outputs() int
}

// Factory builds an approximator for the given input and output sizes.
type Factory func(inputs, outputs int) (Approximator, error)

// HardUpdate overwrites dst's parameters with src's.
func HardUpdate(dst, src Approximator) error {
	if err := dst.SetParameters(src.Parameters()); err != nil {
		return fmt.Errorf("hard update: %w", err)
	}
	return nil
}

// SoftUpdate moves every parameter of dst toward src:
// θ_dst ← τ·θ_src + (1-τ)·θ_dst.
func SoftUpdate(dst, src Approximator, tau float64) error {
	from := src.Parameters()
	to := dst.Parameters()
	if len(from) != len(to) {
		return fmt.Errorf("soft update: %w: %d source parameters, %d target parameters", ErrDimension, len(from), len(to))
	}
	for i := range to {
		to[i] = tau*from[i] + (1-tau)*to[i]
	}
	if err := dst.SetParameters(to); err != nil {
		return fmt.Errorf("soft update: %w", err)
	}
	return nil
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// RowArgmax returns Argmax of every row of m.
func RowArgmax(m *mat.Dense) []int {
	rows, _ := m.Dims()
	out := make([]int, rows)
	for i := range out {
		out[i] = Argmax(m.RawRowView(i))
	}
	return out
}

// RowMax returns the largest value of every row of m.
func RowMax(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = m.At(i, Argmax(m.RawRowView(i)))
	}
	return out
}

// Gather returns m[i, cols[i]] for every row i.
func Gather(m *mat.Dense, cols []int) ([]float64, error) {
	rows, c := m.Dims()
	if len(cols) != rows {
		return nil, fmt.Errorf("%w: %d column indices for %d rows", ErrDimension, len(cols), rows)
	}
	out := make([]float64, rows)
	for i, col := range cols {
		if col < 0 || col >= c {
			return nil, fmt.Errorf("%w: column %d out of range [0, %d)", ErrDimension, col, c)
		}
		out[i] = m.At(i, col)
	}
	return out, nil
}
