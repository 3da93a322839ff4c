package approx

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Linear is a linear approximator with a bias term, trained by plain
// stochastic gradient descent. Fit runs its forward pass in Train mode; the
// linear map itself has no mode-dependent layers.
type Linear struct {
	inputs       int
	outputs      int
	learningRate float64
	weights      *mat.Dense // outputs x (inputs+1); the last column is the bias
}

var _ Approximator = (*Linear)(nil)

// NewLinear creates a linear approximator with small random weights.
func NewLinear(inputs, outputs int, learningRate float64, rng *rand.Rand) (*Linear, error) {
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("%w: inputs=%d outputs=%d", ErrDimension, inputs, outputs)
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", learningRate)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	data := make([]float64, outputs*(inputs+1))
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * 0.01
	}

	return &Linear{
		inputs:       inputs,
		outputs:      outputs,
		learningRate: learningRate,
		weights:      mat.NewDense(outputs, inputs+1, data),
	}, nil
}

// LinearFactory returns a Factory producing Linear approximators that share
// one random source for initialisation.
func LinearFactory(learningRate float64, rng *rand.Rand) Factory {
	return func(inputs, outputs int) (Approximator, error) {
		return NewLinear(inputs, outputs, learningRate, rng)
	}
}

// Predict implements Approximator.Predict
func (l *Linear) Predict(states mat.Matrix, mode Mode) (*mat.Dense, error) {
	x, err := l.augment(states)
	if err != nil {
		return nil, err
	}
	rows, _ := x.Dims()
	out := mat.NewDense(rows, l.outputs, nil)
	out.Mul(x, l.weights.T())
	return out, nil
}

// Fit implements Approximator.Fit
func (l *Linear) Fit(states mat.Matrix, outputs []int, targets []float64) (float64, error) {
	x, err := l.augment(states)
	if err != nil {
		return 0, err
	}
	pred, err := l.Predict(states, Train)
	if err != nil {
		return 0, err
	}
	rows, cols := x.Dims()
	if len(targets) != rows {
		return 0, fmt.Errorf("%w: %d targets for %d rows", ErrDimension, len(targets), rows)
	}
	if outputs != nil && len(outputs) != rows {
		return 0, fmt.Errorf("%w: %d output indices for %d rows", ErrDimension, len(outputs), rows)
	}

	grad := mat.NewDense(l.outputs, cols, nil)
	var loss float64
	for i := 0; i < rows; i++ {
		col := 0
		if outputs != nil {
			col = outputs[i]
		}
		if col < 0 || col >= l.outputs {
			return 0, fmt.Errorf("%w: output %d out of range [0, %d)", ErrDimension, col, l.outputs)
		}

		row := x.RawRowView(i)
		diff := pred.At(i, col) - targets[i]
		loss += diff * diff

		// d/dw of mean((w·x - y)^2) = 2/n·(w·x - y)·x
		scale := 2 * diff / float64(rows)
		g := grad.RawRowView(col)
		for j, v := range row {
			g[j] += scale * v
		}
	}

	grad.Scale(l.learningRate, grad)
	l.weights.Sub(l.weights, grad)

	return loss / float64(rows), nil
}

// Parameters implements Approximator.Parameters
func (l *Linear) Parameters() []float64 {
	params := make([]float64, 0, l.outputs*(l.inputs+1))
	for i := 0; i < l.outputs; i++ {
		params = append(params, l.weights.RawRowView(i)...)
	}
	return params
}

// SetParameters implements Approximator.SetParameters
func (l *Linear) SetParameters(params []float64) error {
	want := l.outputs * (l.inputs + 1)
	if len(params) != want {
		return fmt.Errorf("%w: got %d parameters, want %d", ErrDimension, len(params), want)
	}
	l.weights = mat.NewDense(l.outputs, l.inputs+1, append([]float64(nil), params...))
	return nil
}

// Outputs implements Approximator.Outputs
func (l *Linear) Outputs() int {
	return l.outputs
}

// augment appends a constant 1 column for the bias.
func (l *Linear) augment(states mat.Matrix) (*mat.Dense, error) {
	rows, cols := states.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrDimension)
	}
	if cols != l.inputs {
		return nil, fmt.Errorf("%w: got %d inputs, want %d", ErrDimension, cols, l.inputs)
	}
	x := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			x.Set(i, j, states.At(i, j))
		}
		x.Set(i, cols, 1)
	}
	return x, nil
}
