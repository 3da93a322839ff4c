package learner

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/storage"
)

type fitCall struct {
	outputs []int
	targets []float64
}

// fakeNet is a scripted approximator. Predictions come from values, which is
// called with each input row; every Fit bumps each parameter by one.
type fakeNet struct {
	name     string
	outputs  int
	params   []float64
	values   func(state []float64) []float64
	log      *[]string
	modes    []approx.Mode
	fits     []fitCall
	fitErr   error
	afterFit func()
}

var _ approx.Approximator = (*fakeNet)(nil)

func newFake(name string, outputs int, log *[]string, values func([]float64) []float64) *fakeNet {
	return &fakeNet{
		name:    name,
		outputs: outputs,
		params:  []float64{1, 2},
		values:  values,
		log:     log,
	}
}

func constant(v ...float64) func([]float64) []float64 {
	return func([]float64) []float64 { return v }
}

func (f *fakeNet) record(event string) {
	if f.log != nil {
		*f.log = append(*f.log, f.name+"."+event)
	}
}

func (f *fakeNet) Predict(states mat.Matrix, mode approx.Mode) (*mat.Dense, error) {
	f.record("predict")
	f.modes = append(f.modes, mode)
	rows, cols := states.Dims()
	out := mat.NewDense(rows, f.outputs, nil)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		for j := range row {
			row[j] = states.At(i, j)
		}
		out.SetRow(i, f.values(row))
	}
	return out, nil
}

func (f *fakeNet) Fit(states mat.Matrix, outputs []int, targets []float64) (float64, error) {
	f.record("fit")
	if f.fitErr != nil {
		return 0, f.fitErr
	}
	call := fitCall{targets: append([]float64(nil), targets...)}
	if outputs != nil {
		call.outputs = append([]int(nil), outputs...)
	}
	f.fits = append(f.fits, call)
	for i := range f.params {
		f.params[i]++
	}
	if f.afterFit != nil {
		f.afterFit()
	}
	return 0.25, nil
}

func (f *fakeNet) Parameters() []float64 {
	return append([]float64(nil), f.params...)
}

func (f *fakeNet) SetParameters(params []float64) error {
	if len(params) != len(f.params) {
		return fmt.Errorf("%w: got %d parameters", approx.ErrDimension, len(params))
	}
	f.params = append([]float64(nil), params...)
	return nil
}

func (f *fakeNet) Outputs() int { return f.outputs }

// testBatch builds a batch whose states and next states hold the row index
// in their single feature.
func testBatch(rewards []float64, terminals []bool, actions []int) *storage.Batch {
	n := len(rewards)
	batch := &storage.Batch{
		Indices:    make([]int, n),
		States:     mat.NewDense(n, 1, nil),
		Actions:    actions,
		Rewards:    rewards,
		NextStates: mat.NewDense(n, 1, nil),
		Terminals:  terminals,
	}
	for i := 0; i < n; i++ {
		batch.Indices[i] = i
		batch.States.Set(i, 0, float64(i))
		batch.NextStates.Set(i, 0, float64(i))
	}
	return batch
}
