package learner

import (
	"fmt"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/storage"
)

// DQVMaxRule trains V toward r + γ·max_a Q_target(s', a) and Q toward
// r + γ·V(s'). Only Q has a target copy; V is always read live.
type DQVMaxRule struct {
	q        approx.Approximator
	qTarget  approx.Approximator
	v        approx.Approximator
	settings Settings
	steps    int
}

var _ Rule = (*DQVMaxRule)(nil)

// NewDQVMax creates a DQV-Max rule. The Q target starts as a copy of Q.
func NewDQVMax(q, qTarget, v approx.Approximator, settings Settings) (*DQVMaxRule, error) {
	if err := requireNets(DQVMax, map[string]approx.Approximator{"q": q, "target q": qTarget, "v": v}); err != nil {
		return nil, err
	}
	if err := settings.validate(DQVMax); err != nil {
		return nil, err
	}
	if v.Outputs() != 1 {
		return nil, fmt.Errorf("%v: state-value network must have one output", DQVMax)
	}
	if err := syncTarget(qTarget, q); err != nil {
		return nil, err
	}
	return &DQVMaxRule{q: q, qTarget: qTarget, v: v, settings: settings}, nil
}

// Update implements Rule.Update. Both targets are frozen before either
// network is fitted, so the V step cannot leak into the Q target.
func (r *DQVMaxRule) Update(batch *storage.Batch) (Result, error) {
	qNext, err := r.qTarget.Predict(batch.NextStates, approx.Eval)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate target q: %w", err)
	}
	vY := bootstrap(batch.Rewards, batch.Terminals, r.settings.Gamma, approx.RowMax(qNext))

	vNext, err := stateValues(r.v, batch.NextStates)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate v: %w", err)
	}
	qY := bootstrap(batch.Rewards, batch.Terminals, r.settings.Gamma, vNext)

	vLoss, err := r.v.Fit(batch.States, nil, vY)
	if err != nil {
		return Result{}, fmt.Errorf("fit v: %w", err)
	}
	qLoss, err := r.q.Fit(batch.States, batch.Actions, qY)
	if err != nil {
		return Result{}, fmt.Errorf("fit q: %w", err)
	}
	r.steps++

	res := Result{Step: r.steps, Losses: map[string]float64{LossQ: qLoss, LossV: vLoss}}
	if r.steps%r.settings.SyncEvery == 0 {
		if err := syncTarget(r.qTarget, r.q); err != nil {
			return res, err
		}
		res.Synced = true
	}
	return res, nil
}

// QNetwork implements Rule.QNetwork
func (r *DQVMaxRule) QNetwork() approx.Approximator { return r.q }

// Steps implements Rule.Steps
func (r *DQVMaxRule) Steps() int { return r.steps }

// Variant implements Rule.Variant
func (r *DQVMaxRule) Variant() Variant { return DQVMax }
