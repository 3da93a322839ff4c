package learner

import (
	"fmt"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/storage"
)

// DQVRule trains a Q network and a V network against one shared target
// y = r + γ·V_target(s'). Only V has a target copy.
type DQVRule struct {
	q        approx.Approximator
	v        approx.Approximator
	vTarget  approx.Approximator
	settings Settings
	steps    int
}

var _ Rule = (*DQVRule)(nil)

// NewDQV creates a DQV rule. The V target starts as a copy of V.
func NewDQV(q, v, vTarget approx.Approximator, settings Settings) (*DQVRule, error) {
	if err := requireNets(DQV, map[string]approx.Approximator{"q": q, "v": v, "target v": vTarget}); err != nil {
		return nil, err
	}
	if err := settings.validate(DQV); err != nil {
		return nil, err
	}
	if v.Outputs() != 1 || vTarget.Outputs() != 1 {
		return nil, fmt.Errorf("%v: state-value networks must have one output", DQV)
	}
	if err := syncTarget(vTarget, v); err != nil {
		return nil, err
	}
	return &DQVRule{q: q, v: v, vTarget: vTarget, settings: settings}, nil
}

// Update implements Rule.Update
func (r *DQVRule) Update(batch *storage.Batch) (Result, error) {
	next, err := stateValues(r.vTarget, batch.NextStates)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate target v: %w", err)
	}
	// y is computed once; both fits read the same values.
	y := bootstrap(batch.Rewards, batch.Terminals, r.settings.Gamma, next)

	vLoss, err := r.v.Fit(batch.States, nil, y)
	if err != nil {
		return Result{}, fmt.Errorf("fit v: %w", err)
	}
	qLoss, err := r.q.Fit(batch.States, batch.Actions, y)
	if err != nil {
		return Result{}, fmt.Errorf("fit q: %w", err)
	}
	r.steps++

	res := Result{Step: r.steps, Losses: map[string]float64{LossQ: qLoss, LossV: vLoss}}
	if r.steps%r.settings.SyncEvery == 0 {
		if err := syncTarget(r.vTarget, r.v); err != nil {
			return res, err
		}
		res.Synced = true
	}
	return res, nil
}

// QNetwork implements Rule.QNetwork
func (r *DQVRule) QNetwork() approx.Approximator { return r.q }

// Steps implements Rule.Steps
func (r *DQVRule) Steps() int { return r.steps }

// Variant implements Rule.Variant
func (r *DQVRule) Variant() Variant { return DQV }
