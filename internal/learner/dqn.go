package learner

import (
	"fmt"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/storage"
)

// DQNRule regresses Q(s, a) toward r + γ·max_a' Q_target(s', a') and hard
// copies the online network into the target every SyncEvery steps.
type DQNRule struct {
	online   approx.Approximator
	target   approx.Approximator
	settings Settings
	steps    int
}

var _ Rule = (*DQNRule)(nil)

// NewDQN creates a DQN rule. The target starts as a copy of online.
func NewDQN(online, target approx.Approximator, settings Settings) (*DQNRule, error) {
	if err := requireNets(DQN, map[string]approx.Approximator{"q": online, "target q": target}); err != nil {
		return nil, err
	}
	if err := settings.validate(DQN); err != nil {
		return nil, err
	}
	if err := syncTarget(target, online); err != nil {
		return nil, err
	}
	return &DQNRule{online: online, target: target, settings: settings}, nil
}

// Update implements Rule.Update
func (r *DQNRule) Update(batch *storage.Batch) (Result, error) {
	next, err := r.target.Predict(batch.NextStates, approx.Eval)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate target q: %w", err)
	}
	y := bootstrap(batch.Rewards, batch.Terminals, r.settings.Gamma, approx.RowMax(next))

	loss, err := r.online.Fit(batch.States, batch.Actions, y)
	if err != nil {
		return Result{}, fmt.Errorf("fit q: %w", err)
	}
	r.steps++

	res := Result{Step: r.steps, Losses: map[string]float64{LossQ: loss}}
	if r.steps%r.settings.SyncEvery == 0 {
		if err := syncTarget(r.target, r.online); err != nil {
			return res, err
		}
		res.Synced = true
	}
	return res, nil
}

// QNetwork implements Rule.QNetwork
func (r *DQNRule) QNetwork() approx.Approximator { return r.online }

// Steps implements Rule.Steps
func (r *DQNRule) Steps() int { return r.steps }

// Variant implements Rule.Variant
func (r *DQNRule) Variant() Variant { return DQN }
