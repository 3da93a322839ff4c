package learner

import (
	"fmt"

	"github.com/cartridge/valuerl/internal/approx"
	"github.com/cartridge/valuerl/internal/storage"
)

// DoubleDQNRule selects the next action with the online network and
// evaluates it with the target network:
// y = r + γ·Q_target(s', argmax_a Q(s', a)).
type DoubleDQNRule struct {
	online   approx.Approximator
	target   approx.Approximator
	settings Settings
	steps    int
}

var _ Rule = (*DoubleDQNRule)(nil)

// NewDoubleDQN creates a Double DQN rule. With settings.SoftUpdate the
// target is interpolated toward online at rate Tau on every sync instead of
// being overwritten.
func NewDoubleDQN(online, target approx.Approximator, settings Settings) (*DoubleDQNRule, error) {
	if err := requireNets(DoubleDQN, map[string]approx.Approximator{"q": online, "target q": target}); err != nil {
		return nil, err
	}
	if err := settings.validate(DoubleDQN); err != nil {
		return nil, err
	}
	if err := syncTarget(target, online); err != nil {
		return nil, err
	}
	return &DoubleDQNRule{online: online, target: target, settings: settings}, nil
}

// Update implements Rule.Update
func (r *DoubleDQNRule) Update(batch *storage.Batch) (Result, error) {
	y, err := r.targets(batch)
	if err != nil {
		return Result{}, err
	}

	loss, err := r.online.Fit(batch.States, batch.Actions, y)
	if err != nil {
		return Result{}, fmt.Errorf("fit q: %w", err)
	}
	r.steps++

	res := Result{Step: r.steps, Losses: map[string]float64{LossQ: loss}}
	if r.steps%r.settings.SyncEvery == 0 {
		if r.settings.SoftUpdate {
			err = approx.SoftUpdate(r.target, r.online, r.settings.Tau)
		} else {
			err = syncTarget(r.target, r.online)
		}
		if err != nil {
			return res, err
		}
		res.Synced = true
	}
	return res, nil
}

func (r *DoubleDQNRule) targets(batch *storage.Batch) ([]float64, error) {
	onlineNext, err := r.online.Predict(batch.NextStates, approx.Eval)
	if err != nil {
		return nil, fmt.Errorf("evaluate online q: %w", err)
	}
	selected := approx.RowArgmax(onlineNext)

	targetNext, err := r.target.Predict(batch.NextStates, approx.Eval)
	if err != nil {
		return nil, fmt.Errorf("evaluate target q: %w", err)
	}
	evaluated, err := approx.Gather(targetNext, selected)
	if err != nil {
		return nil, fmt.Errorf("evaluate target q: %w", err)
	}

	return bootstrap(batch.Rewards, batch.Terminals, r.settings.Gamma, evaluated), nil
}

// QNetwork implements Rule.QNetwork
func (r *DoubleDQNRule) QNetwork() approx.Approximator { return r.online }

// Steps implements Rule.Steps
func (r *DoubleDQNRule) Steps() int { return r.steps }

// Variant implements Rule.Variant
func (r *DoubleDQNRule) Variant() Variant { return DoubleDQN }
