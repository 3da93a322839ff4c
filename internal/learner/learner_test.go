package learner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/valuerl/internal/approx"
)

func TestParseVariant(t *testing.T) {
	for _, v := range []Variant{DQN, DoubleDQN, DQV, DQVMax} {
		parsed, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}

	parsed, err := ParseVariant(" DQV_MAX ")
	require.NoError(t, err)
	assert.Equal(t, DQVMax, parsed)

	_, err = ParseVariant("sarsa")
	assert.Error(t, err)

	assert.True(t, DQV.UsesValueNetwork())
	assert.True(t, DQVMax.UsesValueNetwork())
	assert.False(t, DQN.UsesValueNetwork())
	assert.False(t, DoubleDQN.UsesValueNetwork())
}

func TestDQN_TerminalRowsUseRewardOnly(t *testing.T) {
	online := newFake("q", 2, nil, constant(0, 0))
	target := newFake("target", 2, nil, func(s []float64) []float64 { return []float64{s[0], 2*s[0] + 1} })

	rule, err := NewDQN(online, target, Settings{Gamma: 0.9, SyncEvery: 100})
	require.NoError(t, err)

	batch := testBatch([]float64{1, 2, 3}, []bool{false, true, false}, []int{0, 1, 1})
	res, err := rule.Update(batch)
	require.NoError(t, err)

	require.Len(t, online.fits, 1)
	got := online.fits[0]
	assert.Equal(t, []int{0, 1, 1}, got.outputs)
	assert.InDelta(t, 1+0.9*1, got.targets[0], 1e-12)
	assert.Equal(t, 2.0, got.targets[1])
	assert.InDelta(t, 3+0.9*5, got.targets[2], 1e-12)

	assert.Empty(t, target.fits, "target must never be fitted")
	assert.Equal(t, []approx.Mode{approx.Eval}, target.modes)
	assert.Equal(t, 1, res.Step)
	assert.Equal(t, 0.25, res.Losses[LossQ])
	assert.False(t, res.Synced)
}

func TestDQN_HardSyncCadence(t *testing.T) {
	online := newFake("q", 2, nil, constant(0, 0))
	target := newFake("target", 2, nil, constant(0, 0))
	target.params = []float64{-7, -7}

	rule, err := NewDQN(online, target, Settings{Gamma: 0.99, SyncEvery: 3})
	require.NoError(t, err)
	assert.Equal(t, online.Parameters(), target.Parameters(), "target starts as a copy")

	batch := testBatch([]float64{0}, []bool{false}, []int{0})
	for step := 1; step <= 7; step++ {
		res, err := rule.Update(batch)
		require.NoError(t, err)
		assert.Equal(t, step, res.Step)
		if step%3 == 0 {
			assert.True(t, res.Synced, "step %d", step)
			assert.Equal(t, online.Parameters(), target.Parameters(), "step %d", step)
		} else {
			assert.False(t, res.Synced, "step %d", step)
			assert.NotEqual(t, online.Parameters(), target.Parameters(), "step %d", step)
		}
	}
	assert.Equal(t, 7, rule.Steps())
}

func TestDoubleDQN_EvaluatesOnlineArgmaxWithTarget(t *testing.T) {
	online := newFake("q", 3, nil, func(s []float64) []float64 {
		if s[0] == 0 {
			return []float64{1, 5, 2}
		}
		return []float64{0, 0, 3}
	})
	// The target's own argmax is always column 2.
	target := newFake("target", 3, nil, constant(10, 7, 20))

	rule, err := NewDoubleDQN(online, target, Settings{Gamma: 0.5, SyncEvery: 10})
	require.NoError(t, err)

	batch := testBatch([]float64{1, -1, 4}, []bool{false, false, true}, []int{2, 0, 1})
	_, err = rule.Update(batch)
	require.NoError(t, err)

	require.Len(t, online.fits, 1)
	y := online.fits[0].targets
	assert.InDelta(t, 1+0.5*7, y[0], 1e-12, "row 0 must evaluate the online argmax (1), not the target argmax (2)")
	assert.InDelta(t, -1+0.5*20, y[1], 1e-12)
	assert.Equal(t, 4.0, y[2])
	assert.Equal(t, []int{2, 0, 1}, online.fits[0].outputs)

	assert.Empty(t, target.fits)
	assert.Equal(t, []approx.Mode{approx.Eval}, online.modes)
	assert.Equal(t, []approx.Mode{approx.Eval}, target.modes)
}

func TestDoubleDQN_SoftUpdate(t *testing.T) {
	online := newFake("q", 2, nil, constant(0, 0))
	online.params = []float64{2, 4}
	target := newFake("target", 2, nil, constant(0, 0))

	rule, err := NewDoubleDQN(online, target, Settings{Gamma: 0.9, SyncEvery: 2, SoftUpdate: true, Tau: 0.25})
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4}, target.Parameters())

	batch := testBatch([]float64{0}, []bool{false}, []int{0})

	res, err := rule.Update(batch)
	require.NoError(t, err)
	assert.False(t, res.Synced)
	assert.Equal(t, []float64{2, 4}, target.Parameters())

	// online is now {4, 6} after two fits
	res, err = rule.Update(batch)
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, []float64{0.25*4 + 0.75*2, 0.25*6 + 0.75*4}, target.Parameters())
	assert.Equal(t, []float64{4, 6}, online.Parameters())
}

func TestDoubleDQN_HardUpdate(t *testing.T) {
	online := newFake("q", 2, nil, constant(0, 0))
	target := newFake("target", 2, nil, constant(0, 0))

	rule, err := NewDoubleDQN(online, target, Settings{Gamma: 0.9, SyncEvery: 1})
	require.NoError(t, err)

	res, err := rule.Update(testBatch([]float64{0}, []bool{false}, []int{0}))
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, online.Parameters(), target.Parameters())
}

func TestDQV_SharedFrozenTarget(t *testing.T) {
	var log []string
	q := newFake("q", 2, &log, constant(0, 0))
	v := newFake("v", 1, &log, constant(-100))
	vTarget := newFake("vtarget", 1, &log, func(s []float64) []float64 { return []float64{10 + s[0]} })
	// Fitting V must not change the target Q regresses toward.
	v.afterFit = func() { vTarget.values = constant(999) }

	rule, err := NewDQV(q, v, vTarget, Settings{Gamma: 0.5, SyncEvery: 100})
	require.NoError(t, err)
	log = nil

	batch := testBatch([]float64{1, 2}, []bool{false, true}, []int{1, 0})
	res, err := rule.Update(batch)
	require.NoError(t, err)

	require.Len(t, v.fits, 1)
	require.Len(t, q.fits, 1)
	assert.Equal(t, []float64{6, 2}, v.fits[0].targets)
	assert.Equal(t, v.fits[0].targets, q.fits[0].targets)
	assert.Nil(t, v.fits[0].outputs)
	assert.Equal(t, []int{1, 0}, q.fits[0].outputs)
	assert.Equal(t, []string{"vtarget.predict", "v.fit", "q.fit"}, log)

	assert.Contains(t, res.Losses, LossQ)
	assert.Contains(t, res.Losses, LossV)
}

func TestDQV_SyncsValueTargetOnly(t *testing.T) {
	q := newFake("q", 2, nil, constant(0, 0))
	v := newFake("v", 1, nil, constant(0))
	vTarget := newFake("vtarget", 1, nil, constant(0))

	rule, err := NewDQV(q, v, vTarget, Settings{Gamma: 0.5, SyncEvery: 2})
	require.NoError(t, err)

	batch := testBatch([]float64{0}, []bool{false}, []int{0})
	_, err = rule.Update(batch)
	require.NoError(t, err)
	assert.NotEqual(t, v.Parameters(), vTarget.Parameters())

	res, err := rule.Update(batch)
	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.Equal(t, v.Parameters(), vTarget.Parameters())
	assert.Same(t, q, rule.QNetwork())
}

func TestDQVMax_TargetsFrozenBeforeUpdates(t *testing.T) {
	var log []string
	q := newFake("q", 2, &log, constant(0, 0))
	qTarget := newFake("qtarget", 2, &log, func(s []float64) []float64 { return []float64{s[0], 3} })
	v := newFake("v", 1, &log, constant(4))
	v.afterFit = func() { v.values = constant(1000) }

	rule, err := NewDQVMax(q, qTarget, v, Settings{Gamma: 0.5, SyncEvery: 100})
	require.NoError(t, err)
	log = nil

	batch := testBatch([]float64{1, 1, 2}, []bool{false, false, true}, []int{0, 1, 1})
	_, err = rule.Update(batch)
	require.NoError(t, err)

	require.Len(t, v.fits, 1)
	require.Len(t, q.fits, 1)
	// V bootstraps off max_a Q_target(s', a): rows 0,1 -> 3
	assert.Equal(t, []float64{2.5, 2.5, 2}, v.fits[0].targets)
	// Q bootstraps off V(s') read before V was fitted
	assert.Equal(t, []float64{3, 3, 2}, q.fits[0].targets)
	assert.Equal(t, []string{"qtarget.predict", "v.predict", "v.fit", "q.fit"}, log)
	assert.Equal(t, []approx.Mode{approx.Eval}, v.modes)
	assert.Empty(t, qTarget.fits)
}

func TestDQVMax_SyncsQTarget(t *testing.T) {
	q := newFake("q", 2, nil, constant(0, 0))
	qTarget := newFake("qtarget", 2, nil, constant(0, 0))
	v := newFake("v", 1, nil, constant(0))
	v.params = []float64{10, 20}

	rule, err := NewDQVMax(q, qTarget, v, Settings{Gamma: 0.5, SyncEvery: 3})
	require.NoError(t, err)

	batch := testBatch([]float64{0}, []bool{false}, []int{0})
	var vBeforeSync []float64
	for step := 1; step <= 3; step++ {
		if step == 3 {
			vBeforeSync = v.Parameters()
		}
		res, err := rule.Update(batch)
		require.NoError(t, err)
		assert.Equal(t, step == 3, res.Synced)
	}
	assert.Equal(t, q.Parameters(), qTarget.Parameters())

	// V only moves by its own fit step; the sync never touches it.
	assert.Equal(t, []float64{12, 22}, vBeforeSync)
	assert.Equal(t, []float64{13, 23}, v.Parameters())
	assert.NotEqual(t, qTarget.Parameters(), v.Parameters())
}

func TestUpdate_FitErrorPropagates(t *testing.T) {
	boom := errors.New("optimizer exploded")
	q := newFake("q", 2, nil, constant(0, 0))
	q.fitErr = boom

	rule, err := New(DQN, Networks{Q: q, QTarget: newFake("target", 2, nil, constant(0, 0))}, Settings{Gamma: 0.9, SyncEvery: 1})
	require.NoError(t, err)

	_, err = rule.Update(testBatch([]float64{0}, []bool{false}, []int{0}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, rule.Steps())
}

func TestNew_Validation(t *testing.T) {
	q := newFake("q", 2, nil, constant(0, 0))
	qt := newFake("qt", 2, nil, constant(0, 0))
	v := newFake("v", 1, nil, constant(0))
	vt := newFake("vt", 1, nil, constant(0))
	ok := Settings{Gamma: 0.9, SyncEvery: 1}

	_, err := New(DQN, Networks{Q: q}, ok)
	assert.Error(t, err)

	_, err = New(DQV, Networks{Q: q, V: v}, ok)
	assert.Error(t, err)

	_, err = New(DQVMax, Networks{Q: q, QTarget: qt, V: q}, ok)
	assert.Error(t, err, "v must have one output")

	_, err = New(DQN, Networks{Q: q, QTarget: qt}, Settings{Gamma: 1.5, SyncEvery: 1})
	assert.Error(t, err)

	_, err = New(DQN, Networks{Q: q, QTarget: qt}, Settings{Gamma: 0.9})
	assert.Error(t, err)

	_, err = New(DoubleDQN, Networks{Q: q, QTarget: qt}, Settings{Gamma: 0.9, SyncEvery: 1, SoftUpdate: true, Tau: 1})
	assert.Error(t, err)

	_, err = New(Variant(42), Networks{}, ok)
	assert.Error(t, err)

	for _, variant := range []Variant{DQN, DoubleDQN, DQV, DQVMax} {
		rule, err := New(variant, Networks{Q: q, QTarget: qt, V: v, VTarget: vt}, ok)
		require.NoError(t, err)
		assert.Equal(t, variant, rule.Variant())
		assert.Same(t, q, rule.QNetwork())
	}
}
