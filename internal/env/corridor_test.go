package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorridor_WalkRightReachesGoal(t *testing.T) {
	c, err := NewCorridor(4)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, c.ObservationShape())
	assert.Equal(t, 2, c.NumActions())

	obs, err := c.Reset()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 0}, obs)

	for i := 1; i < 3; i++ {
		step, err := c.Step(Right)
		require.NoError(t, err)
		assert.False(t, step.Done)
		assert.Equal(t, stepReward, step.Reward)
		assert.Equal(t, 1.0, step.Observation[i])
	}

	step, err := c.Step(Right)
	require.NoError(t, err)
	assert.True(t, step.Done)
	assert.Equal(t, goalReward, step.Reward)
	assert.Equal(t, []float64{0, 0, 0, 1}, step.Observation)

	_, err = c.Step(Right)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestCorridor_LeftWallAndInvalidAction(t *testing.T) {
	c, err := NewCorridor(3)
	require.NoError(t, err)

	_, err = c.Step(Right)
	assert.ErrorIs(t, err, ErrEpisodeDone, "step before reset")

	_, err = c.Reset()
	require.NoError(t, err)

	step, err := c.Step(Left)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, step.Observation)

	_, err = c.Step(5)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestCorridor_ResetRestartsEpisode(t *testing.T) {
	c, err := NewCorridor(2)
	require.NoError(t, err)

	for episode := 0; episode < 3; episode++ {
		obs, err := c.Reset()
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 0}, obs)

		step, err := c.Step(Right)
		require.NoError(t, err)
		assert.True(t, step.Done)
	}
}

func TestNewCorridor_TooShort(t *testing.T) {
	_, err := NewCorridor(1)
	assert.Error(t, err)
}
