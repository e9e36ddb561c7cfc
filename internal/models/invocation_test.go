package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationLifecycle(t *testing.T) {
	inv := &Invocation{Kind: KindTransact}
	require.NoError(t, inv.Advance(PhaseBuilt))
	require.NoError(t, inv.Advance(PhaseSubmitted))
	require.NotNil(t, inv.SubmittedAt)
	assert.Nil(t, inv.FinishedAt)

	require.NoError(t, inv.Advance(PhaseMined))
	require.NotNil(t, inv.FinishedAt)
	assert.True(t, inv.Succeeded())
	assert.True(t, inv.Phase.Terminal())

	assert.Error(t, inv.Advance(PhaseFailed))
}

func TestPhaseTransitions(t *testing.T) {
	assert.True(t, PhaseNew.CanTransition(PhaseBuilt))
	assert.True(t, PhaseNew.CanTransition(PhaseFailed))
	assert.False(t, PhaseNew.CanTransition(PhaseSubmitted))
	assert.False(t, PhaseBuilt.CanTransition(PhaseMined))
	for _, p := range []Phase{PhaseMined, PhaseReverted, PhaseTimedOut, PhaseReturned, PhaseFailed} {
		assert.True(t, PhaseSubmitted.CanTransition(p), p)
		assert.True(t, p.Terminal(), p)
	}
	assert.False(t, PhaseSubmitted.Terminal())
}

func TestFailedInvocationDoesNotSucceed(t *testing.T) {
	inv := &Invocation{Kind: KindCall}
	require.NoError(t, inv.Advance(PhaseFailed))
	assert.False(t, inv.Succeeded())
	assert.GreaterOrEqual(t, inv.Duration().Nanoseconds(), int64(0))
}

func TestScenarioRunFailed(t *testing.T) {
	run := &ScenarioRun{Steps: []StepResult{{Index: 0, Passed: true}, {Index: 1}, {Index: 2, Passed: true}}}
	failed := run.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)
}
