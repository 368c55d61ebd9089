package twist_controller

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmCommandSinkIntegratesOneStep(t *testing.T) {
	ctx := context.Background()
	simArm := newSimArm(t)
	sink := NewArmCommandSink(simArm)

	velocities := []float64{1, 0, 0, -0.5, 0, 0, 2}
	require.NoError(t, sink.Apply(ctx, velocities, 100*time.Millisecond))

	inputs, err := simArm.JointPositions(ctx, nil)
	require.NoError(t, err)
	expected := []float64{0.1, 0.5, 0, -1.25, 0, 0.8, 0.2}
	assert.InDeltaSlice(t, expected, inputs, 1e-12)

	err = sink.Apply(ctx, []float64{1, 2}, time.Millisecond)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestSimulatedArm(t *testing.T) {
	ctx := context.Background()
	model, err := RedundantArmModel()
	require.NoError(t, err)

	_, err = NewSimulatedArm("short", model, []float64{0, 0})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	simArm := newSimArm(t)
	assert.Equal(t, "sim", simArm.Name().ShortName())

	pose, err := simArm.EndPosition(ctx, nil)
	require.NoError(t, err)
	assert.InDelta(t, 663.84, pose.Point().X, 0.01)

	err = simArm.MoveToJointPositions(ctx, []float64{1}, nil)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	moving, err := simArm.IsMoving(ctx)
	require.NoError(t, err)
	assert.False(t, moving)
}
