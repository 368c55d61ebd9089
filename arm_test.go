package twist_controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

func newTestTwistArm(t *testing.T, registry *ControllerRegistry) (arm.Arm, arm.Arm) {
	t.Helper()
	simArm := newSimArm(t)
	cfg := testControllerConfig(t, DampingMethodLeastSingularValues, FailureHold)
	twistArm, err := NewTwistArm(context.Background(), resource.NewName(arm.API, "twist"), simArm, cfg, registry, logging.NewTestLogger(t))
	require.NoError(t, err)
	return twistArm, simArm
}

func twistCommand(command string, values ...float64) map[string]interface{} {
	cmd := map[string]interface{}{"command": command}
	if values != nil {
		cmd["twist"] = floatsToInterfaces(values)
	}
	return cmd
}

func TestTwistArmStep(t *testing.T) {
	ctx := context.Background()
	registry := NewControllerRegistry()
	twistArm, simArm := newTestTwistArm(t, registry)
	defer twistArm.Close(ctx)

	assert.Equal(t, "twist", twistArm.Name().ShortName())

	result, err := twistArm.DoCommand(ctx, twistCommand("step", 0.05, 0, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.Len(t, result["joint_velocities"], 7)
	assert.Equal(t, false, result["degraded"])

	moves, err := simArm.DoCommand(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, moves["moves"])

	diagnostics, err := twistArm.DoCommand(ctx, map[string]interface{}{"command": "get_diagnostics"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), diagnostics["cycles"])
	assert.Equal(t, 0.0, diagnostics["damping_factor"])
	assert.Len(t, diagnostics["singular_values"], 6)
}

func TestTwistArmRejectsBadTwist(t *testing.T) {
	ctx := context.Background()
	twistArm, _ := newTestTwistArm(t, NewControllerRegistry())
	defer twistArm.Close(ctx)

	_, err := twistArm.DoCommand(ctx, twistCommand("set_twist", 0.1, 0, 0))
	assert.Error(t, err)

	_, err = twistArm.DoCommand(ctx, map[string]interface{}{"command": "step", "twist": []interface{}{"a", 0.0, 0.0, 0.0, 0.0, 0.0}})
	assert.Error(t, err)

	_, err = twistArm.DoCommand(ctx, map[string]interface{}{"command": "step"})
	assert.Error(t, err)
}

func TestTwistArmStreaming(t *testing.T) {
	ctx := context.Background()
	twistArm, simArm := newTestTwistArm(t, NewControllerRegistry())
	defer twistArm.Close(ctx)

	result, err := twistArm.DoCommand(ctx, twistCommand("set_twist", 0, 0, 0.01, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, true, result["running"])

	moving, err := twistArm.IsMoving(ctx)
	require.NoError(t, err)
	assert.True(t, moving)

	_, err = twistArm.DoCommand(ctx, twistCommand("step", 0, 0, 0.01, 0, 0, 0))
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		moves, err := simArm.DoCommand(ctx, nil)
		return err == nil && moves["moves"].(int) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	result, err = twistArm.DoCommand(ctx, map[string]interface{}{"command": "stop_twist"})
	require.NoError(t, err)
	assert.Equal(t, false, result["running"])

	moving, err = twistArm.IsMoving(ctx)
	require.NoError(t, err)
	assert.False(t, moving)
}

func TestTwistArmPositionCommandsStopStreaming(t *testing.T) {
	ctx := context.Background()
	twistArm, _ := newTestTwistArm(t, NewControllerRegistry())
	defer twistArm.Close(ctx)

	_, err := twistArm.DoCommand(ctx, twistCommand("set_twist", 0, 0, 0.01, 0, 0, 0))
	require.NoError(t, err)

	require.NoError(t, twistArm.MoveToJointPositions(ctx, bentPose, nil))
	moving, err := twistArm.IsMoving(ctx)
	require.NoError(t, err)
	assert.False(t, moving)

	inputs, err := twistArm.JointPositions(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, bentPose, inputs)

	_, err = twistArm.DoCommand(ctx, twistCommand("set_twist", 0, 0, 0.01, 0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, twistArm.Stop(ctx, nil))
	moving, err = twistArm.IsMoving(ctx)
	require.NoError(t, err)
	assert.False(t, moving)
}

func TestTwistArmDelegatesUnknownCommands(t *testing.T) {
	ctx := context.Background()
	twistArm, _ := newTestTwistArm(t, NewControllerRegistry())
	defer twistArm.Close(ctx)

	result, err := twistArm.DoCommand(ctx, map[string]interface{}{"command": "anything"})
	require.NoError(t, err)
	assert.Equal(t, 0, result["moves"])
}

func TestTwistArmCloseReleasesController(t *testing.T) {
	ctx := context.Background()
	registry := NewControllerRegistry()
	twistArm, _ := newTestTwistArm(t, registry)

	refCount, has, _ := registry.GetControllerStatus("twist")
	assert.Equal(t, int64(1), refCount)
	assert.True(t, has)

	// a second arm with the same name conflicts while the first is registered
	_, err := NewTwistArm(ctx, resource.NewName(arm.API, "twist"), newSimArm(t),
		testControllerConfig(t, DampingMethodNone, FailureZero), registry, logging.NewTestLogger(t))
	assert.Error(t, err)

	require.NoError(t, twistArm.Close(ctx))
	_, has, _ = registry.GetControllerStatus("twist")
	assert.False(t, has)
}
