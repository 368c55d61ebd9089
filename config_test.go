package twist_controller

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := &TwistControllerConfig{Arm: "myArm"}
	deps, optional, err := cfg.Validate("components.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"myArm"}, deps)
	assert.Nil(t, optional)

	assert.Equal(t, string(DampingMethodLeastSingularValues), cfg.DampingMethod)
	assert.Equal(t, 0.2, cfg.DampingFactor)
	assert.Equal(t, 0.1, cfg.LambdaMax)
	assert.Equal(t, 0.005, cfg.WThreshold)
	assert.Equal(t, 0.003, cfg.EpsDamping)
	assert.Equal(t, 0.0, cfg.EpsTruncation)
	assert.Equal(t, string(SelfMotionMinimum), cfg.SelfMotionAggregation)
	assert.Equal(t, 100.0, cfg.ControlRateHz)
	assert.Equal(t, string(FailureHold), cfg.FailurePolicy)
	assert.Equal(t, 10*time.Millisecond, cfg.Period())
	assert.Equal(t, FailureHold, cfg.Policy())
}

func TestConfigValidateNormalizes(t *testing.T) {
	cfg := &TwistControllerConfig{
		Arm:                   "myArm",
		DampingMethod:         "LSV",
		SelfMotionAggregation: "last",
		FailurePolicy:         "ZERO",
	}
	_, _, err := cfg.Validate("components.0")
	require.NoError(t, err)
	assert.Equal(t, string(DampingMethodLeastSingularValues), cfg.DampingMethod)
	assert.Equal(t, string(SelfMotionLast), cfg.SelfMotionAggregation)
	assert.Equal(t, string(FailureZero), cfg.FailurePolicy)
	assert.Equal(t, FailureZero, cfg.Policy())

	solverCfg, err := cfg.SolverConfig(7)
	require.NoError(t, err)
	assert.Equal(t, 7, solverCfg.JointCount)
	assert.Equal(t, SelfMotionLast, solverCfg.Aggregation)
	assert.Equal(t, DampingMethodLeastSingularValues, solverCfg.Damping.Method)
	assert.Equal(t, 0.1, solverCfg.Damping.LambdaMax)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name          string
		cfg           TwistControllerConfig
		configuration bool
	}{
		{"missing arm", TwistControllerConfig{}, false},
		{"unknown damping", TwistControllerConfig{Arm: "a", DampingMethod: "magic"}, true},
		{"negative lambda", TwistControllerConfig{Arm: "a", LambdaMax: -1}, true},
		{"unknown aggregation", TwistControllerConfig{Arm: "a", SelfMotionAggregation: "sum"}, true},
		{"rate too high", TwistControllerConfig{Arm: "a", ControlRateHz: 5000}, false},
		{"negative rate", TwistControllerConfig{Arm: "a", ControlRateHz: -1}, false},
		{"unknown policy", TwistControllerConfig{Arm: "a", FailurePolicy: "retry"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.cfg.Validate("components.0")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "components.0")
			if tt.configuration {
				assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
			}
		})
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	t.Run("absolute path round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "twist.json")
		cfg := &TwistControllerConfig{Arm: "myArm", DampingMethod: "manipulability", WThreshold: 0.01, ControlRateHz: 50}
		_, _, err := cfg.Validate(path)
		require.NoError(t, err)
		require.NoError(t, SaveConfigToFile(path, cfg))

		loaded, err := LoadConfigFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	})

	t.Run("relative path uses module data dir", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("VIAM_MODULE_DATA", dir)

		cfg := &TwistControllerConfig{Arm: "myArm"}
		require.NoError(t, SaveConfigToFile("relative.json", cfg))
		assert.FileExists(t, filepath.Join(dir, "relative.json"))

		loaded, err := LoadConfigFromFile("relative.json")
		require.NoError(t, err)
		assert.Equal(t, "myArm", loaded.Arm)
		assert.Equal(t, string(DampingMethodLeastSingularValues), loaded.DampingMethod)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFromFile("/nonexistent/path/twist.json")
		assert.Error(t, err)
	})

	t.Run("invalid contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, SaveConfigToFile(path, &TwistControllerConfig{DampingMethod: "magic"}))
		_, err := LoadConfigFromFile(path)
		assert.Error(t, err)
	})
}
