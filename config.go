package twist_controller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults applied by Validate.
const (
	defaultDampingMethod = DampingMethodLeastSingularValues
	defaultDampingFactor = 0.2
	defaultLambdaMax     = 0.1
	defaultWThreshold    = 0.005
	defaultEpsDamping    = 0.003
	defaultControlRateHz = 100.0
	maxControlRateHz     = 1000.0
)

// TwistControllerConfig configures a twist-controlled arm.
type TwistControllerConfig struct {
	// Name of the arm the velocity commands are sent to.
	Arm string `json:"arm"`

	DampingMethod string  `json:"damping_method,omitempty"`
	DampingFactor float64 `json:"damping_factor,omitempty"`
	LambdaMax     float64 `json:"lambda_max,omitempty"`
	WThreshold    float64 `json:"w_threshold,omitempty"`
	EpsDamping    float64 `json:"eps_damping,omitempty"`
	EpsTruncation float64 `json:"eps_truncation,omitempty"`

	// "minimum" (default) or "last"
	SelfMotionAggregation string `json:"self_motion_aggregation,omitempty"`

	ControlRateHz float64 `json:"control_rate_hz,omitempty"`
	// "hold" (default) or "zero"
	FailurePolicy string `json:"failure_policy,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *TwistControllerConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Arm == "" {
		return nil, nil, fmt.Errorf("%s: must specify the arm to control", path)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return []string{cfg.Arm}, nil, nil
}

func (cfg *TwistControllerConfig) applyDefaults() error {
	if cfg.DampingMethod == "" {
		cfg.DampingMethod = string(defaultDampingMethod)
	}
	method, err := ParseDampingMethod(cfg.DampingMethod)
	if err != nil {
		return err
	}
	cfg.DampingMethod = string(method)

	if cfg.DampingFactor == 0 {
		cfg.DampingFactor = defaultDampingFactor
	}
	if cfg.LambdaMax == 0 {
		cfg.LambdaMax = defaultLambdaMax
	}
	if cfg.WThreshold == 0 {
		cfg.WThreshold = defaultWThreshold
	}
	if cfg.EpsDamping == 0 {
		cfg.EpsDamping = defaultEpsDamping
	}
	if err := cfg.DampingParams().Validate(); err != nil {
		return err
	}

	aggregation, err := ParseSelfMotionAggregation(cfg.SelfMotionAggregation)
	if err != nil {
		return err
	}
	cfg.SelfMotionAggregation = string(aggregation)

	if cfg.ControlRateHz == 0 {
		cfg.ControlRateHz = defaultControlRateHz
	}
	if cfg.ControlRateHz < 0 || cfg.ControlRateHz > maxControlRateHz {
		return fmt.Errorf("control_rate_hz must be between 0 and %v, got %v", maxControlRateHz, cfg.ControlRateHz)
	}

	switch FailurePolicy(strings.ToLower(cfg.FailurePolicy)) {
	case "", FailureHold:
		cfg.FailurePolicy = string(FailureHold)
	case FailureZero:
		cfg.FailurePolicy = string(FailureZero)
	default:
		return fmt.Errorf("failure_policy must be 'hold' or 'zero', got '%s'", cfg.FailurePolicy)
	}
	return nil
}

// DampingParams returns the damping section of the config. The method is passed through
// unchecked; NewDamping rejects unknown values.
func (cfg *TwistControllerConfig) DampingParams() DampingParams {
	return DampingParams{
		Method:        DampingMethod(cfg.DampingMethod),
		DampingFactor: cfg.DampingFactor,
		LambdaMax:     cfg.LambdaMax,
		WThreshold:    cfg.WThreshold,
		EpsDamping:    cfg.EpsDamping,
		EpsTruncation: cfg.EpsTruncation,
	}
}

// SolverConfig returns the solver configuration for an arm with jointCount joints.
func (cfg *TwistControllerConfig) SolverConfig(jointCount int) (SolverConfig, error) {
	method, err := ParseDampingMethod(cfg.DampingMethod)
	if err != nil {
		return SolverConfig{}, err
	}
	aggregation, err := ParseSelfMotionAggregation(cfg.SelfMotionAggregation)
	if err != nil {
		return SolverConfig{}, err
	}
	params := cfg.DampingParams()
	params.Method = method
	return SolverConfig{
		JointCount:  jointCount,
		Damping:     params,
		Aggregation: aggregation,
	}, nil
}

// Period returns the control cycle period.
func (cfg *TwistControllerConfig) Period() time.Duration {
	rate := cfg.ControlRateHz
	if rate <= 0 {
		rate = defaultControlRateHz
	}
	return time.Duration(float64(time.Second) / rate)
}

// Policy returns the failure policy, defaulting to hold.
func (cfg *TwistControllerConfig) Policy() FailurePolicy {
	if FailurePolicy(strings.ToLower(cfg.FailurePolicy)) == FailureZero {
		return FailureZero
	}
	return FailureHold
}

// resolveDataPath makes relative paths relative to VIAM_MODULE_DATA.
func resolveDataPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		moduleDataDir = "/tmp" // Fallback if VIAM_MODULE_DATA not set
	}
	return filepath.Join(moduleDataDir, path)
}

// LoadConfigFromFile loads, validates and defaults a controller config from a JSON file.
func LoadConfigFromFile(filePath string) (*TwistControllerConfig, error) {
	filePath = resolveDataPath(filePath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg TwistControllerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if _, _, err := cfg.Validate(filePath); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfigToFile writes the config as indented JSON.
func SaveConfigToFile(filePath string, cfg *TwistControllerConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(resolveDataPath(filePath), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
