package twist_controller

import (
	"context"
	"fmt"
	"sort"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var DiagnosticsSensorModel = resource.NewModel("devrel", "twist-controller", "diagnostics")

func init() {
	resource.RegisterComponent(sensor.API, DiagnosticsSensorModel,
		resource.Registration[sensor.Sensor, *DiagnosticsSensorConfig]{
			Constructor: newDiagnosticsSensor,
		},
	)
}

// DiagnosticsSensorConfig names the twist arm whose controller is observed.
type DiagnosticsSensorConfig struct {
	TwistArm string `json:"twist_arm"`
}

// Validate ensures all parts of the config are valid
func (cfg *DiagnosticsSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.TwistArm == "" {
		return nil, nil, fmt.Errorf("%s: must specify twist_arm", path)
	}
	return []string{cfg.TwistArm}, nil, nil
}

// diagnosticsSensor exposes a twist controller's loop status and solver diagnostics as readings.
type diagnosticsSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	cfg        *DiagnosticsSensorConfig
	controller *TwistController
	registry   *ControllerRegistry
}

func newDiagnosticsSensor(
	ctx context.Context,
	deps resource.Dependencies,
	rawConf resource.Config,
	logger logging.Logger,
) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*DiagnosticsSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return NewDiagnosticsSensor(rawConf.ResourceName(), conf, DefaultRegistry, logger)
}

// NewDiagnosticsSensor acquires the controller of the configured twist arm from registry.
func NewDiagnosticsSensor(
	name resource.Name,
	conf *DiagnosticsSensorConfig,
	registry *ControllerRegistry,
	logger logging.Logger,
) (sensor.Sensor, error) {
	controller, err := registry.Acquire(conf.TwistArm)
	if err != nil {
		return nil, fmt.Errorf("failed to get twist controller for %s: %w", conf.TwistArm, err)
	}
	return &diagnosticsSensor{
		name:       name,
		logger:     logger,
		cfg:        conf,
		controller: controller,
		registry:   registry,
	}, nil
}

func (ds *diagnosticsSensor) Name() resource.Name {
	return ds.name
}

// Readings returns the controller status and the diagnostics of the latest successful solve.
func (ds *diagnosticsSensor) Readings(ctx context.Context, extra map[string]any) (map[string]any, error) {
	readings := statusReadings(ds.controller.Status())
	readings["damping_method"] = string(ds.controller.Solver().Damping().Method())
	readings["joint_count"] = ds.controller.Solver().JointCount()
	return readings, nil
}

func (ds *diagnosticsSensor) DoCommand(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'command' string")
	}

	switch command {
	case "reset_counters":
		ds.controller.ResetCounters()
		return map[string]any{"success": true}, nil

	case "get_status":
		refCount, hasController, summary := ds.registry.GetControllerStatus(ds.controller.Name())
		return map[string]any{
			"ref_count":      refCount,
			"has_controller": hasController,
			"summary":        summary,
		}, nil

	case "damping_curve":
		return ds.dampingCurve(cmd)

	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

// dampingCurve evaluates the active damping policy for a single singular value per sample,
// which is what the least-singular-value policy sees on a one-row task.
func (ds *diagnosticsSensor) dampingCurve(cmd map[string]any) (map[string]any, error) {
	raw, ok := cmd["singular_values"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("damping_curve requires a non-empty 'singular_values' list")
	}
	sigmas := make([]float64, 0, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return nil, fmt.Errorf("singular value %d must be a non-negative number, got %v", i, v)
		}
		sigmas = append(sigmas, f)
	}
	sort.Float64s(sigmas)

	damping := ds.controller.Solver().Damping()
	factors := make([]any, len(sigmas))
	for i, s := range sigmas {
		factors[i] = damping.Factor(SingularValues{Values: []float64{s}, Rows: 1, Cols: 1})
	}
	return map[string]any{
		"method":          string(damping.Method()),
		"singular_values": floatsToInterfaces(sigmas),
		"damping_factors": factors,
	}, nil
}

func (ds *diagnosticsSensor) Close(ctx context.Context) error {
	ds.registry.ReleaseController(ds.controller)
	return nil
}
