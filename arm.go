package twist_controller

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
)

var TwistArmModel = resource.NewModel("devrel", "twist-controller", "twist-arm")

func init() {
	resource.RegisterComponent(arm.API, TwistArmModel,
		resource.Registration[arm.Arm, *TwistControllerConfig]{
			Constructor: newTwistArm,
		},
	)
}

// twistArm wraps another arm and adds Cartesian velocity control through DoCommand.
// Everything not overridden here is served by the wrapped arm.
type twistArm struct {
	arm.Arm
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	cfg        *TwistControllerConfig
	controller *TwistController
	registry   *ControllerRegistry
}

func newTwistArm(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (arm.Arm, error) {
	conf, err := resource.NativeConfig[*TwistControllerConfig](rawConf)
	if err != nil {
		return nil, err
	}
	inner, err := arm.FromDependencies(deps, conf.Arm)
	if err != nil {
		return nil, fmt.Errorf("failed to get arm %s: %w", conf.Arm, err)
	}
	return NewTwistArm(ctx, rawConf.ResourceName(), inner, conf, DefaultRegistry, logger)
}

// NewTwistArm builds a twist-controlled arm around inner and registers its controller.
func NewTwistArm(
	ctx context.Context,
	name resource.Name,
	inner arm.Arm,
	conf *TwistControllerConfig,
	registry *ControllerRegistry,
	logger logging.Logger,
) (arm.Arm, error) {
	kinematics, err := NewArmKinematics(ctx, inner)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kinematics: %w", err)
	}

	controller, err := NewTwistController(name.ShortName(), conf, kinematics, NewArmCommandSink(inner), nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize twist controller: %w", err)
	}
	if err := registry.Register(controller); err != nil {
		return nil, err
	}

	logger.Infof("twist arm %s controlling %s: %d joints, %s damping, %v Hz",
		name.ShortName(), conf.Arm, kinematics.DoF(), conf.DampingMethod, conf.ControlRateHz)

	return &twistArm{
		Arm:        inner,
		name:       name,
		logger:     logger,
		cfg:        conf,
		controller: controller,
		registry:   registry,
	}, nil
}

func (t *twistArm) Name() resource.Name {
	return t.name
}

func (t *twistArm) Reconfigure(ctx context.Context, deps resource.Dependencies, conf resource.Config) error {
	return t.AlwaysRebuild.Reconfigure(ctx, deps, conf)
}

// Position commands take over from velocity streaming.
func (t *twistArm) MoveToPosition(ctx context.Context, pose spatialmath.Pose, extra map[string]interface{}) error {
	t.controller.Stop()
	return t.Arm.MoveToPosition(ctx, pose, extra)
}

func (t *twistArm) MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error {
	t.controller.Stop()
	return t.Arm.MoveToJointPositions(ctx, positions, extra)
}

func (t *twistArm) Stop(ctx context.Context, extra map[string]interface{}) error {
	t.controller.Stop()
	t.controller.SetTarget(Twist{})
	return t.Arm.Stop(ctx, extra)
}

func (t *twistArm) IsMoving(ctx context.Context) (bool, error) {
	if t.controller.Running() {
		return true, nil
	}
	return t.Arm.IsMoving(ctx)
}

func (t *twistArm) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "set_twist":
		twist, err := twistFromCommand(cmd)
		if err != nil {
			return nil, err
		}
		t.controller.SetTarget(twist)
		t.controller.Start()
		return map[string]interface{}{"running": true, "target": floatsToInterfaces(twist.Slice())}, nil

	case "stop_twist":
		t.controller.Stop()
		t.controller.SetTarget(Twist{})
		return map[string]interface{}{"running": false}, nil

	case "step":
		if t.controller.Running() {
			return nil, fmt.Errorf("step is not available while streaming, send stop_twist first")
		}
		twist, err := twistFromCommand(cmd)
		if err != nil {
			return nil, err
		}
		command, err := t.controller.Step(ctx, twist)
		if command == nil {
			return nil, err
		}
		result := map[string]interface{}{
			"joint_velocities": floatsToInterfaces(command.Velocities),
			"degraded":         command.Degraded,
		}
		if err != nil {
			result["error"] = err.Error()
			return result, nil
		}
		if applyErr := NewArmCommandSink(t.Arm).Apply(ctx, command.Velocities, t.controller.Period()); applyErr != nil {
			return nil, applyErr
		}
		return result, nil

	case "get_diagnostics":
		return statusReadings(t.controller.Status()), nil

	default:
		return t.Arm.DoCommand(ctx, cmd)
	}
}

// Close stops streaming and unregisters the controller even while sensors still hold it,
// so nothing drives the wrapped arm afterwards and the name can be registered again.
// The wrapped arm is a dependency and is not closed here.
func (t *twistArm) Close(ctx context.Context) error {
	t.logger.Infof("Closing twist arm %s", t.name.ShortName())
	t.controller.Stop()
	t.registry.ForceClose(t.controller.Name())
	return nil
}

func twistFromCommand(cmd map[string]interface{}) (Twist, error) {
	raw, ok := cmd["twist"].([]interface{})
	if !ok {
		return Twist{}, fmt.Errorf("command requires 'twist' as a list of 6 numbers [vx, vy, vz, wx, wy, wz]")
	}
	values := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return Twist{}, fmt.Errorf("twist entry %d must be a number, got %T", i, v)
		}
		values[i] = f
	}
	return TwistFromSlice(values)
}

func floatsToInterfaces(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// statusReadings flattens a controller status into protobuf-friendly values.
func statusReadings(status ControllerStatus) map[string]interface{} {
	readings := map[string]interface{}{
		"running":          status.Running,
		"target":           floatsToInterfaces(status.Target.Slice()),
		"cycles":           status.Cycles,
		"failures":         status.Failures,
		"degraded":         status.Degraded,
		"joint_velocities": floatsToInterfaces(status.LastCommand),
	}
	if status.LastError != "" {
		readings["last_error"] = status.LastError
	}
	if d := status.Diagnostics; d != nil {
		readings["damping_factor"] = d.DampingFactor
		readings["self_motion_weight"] = d.SelfMotionWeight
		readings["min_singular_value"] = d.SingularValues.Min()
		readings["manipulability"] = d.SingularValues.Manipulability()
		readings["constraints"] = d.Constraints
		readings["singular_values"] = floatsToInterfaces(d.SingularValues.Values)
	}
	return readings
}
