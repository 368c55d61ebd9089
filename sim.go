package twist_controller

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
)

// simulatedArm is an in-memory arm that jumps to every commanded joint position. It backs
// the simulator CLI and the tests. Only the methods the controller uses are implemented.
type simulatedArm struct {
	arm.Arm

	name  resource.Name
	model referenceframe.Model

	mu        sync.RWMutex
	positions []float64
	moves     int
}

// NewSimulatedArm returns an arm with the given model starting at positions.
func NewSimulatedArm(name string, model referenceframe.Model, positions []float64) (arm.Arm, error) {
	if len(positions) != len(model.DoF()) {
		return nil, newDimensionMismatchError("initial joint positions", len(positions), len(model.DoF()))
	}
	return &simulatedArm{
		name:      resource.NewName(arm.API, name),
		model:     model,
		positions: append([]float64(nil), positions...),
	}, nil
}

func (s *simulatedArm) Name() resource.Name {
	return s.name
}

func (s *simulatedArm) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	return s.model, nil
}

func (s *simulatedArm) JointPositions(ctx context.Context, extra map[string]interface{}) ([]referenceframe.Input, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]referenceframe.Input(nil), s.positions...), nil
}

func (s *simulatedArm) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	return s.JointPositions(ctx, nil)
}

func (s *simulatedArm) MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error {
	if len(positions) != len(s.model.DoF()) {
		return newDimensionMismatchError("joint positions", len(positions), len(s.model.DoF()))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append([]float64(nil), positions...)
	s.moves++
	return nil
}

func (s *simulatedArm) EndPosition(ctx context.Context, extra map[string]interface{}) (spatialmath.Pose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pose, err := s.model.Transform(s.positions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute end position")
	}
	return pose, nil
}

func (s *simulatedArm) Stop(ctx context.Context, extra map[string]interface{}) error {
	return nil
}

func (s *simulatedArm) IsMoving(ctx context.Context) (bool, error) {
	return false, nil
}

func (s *simulatedArm) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{"moves": s.moves}, nil
}

func (s *simulatedArm) Close(ctx context.Context) error {
	return nil
}
