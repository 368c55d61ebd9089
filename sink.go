package twist_controller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
)

// ArmCommandSink turns joint velocity commands into position targets for an arm by
// integrating one cycle ahead: q + q̇·dt.
type ArmCommandSink struct {
	arm arm.Arm
}

// NewArmCommandSink sends commands to a.
func NewArmCommandSink(a arm.Arm) *ArmCommandSink {
	return &ArmCommandSink{arm: a}
}

// Apply reads the arm's current joint positions and moves it one integration step.
func (s *ArmCommandSink) Apply(ctx context.Context, velocities []float64, dt time.Duration) error {
	inputs, err := s.arm.JointPositions(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to read joint positions")
	}
	if len(inputs) != len(velocities) {
		return newDimensionMismatchError("joint velocity command", len(velocities), len(inputs))
	}

	positions := append([]float64(nil), inputs...)
	for i, v := range velocities {
		positions[i] += v * dt.Seconds()
	}
	if err := s.arm.MoveToJointPositions(ctx, positions, nil); err != nil {
		return errors.Wrap(err, "failed to move to joint positions")
	}
	return nil
}
