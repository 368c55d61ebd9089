package twist_controller

import (
	"context"
	_ "embed"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

//go:embed redundant_arm_7dof.json
var redundantArmModelJSON []byte

// mmPerMeter converts rdk poses (mm) into the SI units of the Jacobian.
const mmPerMeter = 1000.0

// defaultDifferenceStep is the joint perturbation used for the numerical Jacobian, in radians.
const defaultDifferenceStep = 1e-6

// KinematicsProvider supplies the joint configuration and the Jacobian evaluated at it.
type KinematicsProvider interface {
	JointPositions(ctx context.Context) ([]float64, error)
	Jacobian(positions []float64) (*mat.Dense, error)
	DoF() int
}

// LoadModel parses an SVA kinematics JSON file into an rdk model.
func LoadModel(data []byte, name string) (referenceframe.Model, error) {
	model, err := referenceframe.UnmarshalModelJSON(data, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse kinematics model")
	}
	return model, nil
}

// RedundantArmModel returns the embedded 7-DOF arm used by the simulator and tests.
func RedundantArmModel() (referenceframe.Model, error) {
	return LoadModel(redundantArmModelJSON, "redundant_arm_7dof")
}

// ModelKinematics computes the 6×N geometric Jacobian of an rdk model by central differences
// of its forward kinematics. Rows 0-2 are linear velocity (m/s), rows 3-5 angular velocity
// (rad/s), both in the model's base frame.
type ModelKinematics struct {
	model referenceframe.Model
	step  float64
}

// NewModelKinematics wraps a model.
func NewModelKinematics(model referenceframe.Model) (*ModelKinematics, error) {
	if model == nil {
		return nil, errors.New("kinematics model is required")
	}
	if len(model.DoF()) == 0 {
		return nil, errors.Errorf("model %s has no degrees of freedom", model.Name())
	}
	return &ModelKinematics{model: model, step: defaultDifferenceStep}, nil
}

// DoF returns the number of joints of the model.
func (k *ModelKinematics) DoF() int {
	return len(k.model.DoF())
}

// Model returns the wrapped model.
func (k *ModelKinematics) Model() referenceframe.Model {
	return k.model
}

// Limits returns the joint limits of the model.
func (k *ModelKinematics) Limits() []referenceframe.Limit {
	return k.model.DoF()
}

// EndEffectorPose evaluates forward kinematics.
func (k *ModelKinematics) EndEffectorPose(positions []float64) (spatialmath.Pose, error) {
	if len(positions) != k.DoF() {
		return nil, newDimensionMismatchError("joint positions", len(positions), k.DoF())
	}
	return k.transform(positions)
}

// Jacobian returns the 6×N Jacobian at positions.
func (k *ModelKinematics) Jacobian(positions []float64) (*mat.Dense, error) {
	n := k.DoF()
	if len(positions) != n {
		return nil, newDimensionMismatchError("joint positions", len(positions), n)
	}

	jacobian := mat.NewDense(maxTaskDimension, n, nil)
	perturbed := make([]float64, n)
	for j := 0; j < n; j++ {
		copy(perturbed, positions)
		perturbed[j] = positions[j] + k.step
		plus, err := k.transform(perturbed)
		if err != nil {
			return nil, err
		}
		perturbed[j] = positions[j] - k.step
		minus, err := k.transform(perturbed)
		if err != nil {
			return nil, err
		}

		linear := plus.Point().Sub(minus.Point()).Mul(1 / (2 * k.step * mmPerMeter))
		angular := rotationVector(plus.Orientation().Quaternion(), minus.Orientation().Quaternion()).Mul(1 / (2 * k.step))

		jacobian.SetCol(j, []float64{linear.X, linear.Y, linear.Z, angular.X, angular.Y, angular.Z})
	}
	return jacobian, nil
}

// transform tolerates out-of-bounds inputs: the perturbation may step past a joint limit
// and the pose is still valid for differentiation.
func (k *ModelKinematics) transform(positions []float64) (spatialmath.Pose, error) {
	pose, err := k.model.Transform(positions)
	if err != nil {
		if pose != nil && strings.Contains(err.Error(), referenceframe.OOBErrString) {
			return pose, nil
		}
		return nil, errors.Wrap(err, "forward kinematics failed")
	}
	return pose, nil
}

// rotationVector returns the world-frame rotation taking orientation `from` to `to`
// as axis·angle.
func rotationVector(to, from quat.Number) r3.Vector {
	delta := quat.Mul(to, quat.Conj(from))
	if delta.Real < 0 {
		delta = quat.Scale(-1, delta)
	}
	v := r3.Vector{X: delta.Imag, Y: delta.Jmag, Z: delta.Kmag}
	sinHalf := v.Norm()
	if sinHalf < 1e-12 {
		return v.Mul(2)
	}
	angle := 2 * math.Atan2(sinHalf, delta.Real)
	return v.Mul(angle / sinHalf)
}

// ArmKinematics reads joint positions from a live arm and differentiates its model.
type ArmKinematics struct {
	*ModelKinematics
	arm arm.Arm
}

// NewArmKinematics fetches the arm's kinematic model.
func NewArmKinematics(ctx context.Context, a arm.Arm) (*ArmKinematics, error) {
	model, err := a.Kinematics(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get arm kinematics")
	}
	mk, err := NewModelKinematics(model)
	if err != nil {
		return nil, err
	}
	return &ArmKinematics{ModelKinematics: mk, arm: a}, nil
}

// JointPositions reads the current joint positions in radians.
func (k *ArmKinematics) JointPositions(ctx context.Context) ([]float64, error) {
	inputs, err := k.arm.JointPositions(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read joint positions")
	}
	return append([]float64(nil), inputs...), nil
}
