package twist_controller

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Twist is a Cartesian velocity: linear part in m/s, angular part in rad/s, both in the
// base frame of the arm.
type Twist struct {
	Linear  r3.Vector
	Angular r3.Vector
}

// TwistFromSlice reads [vx, vy, vz, wx, wy, wz].
func TwistFromSlice(values []float64) (Twist, error) {
	if len(values) != maxTaskDimension {
		return Twist{}, newDimensionMismatchError("twist", len(values), maxTaskDimension)
	}
	return Twist{
		Linear:  r3.Vector{X: values[0], Y: values[1], Z: values[2]},
		Angular: r3.Vector{X: values[3], Y: values[4], Z: values[5]},
	}, nil
}

// Slice returns [vx, vy, vz, wx, wy, wz].
func (t Twist) Slice() []float64 {
	return []float64{t.Linear.X, t.Linear.Y, t.Linear.Z, t.Angular.X, t.Angular.Y, t.Angular.Z}
}

// Vector returns the twist as a 6-vector matching the row layout of the Jacobian.
func (t Twist) Vector() *mat.VecDense {
	return mat.NewVecDense(maxTaskDimension, t.Slice())
}

// IsZero reports whether both parts are zero.
func (t Twist) IsZero() bool {
	return t.Linear == (r3.Vector{}) && t.Angular == (r3.Vector{})
}

func (t Twist) String() string {
	return fmt.Sprintf("linear=(%.4f, %.4f, %.4f) angular=(%.4f, %.4f, %.4f)",
		t.Linear.X, t.Linear.Y, t.Linear.Z, t.Angular.X, t.Angular.Y, t.Angular.Z)
}

// twistFromVector converts the 6-row output of a Jacobian product back into a Twist.
func twistFromVector(v mat.Vector) Twist {
	return Twist{
		Linear:  r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)},
		Angular: r3.Vector{X: v.AtVec(3), Y: v.AtVec(4), Z: v.AtVec(5)},
	}
}
