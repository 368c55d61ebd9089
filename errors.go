package twist_controller

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrConfiguration is returned when the controller cannot be built from its configuration,
	// e.g. an unknown damping method.
	ErrConfiguration = errors.New("twist controller: invalid configuration")

	// ErrNumericalFailure is returned when the pseudo-inverse or the final command is not finite.
	// The control loop decides how to degrade; the core never returns such a command.
	ErrNumericalFailure = errors.New("twist controller: numerical failure")

	// ErrDimensionMismatch is returned when the Jacobian, joint state or twist sizes disagree
	// with the configured joint count.
	ErrDimensionMismatch = errors.New("twist controller: dimension mismatch")
)

func newDimensionMismatchError(what string, got, want int) error {
	return errors.Wrapf(ErrDimensionMismatch, "%s has %d entries, expected %d", what, got, want)
}

// hasNonFinite checks if there is any NaN or Inf in the matrix.
func hasNonFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
