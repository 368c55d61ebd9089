package twist_controller

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PseudoInverseCalculator computes the damped Moore-Penrose pseudo-inverse of a Jacobian
// through its singular value decomposition J = U·Σ·Vᵗ:
//
//	J⁺ = V·Σ'·Uᵗ,  σ'ᵢ = σᵢ / (σᵢ² + λ²)
//
// Singular values below EpsTruncation are dropped entirely.
type PseudoInverseCalculator struct {
	EpsTruncation float64
}

// NewPseudoInverseCalculator returns a calculator using the truncation threshold of params.
func NewPseudoInverseCalculator(params DampingParams) PseudoInverseCalculator {
	return PseudoInverseCalculator{EpsTruncation: params.EpsTruncation}
}

// Calculate returns the N×M damped pseudo-inverse of the M×N jacobian. The damping factor is
// an explicit input; choosing it is the job of a Damping policy.
func (c PseudoInverseCalculator) Calculate(dampingFactor float64, jacobian mat.Matrix) (*mat.Dense, error) {
	if math.IsNaN(dampingFactor) || math.IsInf(dampingFactor, 0) {
		return nil, errors.Wrapf(ErrNumericalFailure, "damping factor is %v", dampingFactor)
	}
	if dampingFactor < 0 {
		return nil, errors.Wrapf(ErrConfiguration, "damping factor must not be negative, got %v", dampingFactor)
	}
	if hasNonFinite(jacobian) {
		return nil, errors.Wrap(ErrNumericalFailure, "jacobian contains non-finite values")
	}

	var svd mat.SVD
	if ok := svd.Factorize(jacobian, mat.SVDThin); !ok {
		return nil, errors.Wrap(ErrNumericalFailure, "singular value decomposition did not converge")
	}
	values := svd.Values(nil)
	lambdaSq := dampingFactor * dampingFactor

	inverted := make([]float64, len(values))
	for i, sigma := range values {
		if sigma < c.EpsTruncation {
			continue
		}
		denominator := sigma*sigma + lambdaSq
		if denominator == 0 {
			return nil, errors.Wrapf(ErrNumericalFailure,
				"singular value %d is zero and no damping is applied", i)
		}
		inverted[i] = sigma / denominator
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var scaled mat.Dense
	scaled.Mul(&v, mat.NewDiagDense(len(inverted), inverted))

	var pinv mat.Dense
	pinv.Mul(&scaled, u.T())
	if hasNonFinite(&pinv) {
		return nil, errors.Wrap(ErrNumericalFailure, "pseudo-inverse contains non-finite values")
	}
	return &pinv, nil
}
