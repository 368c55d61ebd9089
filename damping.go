package twist_controller

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DampingMethod selects how the Jacobian inversion is regularized near singularities.
type DampingMethod string

const (
	DampingMethodNone                DampingMethod = "none"
	DampingMethodConstant            DampingMethod = "constant"
	DampingMethodManipulability      DampingMethod = "manipulability"
	DampingMethodLeastSingularValues DampingMethod = "least_singular_values"
)

// ParseDampingMethod converts a configuration string into a DampingMethod.
// "lsv" is accepted as an alias for least_singular_values.
func ParseDampingMethod(s string) (DampingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return DampingMethodNone, nil
	case "constant":
		return DampingMethodConstant, nil
	case "manipulability":
		return DampingMethodManipulability, nil
	case "least_singular_values", "lsv":
		return DampingMethodLeastSingularValues, nil
	default:
		return "", errors.Wrapf(ErrConfiguration, "damping method %q not defined", s)
	}
}

// DampingParams are the scalar tunables of the damping policies. They are set once at
// configuration time and never change while the controller runs.
type DampingParams struct {
	Method        DampingMethod `json:"damping_method"`
	DampingFactor float64       `json:"damping_factor,omitempty"` // constant
	LambdaMax     float64       `json:"lambda_max,omitempty"`     // manipulability, lsv
	WThreshold    float64       `json:"w_threshold,omitempty"`    // manipulability
	EpsDamping    float64       `json:"eps_damping,omitempty"`    // lsv
	EpsTruncation float64       `json:"eps_truncation,omitempty"` // pseudo-inverse
}

// Validate checks the parameters required by the selected method.
func (p DampingParams) Validate() error {
	if p.DampingFactor < 0 || p.LambdaMax < 0 || p.EpsTruncation < 0 {
		return errors.Wrap(ErrConfiguration, "damping_factor, lambda_max and eps_truncation must not be negative")
	}
	switch p.Method {
	case DampingMethodNone, DampingMethodConstant:
	case DampingMethodManipulability:
		if p.WThreshold <= 0 {
			return errors.Wrapf(ErrConfiguration, "w_threshold must be positive, got %v", p.WThreshold)
		}
	case DampingMethodLeastSingularValues:
		if p.EpsDamping <= 0 {
			return errors.Wrapf(ErrConfiguration, "eps_damping must be positive, got %v", p.EpsDamping)
		}
	default:
		return errors.Wrapf(ErrConfiguration, "damping method %q not defined", p.Method)
	}
	return nil
}

// SingularValues of an M×N Jacobian, sorted ascending.
type SingularValues struct {
	Values     []float64
	Rows, Cols int
}

// SingularValuesOf factorizes the Jacobian and returns its singular values.
func SingularValuesOf(jacobian mat.Matrix) (SingularValues, error) {
	r, c := jacobian.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(jacobian, mat.SVDNone); !ok {
		return SingularValues{}, errors.Wrap(ErrNumericalFailure, "singular value decomposition did not converge")
	}
	values := svd.Values(nil)
	sort.Float64s(values)
	return SingularValues{Values: values, Rows: r, Cols: c}, nil
}

// Min returns the smallest singular value, the distance to the closest singular configuration.
func (sv SingularValues) Min() float64 {
	if len(sv.Values) == 0 {
		return 0
	}
	return sv.Values[0]
}

// Manipulability returns w = sqrt(|det(J·Jᵗ)|). J·Jᵗ is rank deficient when the
// Jacobian has more rows than columns, so w is 0 there.
func (sv SingularValues) Manipulability() float64 {
	if sv.Rows > sv.Cols || len(sv.Values) == 0 {
		return 0
	}
	w := 1.0
	for _, s := range sv.Values {
		w *= s
	}
	return w
}

// Damping computes the damping factor λ used to regularize the pseudo-inverse.
// The set of implementations is closed: NewDamping is the only way to get one from
// configuration and it refuses unknown methods.
type Damping interface {
	Factor(sv SingularValues) float64
	Method() DampingMethod

	sealed()
}

// NewDamping builds the damping policy selected by params.Method.
func NewDamping(params DampingParams) (Damping, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	switch params.Method {
	case DampingMethodNone:
		return DampingNone{}, nil
	case DampingMethodConstant:
		return DampingConstant{DampingFactor: params.DampingFactor}, nil
	case DampingMethodManipulability:
		return DampingManipulability{LambdaMax: params.LambdaMax, WThreshold: params.WThreshold}, nil
	case DampingMethodLeastSingularValues:
		return DampingLeastSingularValues{LambdaMax: params.LambdaMax, EpsDamping: params.EpsDamping}, nil
	}
	return nil, errors.Wrapf(ErrConfiguration, "damping method %q not defined", params.Method)
}

// DampingNone never damps. Only safe away from singular configurations.
type DampingNone struct{}

func (DampingNone) Factor(SingularValues) float64 { return 0 }
func (DampingNone) Method() DampingMethod         { return DampingMethodNone }
func (DampingNone) sealed()                       {}

// DampingConstant always returns the configured factor.
type DampingConstant struct {
	DampingFactor float64
}

func (d DampingConstant) Factor(SingularValues) float64 { return d.DampingFactor }
func (DampingConstant) Method() DampingMethod           { return DampingMethodConstant }
func (DampingConstant) sealed()                         {}

// DampingManipulability damps according to the manipulability measure
// [Nakamura, "Advanced Robotics: Redundancy and Optimization", p. 268]:
// λ = λmax·(1 − w/w_threshold)² below the threshold, 0 above it.
type DampingManipulability struct {
	LambdaMax  float64
	WThreshold float64
}

func (d DampingManipulability) Factor(sv SingularValues) float64 {
	w := sv.Manipulability()
	if w >= d.WThreshold {
		return 0
	}
	tmp := 1 - w/d.WThreshold
	return d.LambdaMax * tmp * tmp
}

func (DampingManipulability) Method() DampingMethod { return DampingMethodManipulability }
func (DampingManipulability) sealed()               {}

// DampingLeastSingularValues couples the damping to the smallest singular value
// (singularity-robust task-priority formulation):
// λ = sqrt((1 − (σmin/ε)²)·λmax²) for σmin < ε, 0 otherwise.
type DampingLeastSingularValues struct {
	LambdaMax  float64
	EpsDamping float64
}

func (d DampingLeastSingularValues) Factor(sv SingularValues) float64 {
	sigmaMin := sv.Min()
	if sigmaMin >= d.EpsDamping {
		return 0
	}
	ratio := sigmaMin / d.EpsDamping
	return math.Sqrt((1 - ratio*ratio) * d.LambdaMax * d.LambdaMax)
}

func (DampingLeastSingularValues) Method() DampingMethod { return DampingMethodLeastSingularValues }
func (DampingLeastSingularValues) sealed()               {}
