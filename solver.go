package twist_controller

import (
	"math"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"
)

// maxTaskDimension is the size of a full Cartesian twist (linear + angular velocity).
const maxTaskDimension = 6

// gradientLogThreshold is the gradient norm above which a cycle's intermediates are logged.
const gradientLogThreshold = 1e-5

// SolverConfig is the static configuration of a GradientProjectionSolver.
type SolverConfig struct {
	JointCount  int
	Damping     DampingParams
	Aggregation SelfMotionAggregation
}

// Diagnostics are the intermediates of one Solve call. They are never read back by the
// solver, so consumers may keep or modify them freely.
type Diagnostics struct {
	DampingFactor       float64
	SingularValues      SingularValues
	PseudoInverse       *mat.Dense
	Projector           *mat.Dense
	TaskSolution        *mat.VecDense
	HomogeneousSolution *mat.VecDense
	SelfMotionWeight    float64
	Constraints         int
}

// Result is the output of one control cycle.
type Result struct {
	JointVelocities *mat.VecDense
	Diagnostics     Diagnostics
}

// GradientProjectionSolver resolves a Cartesian twist into joint velocities with the gradient
// projection method:
//
//	q̇ = J⁺·ẋ + κ·Σᵢ (I − J⁺·J)·gᵢ
//
// where J⁺ is the damped pseudo-inverse and gᵢ are the constraint gradients. It holds no
// per-cycle state; the previous command comes in through JointState.
type GradientProjectionSolver struct {
	jointCount  int
	damping     Damping
	pinv        PseudoInverseCalculator
	constraints *ConstraintSet
	aggregation SelfMotionAggregation
	logger      logging.Logger
}

// NewGradientProjectionSolver validates the configuration and builds the damping policy.
// A nil constraint set behaves like an empty one.
func NewGradientProjectionSolver(
	cfg SolverConfig,
	constraints *ConstraintSet,
	logger logging.Logger,
) (*GradientProjectionSolver, error) {
	if cfg.JointCount <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "joint count must be positive, got %d", cfg.JointCount)
	}
	damping, err := NewDamping(cfg.Damping)
	if err != nil {
		return nil, err
	}
	aggregation := cfg.Aggregation
	if aggregation == "" {
		aggregation = SelfMotionMinimum
	}
	if aggregation != SelfMotionMinimum && aggregation != SelfMotionLast {
		return nil, errors.Wrapf(ErrConfiguration, "self motion aggregation %q not defined", aggregation)
	}
	if constraints == nil {
		constraints, _ = NewConstraintSet()
	}

	return &GradientProjectionSolver{
		jointCount:  cfg.JointCount,
		damping:     damping,
		pinv:        NewPseudoInverseCalculator(cfg.Damping),
		constraints: constraints,
		aggregation: aggregation,
		logger:      logger,
	}, nil
}

// JointCount returns the number of joints the solver was configured for.
func (s *GradientProjectionSolver) JointCount() int {
	return s.jointCount
}

// Damping returns the configured damping policy.
func (s *GradientProjectionSolver) Damping() Damping {
	return s.damping
}

// Constraints returns the constraint set queried on every cycle.
func (s *GradientProjectionSolver) Constraints() *ConstraintSet {
	return s.constraints
}

// Solve runs one cycle: damping factor, damped pseudo-inverse, null-space projector, task
// solution, then the projected constraint gradients.
func (s *GradientProjectionSolver) Solve(jacobian mat.Matrix, twist mat.Vector, state JointState) (*Result, error) {
	if err := s.checkDimensions(jacobian, twist, state); err != nil {
		return nil, err
	}

	sv, err := SingularValuesOf(jacobian)
	if err != nil {
		return nil, err
	}
	lambda := s.damping.Factor(sv)

	pinv, err := s.pinv.Calculate(lambda, jacobian)
	if err != nil {
		return nil, errors.Wrapf(err, "%s damping with factor %v", s.damping.Method(), lambda)
	}

	n := s.jointCount
	var pinvJ mat.Dense
	pinvJ.Mul(pinv, jacobian)
	projector := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		projector.Set(i, i, 1)
	}
	projector.Sub(projector, &pinvJ)

	taskSolution := mat.NewVecDense(n, nil)
	taskSolution.MulVec(pinv, twist)

	homogeneous := mat.NewVecDense(n, nil)
	kappa := 0.0
	var lastGradient mat.Vector
	constraints := s.constraints.Ordered()
	for i, c := range constraints {
		if u, ok := c.(Updater); ok {
			u.Update(state)
		}
		gradient := c.Gradient(state)
		if gradient == nil {
			gradient = mat.NewVecDense(n, nil)
		}
		if gradient.Len() != n {
			return nil, newDimensionMismatchError("gradient of constraint "+c.Name(), gradient.Len(), n)
		}
		lastGradient = gradient

		projected := mat.NewVecDense(n, nil)
		projected.MulVec(projector, gradient)
		homogeneous.AddVec(homogeneous, projected)

		weight := c.SelfMotionWeight(taskSolution, projected)
		switch {
		case s.aggregation == SelfMotionLast, i == 0:
			kappa = weight
		default:
			kappa = math.Min(kappa, weight)
		}
	}

	out := mat.NewVecDense(n, nil)
	if len(constraints) == 0 {
		out.CopyVec(taskSolution)
	} else {
		out.AddScaledVec(taskSolution, kappa, homogeneous)
	}

	if lastGradient != nil && mat.Norm(lastGradient, 2) > gradientLogThreshold && s.logger != nil {
		s.logger.Debugf("gradient projection: damping=%v kappa=%v\npseudo-inverse:\n%v\nprojector:\n%v\ntask solution:\n%v\nhomogeneous solution:\n%v\nq_dot:\n%v",
			lambda, kappa,
			mat.Formatted(pinv, mat.Squeeze()),
			mat.Formatted(projector, mat.Squeeze()),
			mat.Formatted(taskSolution.T(), mat.Squeeze()),
			mat.Formatted(homogeneous.T(), mat.Squeeze()),
			mat.Formatted(out.T(), mat.Squeeze()))
	}

	if hasNonFinite(out) {
		return nil, errors.Wrapf(ErrNumericalFailure, "joint velocity command is not finite (kappa=%v)", kappa)
	}

	return &Result{
		JointVelocities: out,
		Diagnostics: Diagnostics{
			DampingFactor:       lambda,
			SingularValues:      sv,
			PseudoInverse:       pinv,
			Projector:           projector,
			TaskSolution:        taskSolution,
			HomogeneousSolution: homogeneous,
			SelfMotionWeight:    kappa,
			Constraints:         len(constraints),
		},
	}, nil
}

func (s *GradientProjectionSolver) checkDimensions(jacobian mat.Matrix, twist mat.Vector, state JointState) error {
	if jacobian == nil || twist == nil {
		return errors.Wrap(ErrDimensionMismatch, "jacobian and twist are required")
	}
	rows, cols := jacobian.Dims()
	if cols != s.jointCount {
		return newDimensionMismatchError("jacobian columns", cols, s.jointCount)
	}
	if rows < 1 || rows > maxTaskDimension {
		return errors.Wrapf(ErrDimensionMismatch, "jacobian has %d rows, expected 1 to %d", rows, maxTaskDimension)
	}
	if twist.Len() != rows {
		return newDimensionMismatchError("twist", twist.Len(), rows)
	}
	if len(state.Positions) != s.jointCount {
		return newDimensionMismatchError("joint positions", len(state.Positions), s.jointCount)
	}
	if len(state.LastVelocities) != 0 && len(state.LastVelocities) != s.jointCount {
		return newDimensionMismatchError("last joint velocities", len(state.LastVelocities), s.jointCount)
	}
	return nil
}
