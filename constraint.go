package twist_controller

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// JointState is the per-cycle input shared with constraints. Both slices are read-only.
type JointState struct {
	Positions []float64
	// LastVelocities is the command issued on the previous cycle. Empty means zero.
	LastVelocities []float64
}

// Constraint contributes a secondary objective that is resolved in the Jacobian's null space.
//
// Gradient returns a joint-space direction (length N) that improves the objective; its scale
// is irrelevant since SelfMotionWeight decides how much of the projected motion is applied.
// Implementations must not touch global state while the solver runs.
type Constraint interface {
	Name() string
	Priority() int
	Gradient(state JointState) mat.Vector
	SelfMotionWeight(taskSolution, projectedGradient mat.Vector) float64
}

// Updater is implemented by constraints that keep bookkeeping across cycles (hysteresis,
// activation state). Update is called exactly once per cycle before Gradient.
type Updater interface {
	Update(state JointState)
}

// SelfMotionAggregation decides which self-motion weight scales the summed null-space motion.
type SelfMotionAggregation string

const (
	// SelfMotionLast uses the weight of the last constraint visited. The homogeneous solution
	// still sums every gradient, so the result depends on iteration order.
	SelfMotionLast SelfMotionAggregation = "last"
	// SelfMotionMinimum uses the smallest weight over all constraints.
	SelfMotionMinimum SelfMotionAggregation = "minimum"
)

// ParseSelfMotionAggregation converts a configuration string into a SelfMotionAggregation.
func ParseSelfMotionAggregation(s string) (SelfMotionAggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minimum", "min":
		return SelfMotionMinimum, nil
	case "last":
		return SelfMotionLast, nil
	default:
		return "", errors.Wrapf(ErrConfiguration, "self motion aggregation %q not defined", s)
	}
}

// ConstraintSet holds constraints unique by name and iterates them by ascending priority,
// then name.
type ConstraintSet struct {
	mu          sync.RWMutex
	constraints map[string]Constraint
	ordered     []Constraint
}

// NewConstraintSet returns a set holding the given constraints.
func NewConstraintSet(constraints ...Constraint) (*ConstraintSet, error) {
	cs := &ConstraintSet{constraints: make(map[string]Constraint)}
	for _, c := range constraints {
		if err := cs.Add(c); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// Add registers a constraint. Names identify constraints; adding a name twice is an error.
func (cs *ConstraintSet) Add(c Constraint) error {
	if c == nil {
		return errors.New("constraint must not be nil")
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.constraints[c.Name()]; exists {
		return errors.Errorf("constraint %q already registered", c.Name())
	}
	cs.constraints[c.Name()] = c
	cs.reorder()
	return nil
}

// Remove drops the named constraint and reports whether it was present.
func (cs *ConstraintSet) Remove(name string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.constraints[name]; !exists {
		return false
	}
	delete(cs.constraints, name)
	cs.reorder()
	return true
}

// Len returns the number of constraints.
func (cs *ConstraintSet) Len() int {
	if cs == nil {
		return 0
	}
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.ordered)
}

// Ordered returns a snapshot of the constraints in iteration order.
func (cs *ConstraintSet) Ordered() []Constraint {
	if cs == nil {
		return nil
	}
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Constraint, len(cs.ordered))
	copy(out, cs.ordered)
	return out
}

func (cs *ConstraintSet) reorder() {
	cs.ordered = cs.ordered[:0]
	for _, c := range cs.constraints {
		cs.ordered = append(cs.ordered, c)
	}
	sort.Slice(cs.ordered, func(i, j int) bool {
		a, b := cs.ordered[i], cs.ordered[j]
		if a.Priority() != b.Priority() {
			return a.Priority() < b.Priority()
		}
		return a.Name() < b.Name()
	})
}
