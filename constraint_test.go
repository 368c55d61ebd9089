package twist_controller

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// fixedConstraint returns a constant gradient and self-motion weight.
type fixedConstraint struct {
	name     string
	priority int
	gradient []float64
	weight   float64
	updates  int
}

func (c *fixedConstraint) Name() string  { return c.name }
func (c *fixedConstraint) Priority() int { return c.priority }

func (c *fixedConstraint) Gradient(state JointState) mat.Vector {
	if c.gradient == nil {
		return nil
	}
	return mat.NewVecDense(len(c.gradient), append([]float64(nil), c.gradient...))
}

func (c *fixedConstraint) SelfMotionWeight(taskSolution, projectedGradient mat.Vector) float64 {
	return c.weight
}

func (c *fixedConstraint) Update(state JointState) { c.updates++ }

// jointLimitConstraint pushes one joint back toward the middle of its range once it comes
// within margin of a limit.
type jointLimitConstraint struct {
	joint      int
	lower      float64
	upper      float64
	margin     float64
	jointCount int
	gain       float64
}

func (c *jointLimitConstraint) Name() string  { return "joint_limit" }
func (c *jointLimitConstraint) Priority() int { return 1 }

func (c *jointLimitConstraint) Gradient(state JointState) mat.Vector {
	g := mat.NewVecDense(c.jointCount, nil)
	q := state.Positions[c.joint]
	switch {
	case q > c.upper-c.margin:
		g.SetVec(c.joint, -(q-(c.upper-c.margin))/c.margin)
	case q < c.lower+c.margin:
		g.SetVec(c.joint, ((c.lower+c.margin)-q)/c.margin)
	}
	return g
}

func (c *jointLimitConstraint) SelfMotionWeight(taskSolution, projectedGradient mat.Vector) float64 {
	return c.gain
}

func TestConstraintSetOrdering(t *testing.T) {
	set, err := NewConstraintSet(
		&fixedConstraint{name: "b", priority: 2},
		&fixedConstraint{name: "z", priority: 1},
		&fixedConstraint{name: "a", priority: 1},
	)
	require.NoError(t, err)

	names := func() []string {
		var out []string
		for _, c := range set.Ordered() {
			out = append(out, c.Name())
		}
		return out
	}
	assert.Equal(t, []string{"a", "z", "b"}, names())

	require.NoError(t, set.Add(&fixedConstraint{name: "first", priority: 0}))
	assert.Equal(t, []string{"first", "a", "z", "b"}, names())

	assert.True(t, set.Remove("z"))
	assert.False(t, set.Remove("z"))
	assert.Equal(t, []string{"first", "a", "b"}, names())
	assert.Equal(t, 3, set.Len())
}

func TestConstraintSetRejectsDuplicatesAndNil(t *testing.T) {
	set, err := NewConstraintSet(&fixedConstraint{name: "limit"})
	require.NoError(t, err)

	assert.Error(t, set.Add(&fixedConstraint{name: "limit", priority: 5}))
	assert.Error(t, set.Add(nil))
	assert.Equal(t, 1, set.Len())

	_, err = NewConstraintSet(&fixedConstraint{name: "x"}, &fixedConstraint{name: "x"})
	assert.Error(t, err)
}

func TestConstraintSetOrderedIsSnapshot(t *testing.T) {
	set, err := NewConstraintSet(&fixedConstraint{name: "a"}, &fixedConstraint{name: "b"})
	require.NoError(t, err)

	snapshot := set.Ordered()
	require.NoError(t, set.Add(&fixedConstraint{name: "0", priority: -1}))
	assert.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Name())

	var nilSet *ConstraintSet
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.Ordered())
}

func TestParseSelfMotionAggregation(t *testing.T) {
	for input, expected := range map[string]SelfMotionAggregation{
		"":        SelfMotionMinimum,
		"min":     SelfMotionMinimum,
		"Minimum": SelfMotionMinimum,
		"last":    SelfMotionLast,
	} {
		got, err := ParseSelfMotionAggregation(input)
		require.NoError(t, err)
		assert.Equal(t, expected, got, input)
	}

	_, err := ParseSelfMotionAggregation("sum")
	assert.True(t, errors.Is(err, ErrConfiguration))
}
