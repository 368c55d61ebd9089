package twist_controller

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTwistFromSlice(t *testing.T) {
	twist, err := TwistFromSlice([]float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 2.0, twist.Linear.Y)
	assert.Equal(t, 6.0, twist.Angular.Z)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, twist.Slice())
	assert.Equal(t, 6, twist.Vector().Len())
	assert.False(t, twist.IsZero())
	assert.True(t, Twist{}.IsZero())

	_, err = TwistFromSlice([]float64{1, 2, 3})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestTwistFromVector(t *testing.T) {
	v := mat.NewVecDense(6, []float64{0.1, 0, 0, 0, 0, -0.3})
	twist := twistFromVector(v)
	assert.Equal(t, 0.1, twist.Linear.X)
	assert.Equal(t, -0.3, twist.Angular.Z)
	assert.Equal(t, "linear=(0.1000, 0.0000, 0.0000) angular=(0.0000, 0.0000, -0.3000)", twist.String())
}
