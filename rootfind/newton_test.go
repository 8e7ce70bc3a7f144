package rootfind

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmesh/lowmach/field"
)

func floatPtr(v float64) *float64 { return &v }

func TestNewtonLinear(t *testing.T) {
	// f(x) = x - 5 has unit Jacobian, one step lands exactly on the root.
	objective := func(x *field.Field) *field.Field {
		return x.Map(func(v float64) float64 { return v - 5 })
	}
	x0 := field.NewUniform(4, 4, 4, 0)

	sol, err := Newton(objective, x0, Options{MaxIterations: 2})
	require.NoError(t, err)
	for _, v := range sol.Data {
		assert.InDelta(t, 5., v, 1.e-10)
	}
}

func TestNewtonQuadratic(t *testing.T) {
	// f(x) = x^2 - 4, root at 2 from a positive guess.
	objective := func(x *field.Field) *field.Field {
		return x.Map(func(v float64) float64 { return v*v - 4 })
	}
	{ // secant Jacobian
		sol, err := Newton(objective, field.NewUniform(2, 2, 2, 3),
			Options{MaxIterations: 50})
		require.NoError(t, err)
		assert.InDelta(t, 2., sol.At(0, 0, 0), 1.e-6)
	}
	{ // analytical Jacobian
		sol, err := Newton(objective, field.NewUniform(2, 2, 2, 3),
			Options{
				MaxIterations: 50,
				Jacobian: func(x *field.Field) *field.Field {
					return x.Scale(2)
				},
			})
		require.NoError(t, err)
		assert.InDelta(t, 2., sol.At(0, 0, 0), 1.e-8)
	}
}

func TestNewtonZeroIterations(t *testing.T) {
	evaluations := 0
	objective := func(x *field.Field) *field.Field {
		evaluations++
		return x
	}
	x0 := field.NewUniform(2, 2, 2, 7)

	sol, err := Newton(objective, x0, Options{MaxIterations: 0})
	require.NoError(t, err)
	assert.Equal(t, x0, sol)
	assert.Zero(t, evaluations)
}

func TestNewtonNegativeTolerance(t *testing.T) {
	objective := func(x *field.Field) *field.Field { return x }
	x0 := field.NewUniform(2, 2, 2, 1)

	_, err := Newton(objective, x0, Options{
		MaxIterations:  5,
		ValueTolerance: floatPtr(-1.e-6),
	})
	assert.Error(t, err)

	_, err = Newton(objective, x0, Options{
		MaxIterations:     5,
		PositionTolerance: floatPtr(-1),
	})
	assert.Error(t, err)
}

func TestNewtonValueToleranceEarlyStop(t *testing.T) {
	evaluations := 0
	objective := func(x *field.Field) *field.Field {
		evaluations++
		return x.Map(func(v float64) float64 { return v - 5 })
	}

	_, err := Newton(objective, field.NewUniform(2, 2, 2, 0), Options{
		MaxIterations:  100,
		ValueTolerance: floatPtr(1.e-8),
	})
	require.NoError(t, err)
	// Linear problem converges in one update; the budget is not exhausted.
	assert.Less(t, evaluations, 20)
}

func TestNewtonSafeDivision(t *testing.T) {
	// A flat objective has zero Jacobian everywhere; the safe division policy
	// leaves the iterate unchanged instead of producing NaN.
	objective := func(x *field.Field) *field.Field {
		return field.NewUniform(x.Nx, x.Ny, x.Nz, 3)
	}
	jacobian := func(x *field.Field) *field.Field {
		return field.ZerosLike(x)
	}

	sol, err := Newton(objective, field.NewUniform(2, 2, 2, 1), Options{
		MaxIterations: 3,
		Jacobian:      jacobian,
	})
	require.NoError(t, err)
	for _, v := range sol.Data {
		require.False(t, math.IsNaN(v))
		assert.Equal(t, 1., v)
	}
}

func TestNewtonMultiCoupled2D(t *testing.T) {
	// x + y = 3, x - y = 1 -> (2, 1).
	objective := func(x []*field.Field) []*field.Field {
		return []*field.Field{
			field.Map2(x[0], x[1], func(a, b float64) float64 { return a + b - 3 }),
			field.Map2(x[0], x[1], func(a, b float64) float64 { return a - b - 1 }),
		}
	}
	initial := []*field.Field{
		field.NewUniform(2, 2, 2, 0),
		field.NewUniform(2, 2, 2, 0),
	}

	sol, err := NewtonMulti(objective, initial, MultiOptions{MaxIterations: 5})
	require.NoError(t, err)
	require.Len(t, sol, 2)
	assert.InDelta(t, 2., sol[0].At(0, 0, 0), 1.e-6)
	assert.InDelta(t, 1., sol[1].At(0, 0, 0), 1.e-6)
}

func TestNewtonMultiCoupled3D(t *testing.T) {
	// x + y + z = 6, x - y = -1, y - z = -1 -> (1, 2, 3).
	objective := func(x []*field.Field) []*field.Field {
		return []*field.Field{
			field.Map3(x[0], x[1], x[2],
				func(a, b, c float64) float64 { return a + b + c - 6 }),
			field.Map2(x[0], x[1], func(a, b float64) float64 { return a - b + 1 }),
			field.Map2(x[1], x[2], func(b, c float64) float64 { return b - c + 1 }),
		}
	}
	initial := []*field.Field{
		field.NewUniform(2, 2, 2, 0.5),
		field.NewUniform(2, 2, 2, 0.5),
		field.NewUniform(2, 2, 2, 0.5),
	}

	sol, err := NewtonMulti(objective, initial, MultiOptions{MaxIterations: 8})
	require.NoError(t, err)
	assert.InDelta(t, 1., sol[0].At(1, 1, 1), 1.e-5)
	assert.InDelta(t, 2., sol[1].At(1, 1, 1), 1.e-5)
	assert.InDelta(t, 3., sol[2].At(1, 1, 1), 1.e-5)
}

func TestNewtonMultiZeroIterations(t *testing.T) {
	initial := []*field.Field{field.NewUniform(2, 2, 2, 9)}
	sol, err := NewtonMulti(nil, initial, MultiOptions{MaxIterations: -1})
	require.NoError(t, err)
	assert.Equal(t, initial, sol)
}

func TestNewtonMultiDimensionLimit(t *testing.T) {
	initial := []*field.Field{
		field.NewUniform(2, 2, 2, 0), field.NewUniform(2, 2, 2, 0),
		field.NewUniform(2, 2, 2, 0), field.NewUniform(2, 2, 2, 0),
	}
	_, err := NewtonMulti(nil, initial, MultiOptions{MaxIterations: 2})
	assert.Error(t, err)
}

func TestPerturbationFloorOnlyAtZero(t *testing.T) {
	x := field.NewField(1, 1, 3)
	x.Set(0, 0, 1, 1.e-6)
	x.Set(0, 0, 2, -2.0)

	dx := perturbation(x)
	{ // a zero iterate falls back to the absolute floor
		assert.Equal(t, absEps, dx.At(0, 0, 0))
	}
	{ // nonzero iterates keep the relative scale however small
		assert.Equal(t, secantEps*1.e-6, dx.At(0, 0, 1))
		assert.Equal(t, secantEps*2.0, dx.At(0, 0, 2))
	}
}
