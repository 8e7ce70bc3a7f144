package rootfind

import (
	"fmt"
	"math"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
)

// MultiObjectiveFn evaluates a coupled residual of 1 to 3 components.
type MultiObjectiveFn func(x []*field.Field) []*field.Field

// MultiJacobianFn returns the full Jacobian matrix, row-major: entry [i][j]
// is the derivative of component i with respect to unknown j.
type MultiJacobianFn func(x []*field.Field) [][]*field.Field

// MultiOptions configures NewtonMulti. When Replica is non-nil the solver
// tracks the iterate with the smallest global L1 residual and returns it,
// and the early-stop decision is reduced across all replicas so every
// replica leaves the loop on the same iteration.
type MultiOptions struct {
	MaxIterations     int
	ValueTolerance    *float64
	PositionTolerance *float64
	Jacobian          MultiJacobianFn
	Replica           *comm.Replica
}

// NewtonMulti finds the root of a coupled system of 1 to 3 unknowns per grid
// cell. The linear update is solved elementwise in closed form; 2x2 and 3x3
// systems use Cramer's rule with zero-on-zero-determinant division.
func NewtonMulti(objective MultiObjectiveFn, initial []*field.Field,
	opts MultiOptions) ([]*field.Field, error) {
	dims := len(initial)
	if dims < 1 || dims > 3 {
		return nil, fmt.Errorf("newton solver supports 1 to 3 unknowns, got %d", dims)
	}
	if err := validTolerances(opts.ValueTolerance, opts.PositionTolerance); err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		return initial, nil
	}

	jacobian := opts.Jacobian
	if jacobian == nil {
		jacobian = func(x []*field.Field) [][]*field.Field {
			return numericalJacobian(objective, x)
		}
	}

	var (
		x            = initial
		x0           = make([]*field.Field, dims)
		f            = objective(initial)
		bestX        = initial
		bestResidual = -1.
		group        []int
	)
	for c, xc := range initial {
		x0[c] = xc.Map(func(v float64) float64 { return 1 + 2*math.Abs(v) })
	}
	if opts.Replica != nil {
		group = opts.Replica.Grid().Groups(nil)[0]
	}

	for i := 0; i < opts.MaxIterations; i++ {
		done := converged(opts.ValueTolerance, f, opts.PositionTolerance, x0, x)
		if opts.Replica != nil {
			// All replicas must agree to stop, otherwise a replica that
			// keeps iterating blocks on the residual reduction below.
			notDone := 0.
			if !done {
				notDone = 1
			}
			done = opts.Replica.GlobalMax(notDone, group) == 0
		}
		if done {
			break
		}

		f = objective(x)
		df := jacobian(x)

		var dx []*field.Field
		switch dims {
		case 1:
			dx = []*field.Field{field.DivideNoNaN(f[0], df[0][0])}
		case 2:
			dx = solve2x2(df, f)
		default:
			dx = solve3x3(df, f)
		}

		x1 := make([]*field.Field, dims)
		for c := range x {
			x1[c] = field.Sub(x[c], dx[c])
		}

		if opts.Replica != nil {
			residual := 0.
			for _, fc := range f {
				norms, err := opts.Replica.ComputeNorm(fc, []comm.NormType{comm.L1})
				if err != nil {
					return nil, err
				}
				residual += norms[comm.L1]
			}
			if i == 0 || residual <= bestResidual {
				bestResidual, bestX = residual, x
			}
		} else {
			bestX = x1
		}
		x0, x = x, x1
	}

	if opts.Replica != nil {
		return bestX, nil
	}
	return x, nil
}

// numericalJacobian builds the Jacobian column by column: each unknown is
// perturbed in isolation and all residual components are re-evaluated.
func numericalJacobian(objective MultiObjectiveFn, x []*field.Field) [][]*field.Field {
	dims := len(x)
	df := make([][]*field.Field, dims)
	for i := range df {
		df[i] = make([]*field.Field, dims)
	}
	for j := 0; j < dims; j++ {
		dx := perturbation(x[j])
		x1 := append([]*field.Field(nil), x...)
		x2 := append([]*field.Field(nil), x...)
		x1[j] = field.AddScaled(x[j], -0.5, dx)
		x2[j] = field.AddScaled(x[j], 0.5, dx)
		f1 := objective(x1)
		f2 := objective(x2)
		for i := 0; i < dims; i++ {
			df[i][j] = field.DivideNoNaN(field.Sub(f2[i], f1[i]), dx)
		}
	}
	return df
}

// solve2x2 solves [[a,b],[c,d]] dx = f elementwise by Cramer's rule.
func solve2x2(m [][]*field.Field, f []*field.Field) []*field.Field {
	a, b := m[0][0], m[0][1]
	c, d := m[1][0], m[1][1]
	det := field.Sub(field.Mul(a, d), field.Mul(b, c))
	return []*field.Field{
		field.DivideNoNaN(field.Sub(field.Mul(f[0], d), field.Mul(f[1], b)), det),
		field.DivideNoNaN(field.Sub(field.Mul(a, f[1]), field.Mul(c, f[0])), det),
	}
}

// solve3x3 solves the 3x3 system elementwise by Cramer's rule, expanding
// each determinant along its first row.
func solve3x3(m [][]*field.Field, f []*field.Field) []*field.Field {
	det := det3(
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2])
	d0 := det3(
		f[0], m[0][1], m[0][2],
		f[1], m[1][1], m[1][2],
		f[2], m[2][1], m[2][2])
	d1 := det3(
		m[0][0], f[0], m[0][2],
		m[1][0], f[1], m[1][2],
		m[2][0], f[2], m[2][2])
	d2 := det3(
		m[0][0], m[0][1], f[0],
		m[1][0], m[1][1], f[1],
		m[2][0], m[2][1], f[2])
	return []*field.Field{
		field.DivideNoNaN(d0, det),
		field.DivideNoNaN(d1, det),
		field.DivideNoNaN(d2, det),
	}
}

func det3(a, b, c, d, e, f, g, h, i *field.Field) *field.Field {
	return field.Add(
		field.Sub(
			field.Mul(a, field.Sub(field.Mul(e, i), field.Mul(f, h))),
			field.Mul(b, field.Sub(field.Mul(d, i), field.Mul(f, g)))),
		field.Mul(c, field.Sub(field.Mul(d, h), field.Mul(e, g))))
}
