// Package rootfind implements fixed-budget Newton iteration over fields.
//
// The solvers run for a statically known iteration count so that every
// replica in a lockstep group executes the identical control flow; optional
// tolerances allow early termination only when agreed by all replicas.
package rootfind

import (
	"fmt"
	"math"

	"github.com/structmesh/lowmach/field"
)

// ObjectiveFn evaluates the residual whose root is sought.
type ObjectiveFn func(x *field.Field) *field.Field

// JacobianFn supplies an analytical derivative of the objective.
type JacobianFn func(x *field.Field) *field.Field

const (
	// float64 decimal resolution, the base of the secant perturbation.
	machineResolution = 1e-15
	// Absolute perturbation floor where the iterate is exactly zero.
	absEps = 1e-4
)

// secantEps is the finite-difference perturbation scale, the power of two
// closest above ten times the machine resolution (about 1.42e-14).
var secantEps = math.Exp2(math.Ceil(math.Log2(10 * machineResolution)))

// Options configures a Newton solve. Tolerances are optional; a negative
// value is a configuration error. Jacobian is optional; when nil the
// derivative is estimated by central finite differences (secant method).
type Options struct {
	MaxIterations     int
	ValueTolerance    *float64
	PositionTolerance *float64
	Jacobian          JacobianFn
}

func validTolerances(value, position *float64) error {
	if value != nil && *value < 0 {
		return fmt.Errorf("value tolerance must be non-negative, got %g", *value)
	}
	if position != nil && *position < 0 {
		return fmt.Errorf("position tolerance must be non-negative, got %g", *position)
	}
	return nil
}

// Newton finds x such that objective(x) = 0, elementwise over the field.
//
// The update x <- x - f/df uses division that yields zero on a zero
// denominator, so cells with no local sensitivity simply stop moving. With
// MaxIterations <= 0 the initial guess is returned without evaluating the
// objective.
func Newton(objective ObjectiveFn, initial *field.Field, opts Options) (*field.Field, error) {
	if err := validTolerances(opts.ValueTolerance, opts.PositionTolerance); err != nil {
		return nil, err
	}
	if opts.MaxIterations <= 0 {
		return initial, nil
	}

	jacobian := opts.Jacobian
	if jacobian == nil {
		jacobian = func(x *field.Field) *field.Field {
			dx := perturbation(x)
			f1 := objective(field.AddScaled(x, -0.5, dx))
			f2 := objective(field.AddScaled(x, 0.5, dx))
			return field.DivideNoNaN(field.Sub(f2, f1), dx)
		}
	}

	var (
		x  = initial
		x0 = initial.Map(func(v float64) float64 { return 1 + 2*math.Abs(v) })
		f  = objective(initial)
	)
	for i := 0; i < opts.MaxIterations; i++ {
		if converged(opts.ValueTolerance, []*field.Field{f},
			opts.PositionTolerance, []*field.Field{x0}, []*field.Field{x}) {
			break
		}
		f = objective(x)
		df := jacobian(x)
		x0, x = x, field.Sub(x, field.DivideNoNaN(f, df))
	}
	return x, nil
}

// perturbation returns eps*|x| with the absolute floor applied where the
// scaled value vanishes.
func perturbation(x *field.Field) *field.Field {
	return x.Map(func(v float64) float64 {
		dx := secantEps * math.Abs(v)
		if dx == 0 {
			return absEps
		}
		return dx
	})
}

// converged reports whether both supplied tolerances hold for every element
// of every component. A nil tolerance never blocks iteration on its own, but
// at least one must be present for early stop to trigger.
func converged(valueTol *float64, f []*field.Field,
	positionTol *float64, x0, x []*field.Field) bool {
	if valueTol == nil && positionTol == nil {
		return false
	}
	if valueTol != nil {
		for _, fi := range f {
			if fi.MaxAbs() > *valueTol {
				return false
			}
		}
	}
	if positionTol != nil {
		for c := range x {
			for n, a := range x0[c].Data {
				b := x[c].Data[n]
				if math.Abs(a-b) > *positionTol*(1+math.Abs(b)) {
					return false
				}
			}
		}
	}
	return true
}
