package field

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Local reductions over the full tile, halos included. Callers strip halos
// first when the halo region must be excluded.

func (f *Field) Sum() float64 {
	return floats.Sum(f.Data)
}

func (f *Field) AbsSum() float64 {
	return floats.Norm(f.Data, 1)
}

func (f *Field) SumSquares() float64 {
	n := floats.Norm(f.Data, 2)
	return n * n
}

func (f *Field) MaxAbs() float64 {
	return floats.Norm(f.Data, math.Inf(1))
}

// SumAlongAxes reduces the field by summation over the given axes, keeping
// the reduced axes as size 1. Axes follow [x, y, z] = [0, 1, 2].
func (f *Field) SumAlongAxes(axes []int) (o *Field) {
	reduce := [3]bool{}
	for _, ax := range axes {
		reduce[ax] = true
	}
	nx, ny, nz := f.Nx, f.Ny, f.Nz
	if reduce[0] {
		nx = 1
	}
	if reduce[1] {
		ny = 1
	}
	if reduce[2] {
		nz = 1
	}
	o = NewField(nx, ny, nz)
	for k := 0; k < f.Nz; k++ {
		for i := 0; i < f.Nx; i++ {
			for j := 0; j < f.Ny; j++ {
				oi, oj, ok := i, j, k
				if reduce[0] {
					oi = 0
				}
				if reduce[1] {
					oj = 0
				}
				if reduce[2] {
					ok = 0
				}
				o.Set(oi, oj, ok, o.At(oi, oj, ok)+f.At(i, j, k))
			}
		}
	}
	return
}
