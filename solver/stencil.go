package solver

import (
	"github.com/structmesh/lowmach/field"
)

// Finite difference stencils over the local tile. All operators write the
// interior of the result only; halo cells are left at zero and are refreshed
// by the next halo exchange before any stencil reads them.

// gradient computes the central difference df/dx_dim with spacing h.
func gradient(f *field.Field, dim int, h float64) *field.Field {
	out := field.ZerosLike(f)
	inv := 1 / (2 * h)
	forEachInterior(f, 1, func(i, j, k int) {
		var lo, hi float64
		switch dim {
		case 0:
			lo, hi = f.At(i-1, j, k), f.At(i+1, j, k)
		case 1:
			lo, hi = f.At(i, j-1, k), f.At(i, j+1, k)
		default:
			lo, hi = f.At(i, j, k-1), f.At(i, j, k+1)
		}
		out.Set(i, j, k, (hi-lo)*inv)
	})
	return out
}

// laplacian computes the 7-point Laplacian with anisotropic spacing.
func laplacian(f *field.Field, dx, dy, dz float64) *field.Field {
	out := field.ZerosLike(f)
	ix, iy, iz := 1/(dx*dx), 1/(dy*dy), 1/(dz*dz)
	forEachInterior(f, 1, func(i, j, k int) {
		c := f.At(i, j, k)
		v := ix*(f.At(i-1, j, k)-2*c+f.At(i+1, j, k)) +
			iy*(f.At(i, j-1, k)-2*c+f.At(i, j+1, k)) +
			iz*(f.At(i, j, k-1)-2*c+f.At(i, j, k+1))
		out.Set(i, j, k, v)
	})
	return out
}

// divergence sums the component gradients of a vector field.
func divergence(fx, fy, fz *field.Field, dx, dy, dz float64) *field.Field {
	return field.Add(field.Add(
		gradient(fx, 0, dx),
		gradient(fy, 1, dy)),
		gradient(fz, 2, dz))
}

// upwindFluxDivergence computes div(m*phi) in conservative donor-cell form,
// where (mx, my, mz) is the mass flux and phi the advected quantity. Face
// fluxes take phi from the upwind side of the face.
func upwindFluxDivergence(mx, my, mz, phi *field.Field,
	dx, dy, dz float64) *field.Field {
	out := field.ZerosLike(phi)
	h := [3]float64{dx, dy, dz}
	m := [3]*field.Field{mx, my, mz}

	at := func(f *field.Field, i, j, k, dim, off int) float64 {
		switch dim {
		case 0:
			return f.At(i+off, j, k)
		case 1:
			return f.At(i, j+off, k)
		default:
			return f.At(i, j, k+off)
		}
	}
	faceFlux := func(dim, i, j, k, off int) float64 {
		// Face between cell and cell+off along dim; off is 0 for the high
		// face and -1 for the low face.
		mc := at(m[dim], i, j, k, dim, off)
		mn := at(m[dim], i, j, k, dim, off+1)
		mf := 0.5 * (mc + mn)
		if mf > 0 {
			return mf * at(phi, i, j, k, dim, off)
		}
		return mf * at(phi, i, j, k, dim, off+1)
	}

	forEachInterior(phi, 1, func(i, j, k int) {
		var v float64
		for dim := 0; dim < 3; dim++ {
			v += (faceFlux(dim, i, j, k, 0) - faceFlux(dim, i, j, k, -1)) / h[dim]
		}
		out.Set(i, j, k, v)
	})
	return out
}

// forEachInterior visits every point at least margin cells away from the
// tile edge.
func forEachInterior(f *field.Field, margin int, fn func(i, j, k int)) {
	for k := margin; k < f.Nz-margin; k++ {
		for i := margin; i < f.Nx-margin; i++ {
			for j := margin; j < f.Ny-margin; j++ {
				fn(i, j, k)
			}
		}
	}
}
