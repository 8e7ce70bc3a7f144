package comm

import (
	"fmt"

	"github.com/structmesh/lowmach/field"
)

// ExchangeHalos returns a copy of f whose halo region reflects the interior
// values of logically-neighboring subdomains, or the configured boundary
// condition at a physical domain edge. Exchange proceeds one dimension at a
// time, so corner halos are consistent after all requested dimensions have
// been processed. The input field is never mutated.
//
// Every replica must call ExchangeHalos with the same dims in the same
// order; the exchange is point-to-point between neighbors, and a missing
// participant deadlocks the fabric.
func (r *Replica) ExchangeHalos(f *field.Field, dims []int, width int,
	periodic [3]bool, bc *FieldBC) (*field.Field, error) {
	if width <= 0 {
		return nil, fmt.Errorf("halo width must be positive, got %d", width)
	}
	out := f.Clone()
	for _, dim := range dims {
		if dim < 0 || dim > 2 {
			return nil, fmt.Errorf("exchange dimension out of range: %d", dim)
		}
		if 2*width >= f.Extent(dim) {
			return nil, fmt.Errorf("halo width %d too large for extent %d in dim %d",
				width, f.Extent(dim), dim)
		}
		if err := r.exchangeDim(out, dim, width, periodic[dim], bc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// exchangeDim updates the two halo slabs of out along dim in place. One
// communication round per dimension; replicas with no neighbor on a face
// synthesize the halo from the boundary condition instead.
func (r *Replica) exchangeDim(out *field.Field, dim, width int,
	periodic bool, bc *FieldBC) error {
	r.seq++
	g := r.fab.grid
	n := out.Extent(dim)

	var nbr [2]int
	var has [2]bool
	for face := 0; face < 2; face++ {
		nbr[face], has[face] = g.Neighbor(r.id, dim, face, periodic)
	}

	// Send the interior planes adjacent to each shared face. The planes a
	// neighbor receives land in the halo slab of its opposite face.
	for face := 0; face < 2; face++ {
		if !has[face] {
			continue
		}
		var lo int
		if face == 0 {
			lo = width // planes width..2*width-1
		} else {
			lo = n - 2*width
		}
		payload := packPlanes(out, dim, lo, width)
		r.send(nbr[face], dim*2+(1-face), payload)
	}

	for face := 0; face < 2; face++ {
		var lo int
		if face == 0 {
			lo = 0
		} else {
			lo = n - width
		}
		if has[face] {
			m := r.recv(r.seq, nbr[face], dim*2+face)
			unpackPlanes(out, dim, lo, width, m.data)
			continue
		}
		if err := applyFaceBC(out, dim, face, width, bc); err != nil {
			return err
		}
	}
	return nil
}

// applyFaceBC fills the width halo planes at a physical boundary face.
func applyFaceBC(out *field.Field, dim, face, width int, bc *FieldBC) error {
	var fbc FaceBC
	if bc != nil {
		fbc = bc[dim][face]
	}
	if fbc.Type == BCNone {
		return fmt.Errorf("no neighbor and no boundary condition at dim %d face %d",
			dim, face)
	}
	n := out.Extent(dim)
	for d := 0; d < width; d++ {
		// pos walks the halo from the interior outward.
		var pos, inner, sign int
		if face == 0 {
			pos = width - 1 - d
			inner = pos + 1
			sign = -1
		} else {
			pos = n - width + d
			inner = pos - 1
			sign = 1
		}
		forEachHaloPoint(out, dim, pos, func(i, j, k int) {
			switch fbc.Type {
			case BCDirichlet:
				out.Set(i, j, k, fbc.valueAt(i, j, k, dim))
			case BCNeumann:
				ii, jj, kk := i, j, k
				switch dim {
				case 0:
					ii = inner
				case 1:
					jj = inner
				case 2:
					kk = inner
				}
				out.Set(i, j, k, out.At(ii, jj, kk)+float64(sign)*fbc.valueAt(i, j, k, dim))
			}
		})
	}
	return nil
}

func planeSize(f *field.Field, dim int) int {
	switch dim {
	case 0:
		return f.Ny * f.Nz
	case 1:
		return f.Nx * f.Nz
	case 2:
		return f.Nx * f.Ny
	}
	panic(fmt.Sprintf("dimension out of range: %d", dim))
}

// packPlanes serializes width consecutive planes starting at lo along dim,
// in increasing coordinate order.
func packPlanes(f *field.Field, dim, lo, width int) []float64 {
	ps := planeSize(f, dim)
	buf := make([]float64, width*ps)
	for d := 0; d < width; d++ {
		idx := d * ps
		forEachHaloPoint(f, dim, lo+d, func(i, j, k int) {
			buf[idx] = f.At(i, j, k)
			idx++
		})
	}
	return buf
}

func unpackPlanes(f *field.Field, dim, lo, width int, buf []float64) {
	ps := planeSize(f, dim)
	for d := 0; d < width; d++ {
		idx := d * ps
		forEachHaloPoint(f, dim, lo+d, func(i, j, k int) {
			f.Set(i, j, k, buf[idx])
			idx++
		})
	}
}

// forEachHaloPoint visits every point of the plane at pos along dim in a
// fixed traversal order shared by pack and unpack.
func forEachHaloPoint(f *field.Field, dim, pos int, fn func(i, j, k int)) {
	switch dim {
	case 0:
		for k := 0; k < f.Nz; k++ {
			for j := 0; j < f.Ny; j++ {
				fn(pos, j, k)
			}
		}
	case 1:
		for k := 0; k < f.Nz; k++ {
			for i := 0; i < f.Nx; i++ {
				fn(i, pos, k)
			}
		}
	case 2:
		for i := 0; i < f.Nx; i++ {
			for j := 0; j < f.Ny; j++ {
				fn(i, j, pos)
			}
		}
	default:
		panic(fmt.Sprintf("dimension out of range: %d", dim))
	}
}
