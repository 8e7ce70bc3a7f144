package field

import (
	"fmt"
)

// StripHalos removes halos[dim] points from both ends of each spatial
// dimension and returns the interior sub-field. Halos are given as
// [halo_x, halo_y, halo_z].
func StripHalos(f *Field, halos [3]int) (*Field, error) {
	nx := f.Nx - 2*halos[0]
	ny := f.Ny - 2*halos[1]
	nz := f.Nz - 2*halos[2]
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("halo widths %v leave no interior in tile "+
			"(%d, %d, %d)", halos, f.Nx, f.Ny, f.Nz)
	}
	o := NewField(nx, ny, nz)
	for k := 0; k < nz; k++ {
		for i := 0; i < nx; i++ {
			for j := 0; j < ny; j++ {
				o.Set(i, j, k, f.At(i+halos[0], j+halos[1], k+halos[2]))
			}
		}
	}
	return o, nil
}

// Pad inserts constant-value padding of the given widths per dimension per
// side. Paddings are [dim][side] with side 0 the low-index end. Pad is the
// round-trip inverse of StripHalos on the interior.
func Pad(f *Field, paddings [3][2]int, value float64) (o *Field) {
	o = NewUniform(
		f.Nx+paddings[0][0]+paddings[0][1],
		f.Ny+paddings[1][0]+paddings[1][1],
		f.Nz+paddings[2][0]+paddings[2][1],
		value,
	)
	for k := 0; k < f.Nz; k++ {
		for i := 0; i < f.Nx; i++ {
			for j := 0; j < f.Ny; j++ {
				o.Set(i+paddings[0][0], j+paddings[1][0], k+paddings[2][0],
					f.At(i, j, k))
			}
		}
	}
	return
}

// Face extracts the plane `index` positions inward from the dim/face
// boundary, scaled by scale. face 0 counts from the low-index end, face 1
// from the high-index end; index 0 is the boundary-adjacent plane. The
// returned field has extent 1 along dim.
func (f *Field) Face(dim, face, index int, scale float64) (o *Field) {
	n := f.Extent(dim)
	pos := index
	if face == 1 {
		pos = n - 1 - index
	} else if face != 0 {
		panic(fmt.Sprintf("face must be 0 or 1, got %d", face))
	}
	if pos < 0 || pos >= n {
		panic(fmt.Sprintf("plane %d of face %d out of range in dim %d (extent %d)",
			index, face, dim, n))
	}
	return f.Plane(dim, pos, scale)
}

// Plane extracts the plane at absolute position pos along dim, scaled.
func (f *Field) Plane(dim, pos int, scale float64) (o *Field) {
	nx, ny, nz := f.Nx, f.Ny, f.Nz
	switch dim {
	case 0:
		nx = 1
	case 1:
		ny = 1
	case 2:
		nz = 1
	default:
		panic(fmt.Sprintf("dimension out of range: %d", dim))
	}
	o = NewField(nx, ny, nz)
	for k := 0; k < nz; k++ {
		for i := 0; i < nx; i++ {
			for j := 0; j < ny; j++ {
				ii, jj, kk := i, j, k
				switch dim {
				case 0:
					ii = pos
				case 1:
					jj = pos
				case 2:
					kk = pos
				}
				o.Set(i, j, k, scale*f.At(ii, jj, kk))
			}
		}
	}
	return
}

// SetPlane returns a new field equal to f except the single plane at index
// in dimension dim replaced by updates. The input is never mutated.
func (f *Field) SetPlane(dim, index int, updates *Field) (o *Field) {
	if index < 0 || index >= f.Extent(dim) {
		panic(fmt.Sprintf("plane index %d out of range in dim %d (extent %d)",
			index, dim, f.Extent(dim)))
	}
	if updates.Extent(dim) != 1 {
		panic(fmt.Sprintf("update plane must have extent 1 in dim %d, got %d",
			dim, updates.Extent(dim)))
	}
	for d := 0; d < 3; d++ {
		if d != dim && updates.Extent(d) != f.Extent(d) {
			panic(fmt.Sprintf("update plane extent %d in dim %d does not match "+
				"tile extent %d", updates.Extent(d), d, f.Extent(d)))
		}
	}
	o = f.Clone()
	forEachInPlane(f, dim, index, func(i, j, k int) {
		ui, uj, uk := i, j, k
		switch dim {
		case 0:
			ui = 0
		case 1:
			uj = 0
		case 2:
			uk = 0
		}
		o.Set(i, j, k, updates.At(ui, uj, uk))
	})
	return
}

// SetPlaneScalar is SetPlane with the plane filled by a constant.
func (f *Field) SetPlaneScalar(dim, index int, val float64) (o *Field) {
	if index < 0 || index >= f.Extent(dim) {
		panic(fmt.Sprintf("plane index %d out of range in dim %d (extent %d)",
			index, dim, f.Extent(dim)))
	}
	o = f.Clone()
	forEachInPlane(f, dim, index, func(i, j, k int) {
		o.Set(i, j, k, val)
	})
	return
}

func forEachInPlane(f *Field, dim, pos int, fn func(i, j, k int)) {
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
