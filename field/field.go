package field

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Field is one scalar quantity on the local subdomain tile, stored as a
// single contiguous dense array indexed [z][x][y] (z outermost). The tile
// extents Nx, Ny, Nz include the halo layers on all faces.
type Field struct {
	Nx, Ny, Nz int
	Data       []float64
}

func NewField(nx, ny, nz int) (f *Field) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		panic(fmt.Sprintf("invalid field extents (%d, %d, %d)", nx, ny, nz))
	}
	f = &Field{
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
		Data: make([]float64, nx*ny*nz),
	}
	return
}

func NewUniform(nx, ny, nz int, val float64) (f *Field) {
	f = NewField(nx, ny, nz)
	for i := range f.Data {
		f.Data[i] = val
	}
	return
}

// ZerosLike returns a zero field with the same tile extents as f.
func ZerosLike(f *Field) *Field {
	return NewField(f.Nx, f.Ny, f.Nz)
}

func OnesLike(f *Field) *Field {
	return NewUniform(f.Nx, f.Ny, f.Nz, 1)
}

func (f *Field) Clone() (o *Field) {
	o = NewField(f.Nx, f.Ny, f.Nz)
	copy(o.Data, f.Data)
	return
}

// Shape returns the tile extents as (nx, ny, nz), halos included.
func (f *Field) Shape() (nx, ny, nz int) {
	return f.Nx, f.Ny, f.Nz
}

// Extent returns the tile extent along dim, [x, y, z] = [0, 1, 2].
func (f *Field) Extent(dim int) int {
	switch dim {
	case 0:
		return f.Nx
	case 1:
		return f.Ny
	case 2:
		return f.Nz
	}
	panic(fmt.Sprintf("dimension out of range: %d", dim))
}

func (f *Field) index(i, j, k int) int {
	return (k*f.Nx+i)*f.Ny + j
}

func (f *Field) At(i, j, k int) float64 {
	return f.Data[f.index(i, j, k)]
}

func (f *Field) Set(i, j, k int, val float64) {
	f.Data[f.index(i, j, k)] = val
}

func (f *Field) SameShape(o *Field) bool {
	return f.Nx == o.Nx && f.Ny == o.Ny && f.Nz == o.Nz
}

// Validate fails if the three components differ in per-axis extents.
func Validate(u, v, w *Field) error {
	if !u.SameShape(v) || !u.SameShape(w) {
		return fmt.Errorf("field components must share the same tile shape: "+
			"u (%d, %d, %d), v (%d, %d, %d), w (%d, %d, %d)",
			u.Nx, u.Ny, u.Nz, v.Nx, v.Ny, v.Nz, w.Nx, w.Ny, w.Nz)
	}
	return nil
}

// Map applies op elementwise, returning a new field.
func (f *Field) Map(op func(float64) float64) (o *Field) {
	o = NewField(f.Nx, f.Ny, f.Nz)
	for i, val := range f.Data {
		o.Data[i] = op(val)
	}
	return
}

// Map2 applies op elementwise over two same-shaped fields.
func Map2(a, b *Field, op func(a, b float64) float64) (o *Field) {
	mustMatch(a, b)
	o = NewField(a.Nx, a.Ny, a.Nz)
	for i := range a.Data {
		o.Data[i] = op(a.Data[i], b.Data[i])
	}
	return
}

func Map3(a, b, c *Field, op func(a, b, c float64) float64) (o *Field) {
	mustMatch(a, b)
	mustMatch(a, c)
	o = NewField(a.Nx, a.Ny, a.Nz)
	for i := range a.Data {
		o.Data[i] = op(a.Data[i], b.Data[i], c.Data[i])
	}
	return
}

func Add(a, b *Field) *Field {
	mustMatch(a, b)
	o := a.Clone()
	floats.Add(o.Data, b.Data)
	return o
}

func Sub(a, b *Field) *Field {
	mustMatch(a, b)
	o := a.Clone()
	floats.Sub(o.Data, b.Data)
	return o
}

func Mul(a, b *Field) *Field {
	mustMatch(a, b)
	o := a.Clone()
	floats.Mul(o.Data, b.Data)
	return o
}

func (f *Field) Scale(c float64) (o *Field) {
	o = f.Clone()
	floats.Scale(c, o.Data)
	return
}

// AddScaled returns a + c*b.
func AddScaled(a *Field, c float64, b *Field) *Field {
	mustMatch(a, b)
	o := a.Clone()
	floats.AddScaled(o.Data, c, b.Data)
	return o
}

// Average returns the pointwise midpoint 0.5*(a + b).
func Average(a, b *Field) *Field {
	return Map2(a, b, func(x, y float64) float64 { return 0.5 * (x + y) })
}

// DivideNoNaN divides a by b elementwise, substituting zero wherever the
// denominator is exactly zero. This is a policy, not an accident: a zero
// denominator means no local sensitivity, so no update is applied.
func DivideNoNaN(a, b *Field) *Field {
	return Map2(a, b, func(x, y float64) float64 {
		if y == 0 {
			return 0
		}
		return x / y
	})
}

func mustMatch(a, b *Field) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("field tile shape mismatch: (%d, %d, %d) vs (%d, %d, %d)",
			a.Nx, a.Ny, a.Nz, b.Nx, b.Ny, b.Nz))
	}
}
