package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexRamp fills a field with a distinct value per point so that slicing
// and round-trip errors cannot cancel.
func indexRamp(nx, ny, nz int) *Field {
	f := NewField(nx, ny, nz)
	for n := range f.Data {
		f.Data[n] = float64(n)
	}
	return f
}

func TestHaloRoundTrip(t *testing.T) {
	f := indexRamp(6, 5, 7)
	halos := [3]int{2, 1, 2}

	inner, err := StripHalos(f, halos)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Nx)
	assert.Equal(t, 3, inner.Ny)
	assert.Equal(t, 3, inner.Nz)

	padded := Pad(inner, [3][2]int{{2, 2}, {1, 1}, {2, 2}}, 0)
	require.True(t, padded.SameShape(f))
	restored, err := StripHalos(padded, halos)
	require.NoError(t, err)
	assert.Equal(t, inner.Data, restored.Data)

	{ // halos that consume the whole tile are an error
		_, err := StripHalos(f, [3]int{3, 1, 1})
		assert.Error(t, err)
	}
}

func TestFaceIndexing(t *testing.T) {
	f := indexRamp(4, 3, 3)

	{ // face 0 counts inward from the low end
		plane := f.Face(0, 0, 1, 1)
		assert.Equal(t, 1, plane.Nx)
		assert.Equal(t, f.At(1, 2, 2), plane.At(0, 2, 2))
	}
	{ // face 1 counts inward from the high end
		plane := f.Face(0, 1, 0, 1)
		assert.Equal(t, f.At(3, 1, 1), plane.At(0, 1, 1))
	}
	{ // scale applies to every extracted point
		plane := f.Face(2, 0, 0, -2)
		assert.Equal(t, -2*f.At(1, 1, 0), plane.At(1, 1, 0))
	}
}

func TestSetPlaneCopyOnWrite(t *testing.T) {
	f := NewUniform(3, 3, 3, 1)
	updates := NewUniform(3, 3, 1, 7)

	o := f.SetPlane(2, 0, updates)
	assert.Equal(t, 7.0, o.At(1, 1, 0))
	assert.Equal(t, 1.0, o.At(1, 1, 1))
	// The input tile is untouched.
	assert.Equal(t, 1.0, f.At(1, 1, 0))

	o2 := f.SetPlaneScalar(0, 2, -3)
	assert.Equal(t, -3.0, o2.At(2, 0, 0))
	assert.Equal(t, 1.0, f.At(2, 0, 0))
}

func TestDivideNoNaN(t *testing.T) {
	a := NewUniform(2, 2, 2, 3)
	b := NewField(2, 2, 2)
	b.Set(0, 0, 0, 2)

	q := DivideNoNaN(a, b)
	assert.Equal(t, 1.5, q.At(0, 0, 0))
	assert.Equal(t, 0.0, q.At(1, 1, 1))
}

func TestOpsNeverMutateInputs(t *testing.T) {
	a := NewUniform(2, 2, 2, 2)
	b := NewUniform(2, 2, 2, 5)

	_ = Add(a, b)
	_ = Sub(a, b)
	_ = Mul(a, b)
	_ = a.Scale(10)
	_ = AddScaled(a, 3, b)
	_ = Average(a, b)
	_ = a.Map(func(x float64) float64 { return -x })

	assert.Equal(t, 2.0, a.At(1, 1, 1))
	assert.Equal(t, 5.0, b.At(1, 1, 1))
}

func TestReductions(t *testing.T) {
	f := NewField(2, 2, 2)
	f.Set(0, 0, 0, -4)
	f.Set(1, 1, 1, 3)

	assert.Equal(t, -1.0, f.Sum())
	assert.Equal(t, 7.0, f.AbsSum())
	assert.Equal(t, 25.0, f.SumSquares())
	assert.Equal(t, 4.0, f.MaxAbs())
}

func TestSumAlongAxes(t *testing.T) {
	f := indexRamp(2, 3, 2)

	o := f.SumAlongAxes([]int{1})
	assert.Equal(t, 2, o.Nx)
	assert.Equal(t, 1, o.Ny)
	assert.Equal(t, 2, o.Nz)
	want := f.At(0, 0, 1) + f.At(0, 1, 1) + f.At(0, 2, 1)
	assert.Equal(t, want, o.At(0, 0, 1))
}

func TestValidateShapes(t *testing.T) {
	u := NewField(3, 3, 3)
	v := NewField(3, 3, 3)
	w := NewField(3, 3, 4)
	assert.Error(t, Validate(u, v, w))
	assert.NoError(t, Validate(u, v, v))
}
