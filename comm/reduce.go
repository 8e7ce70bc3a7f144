package comm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/structmesh/lowmach/field"
)

// NormType selects the norm used to quantify a residual.
type NormType uint8

const (
	L1 NormType = iota
	L2
	LInf
)

func (t NormType) String() string {
	switch t {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case LInf:
		return "LInf"
	}
	return fmt.Sprintf("NormType(%d)", uint8(t))
}

// GlobalReduce applies op locally, gathers every group member's partial, and
// re-applies op over the ordered concatenation. op must be associative and
// commutative for the composition to equal the true global reduction; every
// member observes the identical result.
func (r *Replica) GlobalReduce(operand []float64, op func([]float64) float64,
	group []int) float64 {
	local := op(operand)
	parts := r.allGather(group, []float64{local})
	flat := make([]float64, len(parts))
	for i, p := range parts {
		flat[i] = p[0]
	}
	return op(flat)
}

// GlobalSum adds v across every replica in group.
func (r *Replica) GlobalSum(v float64, group []int) float64 {
	return r.GlobalReduce([]float64{v}, floats.Sum, group)
}

// GlobalMax takes the maximum of v across every replica in group.
func (r *Replica) GlobalMax(v float64, group []int) float64 {
	return r.GlobalReduce([]float64{v}, func(s []float64) float64 {
		return floats.Max(s)
	}, group)
}

// GlobalMin takes the minimum of v across every replica in group.
func (r *Replica) GlobalMin(v float64, group []int) float64 {
	return r.GlobalReduce([]float64{v}, func(s []float64) float64 {
		return floats.Min(s)
	}, group)
}

// GlobalMean computes the mean of f over the full domain, halos excluded.
// All replicas receive the identical scalar.
func (r *Replica) GlobalMean(f *field.Field, halos [3]int) (float64, error) {
	inner, err := field.StripHalos(f, halos)
	if err != nil {
		return 0, err
	}
	group := r.fab.grid.Groups(nil)[0]
	total := r.GlobalSum(inner.Sum(), group)
	count := float64(len(group) * len(inner.Data))
	return total / count, nil
}

// GlobalMeanAlongAxes reduces f by the mean over the given axes, combined
// across the replicas that share all non-axis grid coordinates. The result
// keeps reduced axes as size 1 and strips halos everywhere. The divisor is
// the true global extent along the reduced axes, not the local tile size.
func (r *Replica) GlobalMeanAlongAxes(f *field.Field, halos [3]int,
	axis []int) (*field.Field, error) {
	if len(axis) == 0 {
		return nil, fmt.Errorf("GlobalMeanAlongAxes requires at least one axis")
	}
	inner, err := field.StripHalos(f, halos)
	if err != nil {
		return nil, err
	}
	partial := inner.SumAlongAxes(axis)
	group := r.fab.grid.GroupOf(r.id, axis)
	parts := r.allGather(group, partial.Data)
	sum := field.NewField(partial.Nx, partial.Ny, partial.Nz)
	for _, p := range parts {
		if len(p) != len(sum.Data) {
			return nil, fmt.Errorf("partial size mismatch in axis reduction: "+
				"%d vs %d (unequal tile sizes?)", len(p), len(sum.Data))
		}
		floats.Add(sum.Data, p)
	}
	count := float64(len(group))
	for _, ax := range axis {
		count *= float64(inner.Extent(ax))
	}
	return sum.Scale(1 / count), nil
}

// ComputeNorm computes the requested norms of v across all replicas. The
// halo region is the caller's concern; residual fields are normally already
// halo-free. Every replica receives identical values.
func (r *Replica) ComputeNorm(v *field.Field, normTypes []NormType) (map[NormType]float64, error) {
	if len(normTypes) == 0 {
		return nil, fmt.Errorf("no norm types supplied")
	}
	group := r.fab.grid.Groups(nil)[0]
	out := make(map[NormType]float64, len(normTypes))
	for _, nt := range normTypes {
		if _, done := out[nt]; done {
			continue
		}
		switch nt {
		case L1:
			out[nt] = r.GlobalSum(v.AbsSum(), group)
		case L2:
			out[nt] = math.Sqrt(r.GlobalSum(v.SumSquares(), group))
		case LInf:
			out[nt] = r.GlobalMax(v.MaxAbs(), group)
		default:
			return nil, fmt.Errorf("%v is not a valid norm type", nt)
		}
	}
	return out, nil
}
