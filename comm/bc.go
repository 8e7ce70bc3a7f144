package comm

import (
	"fmt"

	"github.com/structmesh/lowmach/field"
)

// BCType selects how halo values are synthesized at a physical domain edge.
type BCType uint8

const (
	// BCNone means no action at this face. It is a configuration error to
	// request an exchange in a dimension whose edge face carries BCNone.
	BCNone BCType = iota
	// BCDirichlet fixes the halo to a prescribed value.
	BCDirichlet
	// BCNeumann fixes the along-axis difference between successive planes,
	// so that the finite-difference gradient across the halo matches the
	// prescribed flux.
	BCNeumann
)

func (t BCType) String() string {
	switch t {
	case BCNone:
		return "None"
	case BCDirichlet:
		return "Dirichlet"
	case BCNeumann:
		return "Neumann"
	}
	return fmt.Sprintf("BCType(%d)", uint8(t))
}

// FaceBC is the boundary condition at one face of the physical domain.
// Plane, when non-nil, supplies per-point values and must have extent 1 in
// the face's dimension; otherwise the scalar Value applies uniformly.
type FaceBC struct {
	Type  BCType
	Value float64
	Plane *field.Field
}

// FieldBC holds one FaceBC per dimension per face, indexed [dim][face] with
// face 0 the low-index end.
type FieldBC [3][2]FaceBC

// HomogeneousNeumann is the free-slip default: zero gradient on all faces.
func HomogeneousNeumann() *FieldBC {
	bc := &FieldBC{}
	for dim := 0; dim < 3; dim++ {
		for face := 0; face < 2; face++ {
			bc[dim][face] = FaceBC{Type: BCNeumann}
		}
	}
	return bc
}

// Dirichlet builds a uniform fixed-value condition on all faces.
func Dirichlet(val float64) *FieldBC {
	bc := &FieldBC{}
	for dim := 0; dim < 3; dim++ {
		for face := 0; face < 2; face++ {
			bc[dim][face] = FaceBC{Type: BCDirichlet, Value: val}
		}
	}
	return bc
}

func (bc *FaceBC) valueAt(i, j, k, dim int) float64 {
	if bc.Plane == nil {
		return bc.Value
	}
	switch dim {
	case 0:
		i = 0
	case 1:
		j = 0
	case 2:
		k = 0
	}
	return bc.Plane.At(i, j, k)
}
