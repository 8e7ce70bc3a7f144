package thermo

import (
	"fmt"

	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// ConstantDensity keeps the density at a fixed reference value. The drho
// output is identically zero.
type ConstantDensity struct {
	Rho float64
}

func (m *ConstantDensity) uniform(states *types.State) (*field.Field, error) {
	nx, ny, nz, ok := states.TileShape()
	if !ok {
		return nil, fmt.Errorf("cannot size constant density from an empty state")
	}
	return field.NewUniform(nx, ny, nz, m.Rho), nil
}

func (m *ConstantDensity) UpdateDensity(states, additionalStates, states0 *types.State) (*field.Field, *field.Field, error) {
	rho, err := m.uniform(states)
	if err != nil {
		return nil, nil, err
	}
	return rho, field.ZerosLike(rho), nil
}

func (m *ConstantDensity) UpdateThermalDensity(states, additionalStates *types.State) (*field.Field, error) {
	return m.uniform(states)
}
