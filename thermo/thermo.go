// Package thermo provides the thermodynamic closures that relate transported
// scalars to the fluid density.
package thermo

import (
	"fmt"

	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// Physical constants shared by the closures and the boundary models.
const (
	// Universal gas constant, J/mol/K.
	RUniversal = 8.3145
	// Gas constant of dry air, J/kg/K.
	RDryAir = 286.69
	// Gravitational acceleration, N/kg.
	G = 9.81
)

// Model computes density fields from the flow state.
//
// UpdateDensity returns the new density together with the density change
// relative to the reference state; states0 may be nil, in which case the
// change is measured against the density currently in states.
// UpdateThermalDensity returns the density implied by the thermodynamic
// relation alone, with no change tracking.
type Model interface {
	UpdateDensity(states, additionalStates, states0 *types.State) (rho, drho *field.Field, err error)
	UpdateThermalDensity(states, additionalStates *types.State) (*field.Field, error)
}

// Config selects and parameterizes a closure.
type Config struct {
	// Model is one of "constant_density", "linear_mixing", "ideal_gas".
	Model string
	// Rho is the reference (ambient) density, kg/m^3.
	Rho float64
	// ScalarDensities maps transported scalar names to their pure-species
	// densities for the linear mixing rule.
	ScalarDensities map[string]float64
	// MolecularWeights maps species names to molecular weight, kg/mol, for
	// the ideal gas law. The ambient entry covers the inert background.
	MolecularWeights map[string]float64
	// PRef is the thermodynamic reference pressure, Pa.
	PRef float64
}

// NewModel builds the closure named by cfg.Model. An unsupported name is a
// configuration error.
func NewModel(cfg Config) (Model, error) {
	switch cfg.Model {
	case "constant_density", "":
		return &ConstantDensity{Rho: cfg.Rho}, nil
	case "linear_mixing":
		return NewLinearMixing(cfg.Rho, cfg.ScalarDensities), nil
	case "ideal_gas":
		return NewIdealGas(cfg.PRef, cfg.MolecularWeights), nil
	}
	return nil, fmt.Errorf("unsupported thermodynamics model %q", cfg.Model)
}

// referenceRho picks the density the drho correction is measured against.
func referenceRho(states, states0 *types.State) (*field.Field, error) {
	if states0 != nil {
		if rho, ok := states0.Get(types.KeyRho); ok {
			return rho, nil
		}
	}
	return states.Require(types.KeyRho)
}
