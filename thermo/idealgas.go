package thermo

import (
	"fmt"
	"sort"

	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// KeyTemperature is the state key the ideal gas law reads.
const KeyTemperature = "T"

// IdealGas computes density from the ideal gas law at a fixed reference
// pressure, rho = p_ref * W_mix / (R * T). The mixture molecular weight is
// built from the species mass fractions with the ambient species carrying
// the balance.
type IdealGas struct {
	pRef    float64
	weights map[string]float64
	names   []string
}

func NewIdealGas(pRef float64, molecularWeights map[string]float64) *IdealGas {
	g := &IdealGas{
		pRef:    pRef,
		weights: make(map[string]float64, len(molecularWeights)),
	}
	for name, w := range molecularWeights {
		g.weights[name] = w
		if name != AmbientSpecies {
			g.names = append(g.names, name)
		}
	}
	sort.Strings(g.names)
	return g
}

// mixtureMolecularWeight inverts the mass-fraction-weighted sum of inverse
// species weights.
func (g *IdealGas) mixtureMolecularWeight(states *types.State) (*field.Field, error) {
	ambientW, ok := g.weights[AmbientSpecies]
	if !ok {
		return nil, fmt.Errorf("ideal gas law requires a molecular weight for %q", AmbientSpecies)
	}

	scalars := make(map[string]*field.Field, len(g.names))
	for _, name := range g.names {
		sc, err := states.Require(name)
		if err != nil {
			return nil, err
		}
		scalars[name] = RegularizeScalarBound(sc)
	}

	if len(scalars) == 0 {
		nx, ny, nz, ok := states.TileShape()
		if !ok {
			return nil, fmt.Errorf("cannot size mixture weight from an empty state")
		}
		return field.NewUniform(nx, ny, nz, ambientW), nil
	}

	scalars[AmbientSpecies] = AmbientFraction(scalars)
	regularized := RegularizeScalarSum(scalars)

	wInv := regularized[AmbientSpecies].Scale(1 / ambientW)
	for _, name := range g.names {
		wInv = field.AddScaled(wInv, 1/g.weights[name], regularized[name])
	}
	return wInv.Map(func(v float64) float64 {
		if v == 0 {
			return 0
		}
		return 1 / v
	}), nil
}

func (g *IdealGas) density(states *types.State) (*field.Field, error) {
	temperature, err := states.Require(KeyTemperature)
	if err != nil {
		return nil, err
	}
	wMix, err := g.mixtureMolecularWeight(states)
	if err != nil {
		return nil, err
	}
	return field.DivideNoNaN(wMix.Scale(g.pRef/RUniversal), temperature), nil
}

func (g *IdealGas) UpdateDensity(states, additionalStates, states0 *types.State) (*field.Field, *field.Field, error) {
	rho, err := g.density(states)
	if err != nil {
		return nil, nil, err
	}
	ref, err := referenceRho(states, states0)
	if err != nil {
		return nil, nil, err
	}
	return rho, field.Sub(rho, ref), nil
}

func (g *IdealGas) UpdateThermalDensity(states, additionalStates *types.State) (*field.Field, error) {
	return g.density(states)
}
