package thermo

import (
	"fmt"
	"sort"

	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// AmbientSpecies names the inert background making up the balance of the
// mass fractions.
const AmbientSpecies = "ambient"

// RegularizeScalarBound clamps a mass fraction field into [0, 1].
func RegularizeScalarBound(phi *field.Field) *field.Field {
	return phi.Map(func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	})
}

// RegularizeScalarSum rescales the scalars so their pointwise sum is one.
// Points where every scalar vanishes are left at zero.
func RegularizeScalarSum(phi map[string]*field.Field) map[string]*field.Field {
	var total *field.Field
	for _, sc := range phi {
		if total == nil {
			total = field.ZerosLike(sc)
		}
		total = field.Add(total, sc)
	}
	out := make(map[string]*field.Field, len(phi))
	for name, sc := range phi {
		out[name] = field.DivideNoNaN(sc, total)
	}
	return out
}

// AmbientFraction computes the mass fraction of the inert background as the
// clamped balance of the given species fractions.
func AmbientFraction(phi map[string]*field.Field) *field.Field {
	var ambient *field.Field
	for _, sc := range phi {
		if ambient == nil {
			ambient = field.OnesLike(sc)
		}
		ambient = field.Sub(ambient, sc)
	}
	return RegularizeScalarBound(ambient)
}

// LinearMixing computes the mixture density as the mass-fraction-weighted
// sum of per-species densities, with the ambient species carrying the
// balance.
type LinearMixing struct {
	rho       float64
	densities map[string]float64
	names     []string
}

func NewLinearMixing(rho float64, scalarDensities map[string]float64) *LinearMixing {
	m := &LinearMixing{
		rho:       rho,
		densities: make(map[string]float64, len(scalarDensities)),
	}
	for name, d := range scalarDensities {
		// Temperature is transported but is not a species.
		if name == "T" {
			continue
		}
		m.densities[name] = d
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)
	return m
}

func (m *LinearMixing) mixtureDensity(states *types.State) (*field.Field, error) {
	scalars := make(map[string]*field.Field, len(m.names))
	for _, name := range m.names {
		sc, err := states.Require(name)
		if err != nil {
			return nil, err
		}
		scalars[name] = RegularizeScalarBound(sc)
	}

	if len(scalars) == 0 {
		nx, ny, nz, ok := states.TileShape()
		if !ok {
			return nil, fmt.Errorf("cannot size mixture density from an empty state")
		}
		return field.NewUniform(nx, ny, nz, m.rho), nil
	}

	scalars[AmbientSpecies] = AmbientFraction(scalars)
	regularized := RegularizeScalarSum(scalars)

	rhoMix := field.ZerosLike(regularized[AmbientSpecies])
	for _, name := range m.names {
		rhoMix = field.AddScaled(rhoMix, m.densities[name], regularized[name])
	}
	return field.AddScaled(rhoMix, m.rho, regularized[AmbientSpecies]), nil
}

func (m *LinearMixing) UpdateDensity(states, additionalStates, states0 *types.State) (*field.Field, *field.Field, error) {
	rho, err := m.mixtureDensity(states)
	if err != nil {
		return nil, nil, err
	}
	ref, err := referenceRho(states, states0)
	if err != nil {
		return nil, nil, err
	}
	return rho, field.Sub(rho, ref), nil
}

func (m *LinearMixing) UpdateThermalDensity(states, additionalStates *types.State) (*field.Field, error) {
	return m.mixtureDensity(states)
}
