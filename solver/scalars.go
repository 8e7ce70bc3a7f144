package solver

import (
	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/types"
)

// scalarEqs advances the transported scalars. Prediction works on the
// conservative (momentum) form; boundary conditions are enforced only on
// the primitive scalars that come out of the division by density.
type scalarEqs struct {
	names         []string
	diffusivities map[string]float64
	bcs           map[string]*comm.FieldBC
	dx, dy, dz    float64
	dt            float64
}

func newScalarEqs(p *params.Parameters) (*scalarEqs, error) {
	eqs := &scalarEqs{
		names:         p.ScalarNames(),
		diffusivities: make(map[string]float64),
		bcs:           make(map[string]*comm.FieldBC),
		dx:            p.Dx, dy: p.Dy, dz: p.Dz,
		dt: p.Dt,
	}
	for _, name := range eqs.names {
		bc, err := p.FieldBC(name)
		if err != nil {
			return nil, err
		}
		eqs.bcs[name] = bc
		eqs.diffusivities[name] = p.Diffusivity(name)
	}
	return eqs, nil
}

func (e *scalarEqs) exchangeHalos(s *Simulation, rep *comm.Replica,
	name string, sc *field.Field, states, additional *types.State) (*field.Field, error) {
	return s.exchange(rep, name, sc, e.bcs[name], states, additional)
}

// predictionStep advances every scalar in conservative form against the
// frozen initial state, then derives a bounded primitive scalar with its
// boundary conditions re-applied.
func (e *scalarEqs) predictionStep(s *Simulation, rep *comm.Replica,
	statesK, additional, states0 *types.State, rhoMid *field.Field) error {
	mx := mustGet(statesK, KeyRhoU)
	my := mustGet(statesK, KeyRhoV)
	mz := mustGet(statesK, KeyRhoW)
	rho := mustGet(statesK, types.KeyRho)

	for _, name := range e.names {
		sc := mustGet(statesK, name)
		rhoSc0 := mustGet(states0, momentumKey(name))

		conv := upwindFluxDivergence(mx, my, mz, sc, e.dx, e.dy, e.dz)
		diff := field.Mul(rhoMid, laplacian(sc, e.dx, e.dy, e.dz)).
			Scale(e.diffusivities[name])
		rhs := field.Sub(diff, conv)

		rhoSc := field.AddScaled(rhoSc0, e.dt, rhs)
		primitive := field.DivideNoNaN(rhoSc, rho)
		primitive, err := e.exchangeHalos(s, rep, name, primitive, statesK, additional)
		if err != nil {
			return err
		}
		statesK.MustSet(momentumKey(name), rhoSc)
		statesK.MustSet(name, primitive)
	}
	return nil
}

// correctionStep re-derives the primitive scalars from their conservative
// counterparts and the newest density.
func (e *scalarEqs) correctionStep(s *Simulation, rep *comm.Replica,
	statesK, additional *types.State) error {
	rho := mustGet(statesK, types.KeyRho)
	for _, name := range e.names {
		rhoSc := mustGet(statesK, momentumKey(name))
		primitive := field.DivideNoNaN(rhoSc, rho)
		primitive, err := e.exchangeHalos(s, rep, name, primitive, statesK, additional)
		if err != nil {
			return err
		}
		statesK.MustSet(name, primitive)
	}
	return nil
}
