package solver

import (
	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/types"
)

// velocityEqs advances the momentum equations and applies the pressure
// correction to the velocity field.
type velocityEqs struct {
	bcs        map[string]*comm.FieldBC
	nu         float64
	dx, dy, dz float64
	dt         float64
}

var velocityKeys = []string{types.KeyU, types.KeyV, types.KeyW}

var componentMomentum = map[string]string{
	types.KeyU: KeyRhoU,
	types.KeyV: KeyRhoV,
	types.KeyW: KeyRhoW,
}

func newVelocityEqs(p *params.Parameters) (*velocityEqs, error) {
	eqs := &velocityEqs{
		bcs: make(map[string]*comm.FieldBC),
		nu:  p.Nu,
		dx:  p.Dx, dy: p.Dy, dz: p.Dz,
		dt: p.Dt,
	}
	for _, name := range velocityKeys {
		bc, err := p.FieldBC(name)
		if err != nil {
			return nil, err
		}
		eqs.bcs[name] = bc
	}
	return eqs, nil
}

// updateHalos refreshes all three velocity components in place.
func (e *velocityEqs) updateHalos(s *Simulation, rep *comm.Replica,
	states, additional *types.State) error {
	for _, name := range velocityKeys {
		f, err := states.Require(name)
		if err != nil {
			return err
		}
		exchanged, err := s.exchange(rep, name, f, e.bcs[name], states, additional)
		if err != nil {
			return err
		}
		states.MustSet(name, exchanged)
	}
	return nil
}

// predictionStep advances the momentum equations to provisional velocities.
// Convection uses the donor-cell flux built from the current momentum,
// diffusion a constant-viscosity Laplacian augmented by the nu_t field when
// one rides in the additional states, and the current pressure gradient
// enters explicitly; the projection step removes its divergence error
// afterwards.
func (e *velocityEqs) predictionStep(s *Simulation, rep *comm.Replica,
	statesK, additional, states0 *types.State, rhoMid *field.Field) error {
	mx := mustGet(statesK, KeyRhoU)
	my := mustGet(statesK, KeyRhoV)
	mz := mustGet(statesK, KeyRhoW)
	p := mustGet(statesK, types.KeyP)
	h := [3]float64{e.dx, e.dy, e.dz}

	var nuT *field.Field
	if additional != nil {
		if f, ok := additional.Get(KeyNuT); ok {
			nuT = f
		}
	}

	for dim, name := range velocityKeys {
		vel := mustGet(statesK, name)
		mom0 := mustGet(states0, componentMomentum[name])

		conv := upwindFluxDivergence(mx, my, mz, vel, e.dx, e.dy, e.dz)
		lap := laplacian(vel, e.dx, e.dy, e.dz)
		diff := field.Mul(rhoMid, lap).Scale(e.nu)
		if nuT != nil {
			diff = field.Add(diff, field.Mul(nuT, field.Mul(rhoMid, lap)))
		}
		gradP := gradient(p, dim, h[dim])
		rhs := field.Sub(field.Sub(diff, conv), gradP)

		mom := field.AddScaled(mom0, e.dt, rhs)
		provisional := field.DivideNoNaN(mom, rhoMid)
		provisional, err := s.exchange(rep, name, provisional, e.bcs[name],
			statesK, additional)
		if err != nil {
			return err
		}
		statesK.MustSet(componentMomentum[name], mom)
		statesK.MustSet(name, provisional)
	}
	return nil
}

// correctionStep projects the provisional velocities with the pressure
// correction and folds the correction into the pressure field.
func (e *velocityEqs) correctionStep(s *Simulation, rep *comm.Replica,
	statesK, additional *types.State) error {
	dp := mustGet(statesK, KeyDP)
	rho := mustGet(statesK, types.KeyRho)
	p := mustGet(statesK, types.KeyP)
	h := [3]float64{e.dx, e.dy, e.dz}

	for dim, name := range velocityKeys {
		vel := mustGet(statesK, name)
		correction := field.DivideNoNaN(gradient(dp, dim, h[dim]), rho).
			Scale(e.dt)
		corrected, err := s.exchange(rep, name, field.Sub(vel, correction),
			e.bcs[name], statesK, additional)
		if err != nil {
			return err
		}
		statesK.MustSet(name, corrected)
		statesK.MustSet(componentMomentum[name],
			field.Mul(rho, mustGet(statesK, name)))
	}

	statesK.MustSet(types.KeyP, field.Add(p, dp))
	return nil
}
