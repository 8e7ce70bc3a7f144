// Package solver implements the predictor-corrector step engine for the
// variable-density low Mach number Navier-Stokes equations.
package solver

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/thermo"
	"github.com/structmesh/lowmach/types"
)

// Derived working keys carried through a step and dropped afterwards unless
// explicitly requested through the additional states.
const (
	KeyRhoU       = "rho_u"
	KeyRhoV       = "rho_v"
	KeyRhoW       = "rho_w"
	KeyRhoThermal = "rho_thermal"
	KeyDRho       = "drho"
	KeyDP         = "dp"
)

// KeyNuT names the optional turbulent viscosity supplied through the
// additional states, added to the molecular viscosity during the momentum
// prediction.
const KeyNuT = "nu_t"

// Simulation holds the per-run configuration of the step function. The same
// Simulation value is shared by every replica goroutine; it is immutable
// after construction.
type Simulation struct {
	params *params.Parameters
	mode   types.SolverMode
	thermo thermo.Model

	scalars  *scalarEqs
	velocity *velocityEqs
	pressure *pressureEqs
	monitor  *Monitor

	// Optional per-step hooks; partial updates are merged into the state.
	Prestep  types.UpdateFn
	Poststep types.UpdateFn

	log *logrus.Entry
}

// NewSimulation validates the configuration and builds the subsystem
// solvers. Configuration errors surface here, before any stepping.
func NewSimulation(p *params.Parameters, model thermo.Model) (*Simulation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("a thermodynamics closure is required")
	}
	mode := p.Mode()

	scalars, err := newScalarEqs(p)
	if err != nil {
		return nil, err
	}
	velocity, err := newVelocityEqs(p)
	if err != nil {
		return nil, err
	}
	pressure, err := newPressureEqs(p)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		params:   p,
		mode:     mode,
		thermo:   model,
		scalars:  scalars,
		velocity: velocity,
		pressure: pressure,
		monitor:  NewMonitor(),
		log: logrus.WithFields(logrus.Fields{
			"component": "solver",
			"mode":      mode.String(),
		}),
	}
	s.log.WithFields(logrus.Fields{
		"correctorNit": p.CorrectorNit,
		"scalars":      p.ScalarNames(),
	}).Info("simulation configured")
	return s, nil
}

// TileShape returns the full local tile extents, halos included.
func (s *Simulation) TileShape() (nx, ny, nz int) {
	h := s.params.HaloWidth
	return s.params.Nx + 2*h, s.params.Ny + 2*h, s.params.Nz + 2*h
}

// exchange refreshes f's halos under name's boundary conditions. Per-point
// boundary planes maintained under bc_<name>_<dim>_<face> keys override the
// static configuration face by face; the working state is searched first so
// planes refreshed by a prestep hook win over the ones the caller supplied.
func (s *Simulation) exchange(rep *comm.Replica, name string, f *field.Field,
	bc *comm.FieldBC, states, additional *types.State) (*field.Field, error) {
	bc = overlayBoundaryPlanes(name, bc, states, additional)
	return rep.ExchangeHalos(f, []int{0, 1, 2}, s.params.HaloWidth,
		s.params.Periodic, bc)
}

// overlayBoundaryPlanes replaces static face conditions with Neumann planes
// found under bc_* keys. The static conditions are never mutated.
func overlayBoundaryPlanes(name string, bc *comm.FieldBC,
	sources ...*types.State) *comm.FieldBC {
	var out *comm.FieldBC
	for dim := 0; dim < 3; dim++ {
		for face := 0; face < 2; face++ {
			for _, src := range sources {
				if src == nil {
					continue
				}
				plane, ok := src.Get(types.BCKey(name, dim, face))
				if !ok {
					continue
				}
				if out == nil {
					out = &comm.FieldBC{}
					if bc != nil {
						*out = *bc
					}
				}
				out[dim][face] = comm.FaceBC{Type: comm.BCNeumann, Plane: plane}
				break
			}
		}
	}
	if out == nil {
		return bc
	}
	return out
}

// captureInitialState freezes the previous step's state with refreshed
// halos and derives the momentum and working fields every corrector
// iteration references.
func (s *Simulation) captureInitialState(rep *comm.Replica,
	states, additional *types.State) (*types.State, error) {
	states0 := types.NewState()

	// Boundary planes merged by a prestep hook ride along first so every
	// halo exchange below, and in the corrector iterations, sees them.
	if err := states.Range(func(name string, f *field.Field) error {
		if types.IsBCKey(name) {
			return states0.Set(name, f)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	for _, key := range []string{types.KeyRho, types.KeyU, types.KeyV,
		types.KeyW, types.KeyP} {
		f, err := states.Require(key)
		if err != nil {
			return nil, err
		}
		if err := states0.Set(key, f); err != nil {
			return nil, err
		}
	}

	for _, name := range s.params.ScalarNames() {
		sc, err := states.Require(name)
		if err != nil {
			return nil, err
		}
		exchanged, err := s.scalars.exchangeHalos(s, rep, name, sc, states0, additional)
		if err != nil {
			return nil, err
		}
		states0.MustSet(name, exchanged)
	}

	rho0, _, err := s.thermo.UpdateDensity(states0, additional, nil)
	if err != nil {
		return nil, err
	}
	rhoThermal, err := s.thermo.UpdateThermalDensity(states0, additional)
	if err != nil {
		return nil, err
	}
	states0.MustSet(types.KeyRho, rho0)
	states0.MustSet(KeyRhoThermal, rhoThermal)
	states0.MustSet(KeyDRho, field.ZerosLike(rho0))

	if err := s.velocity.updateHalos(s, rep, states0, additional); err != nil {
		return nil, err
	}

	states0.MustSet(KeyRhoU, field.Mul(rho0, mustGet(states0, types.KeyU)))
	states0.MustSet(KeyRhoV, field.Mul(rho0, mustGet(states0, types.KeyV)))
	states0.MustSet(KeyRhoW, field.Mul(rho0, mustGet(states0, types.KeyW)))
	for _, name := range s.params.ScalarNames() {
		states0.MustSet(momentumKey(name), field.Mul(rho0, mustGet(states0, name)))
	}

	if err := s.pressure.updateHalos(s, rep, states0, additional); err != nil {
		return nil, err
	}
	states0.MustSet(KeyDP, field.ZerosLike(mustGet(states0, types.KeyP)))

	// Monitor fields requested through the additional states ride along so
	// the analytics pass can fill them at the end of the step.
	if additional != nil {
		err := additional.Range(func(name string, f *field.Field) error {
			if isMonitorKey(name) {
				return states0.Set(name, f)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return states0, nil
}

// correctorIteration runs one predictor-corrector pass, consuming the
// previous iteration's state and producing a new one.
func (s *Simulation) correctorIteration(rep *comm.Replica, iteration int,
	statesK, states0, additional *types.State) (*types.State, error) {
	out := statesK.Clone()

	rhoMid := field.Average(mustGet(out, types.KeyRho), mustGet(states0, types.KeyRho))
	out.MustSet(KeyRhoU, field.Mul(rhoMid, mustGet(out, types.KeyU)))
	out.MustSet(KeyRhoV, field.Mul(rhoMid, mustGet(out, types.KeyV)))
	out.MustSet(KeyRhoW, field.Mul(rhoMid, mustGet(out, types.KeyW)))

	if err := s.scalars.predictionStep(s, rep, out, additional, states0, rhoMid); err != nil {
		return nil, err
	}

	if s.mode == types.LowMach {
		rho, drho, err := s.thermo.UpdateDensity(out, additional, states0)
		if err != nil {
			return nil, err
		}
		rhoThermal, err := s.thermo.UpdateThermalDensity(out, additional)
		if err != nil {
			return nil, err
		}
		out.MustSet(types.KeyRho, rho)
		out.MustSet(KeyRhoThermal, rhoThermal)
		out.MustSet(KeyDRho, drho)
	} else {
		rhoThermal, err := s.thermo.UpdateThermalDensity(out, additional)
		if err != nil {
			return nil, err
		}
		out.MustSet(KeyRhoThermal, rhoThermal)
	}

	if err := s.pressure.updateHalos(s, rep, out, additional); err != nil {
		return nil, err
	}

	if s.params.EnableScalarRecorrection && s.mode != types.Anelastic {
		if err := s.scalars.correctionStep(s, rep, out, additional); err != nil {
			return nil, err
		}
	}

	if err := s.velocity.predictionStep(s, rep, out, additional, states0, rhoMid); err != nil {
		return nil, err
	}

	if err := s.pressure.step(s, rep, out, states0, additional, iteration); err != nil {
		return nil, err
	}

	if err := s.velocity.correctionStep(s, rep, out, additional); err != nil {
		return nil, err
	}
	return out, nil
}

// Step advances the flow state by one time step on the calling replica.
// Every replica must call Step with the same stepID for the collective
// exchanges inside to line up.
func (s *Simulation) Step(rep *comm.Replica, stepID int,
	states, additional *types.State) (*types.State, error) {
	if s.Prestep != nil {
		updates, err := s.Prestep(states, additional)
		if err != nil {
			return nil, err
		}
		// Merge into a working copy; the caller's state is never mutated.
		working := states.Clone()
		if err := working.Merge(updates); err != nil {
			return nil, err
		}
		states = working
	}

	states0, err := s.captureInitialState(rep, states, additional)
	if err != nil {
		return nil, err
	}

	statesK := states0.Clone()
	for i := 0; i < s.params.CorrectorNit; i++ {
		statesK, err = s.correctorIteration(rep, i, statesK, states0, additional)
		if err != nil {
			return nil, err
		}
	}

	if s.Poststep != nil {
		updates, err := s.Poststep(statesK, additional)
		if err != nil {
			return nil, err
		}
		if err := statesK.Merge(updates); err != nil {
			return nil, err
		}
	}

	// Untouched additional-state keys pass through to the output.
	if additional != nil {
		err := additional.Range(func(name string, f *field.Field) error {
			if statesK.Has(name) {
				return nil
			}
			return statesK.Set(name, f)
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.monitor.ComputeAnalytics(rep, statesK, s.params.HaloWidth, stepID); err != nil {
		return nil, err
	}

	for _, name := range []string{types.KeyU, types.KeyV, types.KeyW, "thermal"} {
		statesK.Delete(momentumKey(name))
	}
	for _, name := range s.params.ScalarNames() {
		statesK.Delete(momentumKey(name))
	}
	if additional == nil || !additional.Has(KeyDRho) {
		statesK.Delete(KeyDRho)
	}
	if additional == nil || !additional.Has(KeyDP) {
		statesK.Delete(KeyDP)
	}
	return statesK, nil
}

func momentumKey(name string) string {
	return "rho_" + name
}

// mustGet fetches a key whose presence was already validated; absence at
// this point is a programmer error.
func mustGet(s *types.State, name string) *field.Field {
	f, ok := s.Get(name)
	if !ok {
		panic(fmt.Sprintf("state key %q disappeared mid-step", name))
	}
	return f
}
