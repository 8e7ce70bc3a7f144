package solver

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/grid"
	"github.com/structmesh/lowmach/most"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/thermo"
	"github.com/structmesh/lowmach/types"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.WarnLevel)
	os.Exit(m.Run())
}

func testParams() *params.Parameters {
	return &params.Parameters{
		Title: "test",
		Cx:    1, Cy: 1, Cz: 1,
		Nx: 8, Ny: 8, Nz: 8,
		Dx: 0.1, Dy: 0.1, Dz: 0.1,
		Dt:           0.01,
		HaloWidth:    2,
		CorrectorNit: 3,
		SolverMode:   "LOW_MACH",
		Rho:          1.0,
		Nu:           1.0e-5,
		Scalars: []params.ScalarSpec{
			{Name: "Z", Density: 2.0, Diffusivity: 1.0e-5},
		},
		EnableScalarRecorrection: true,
		PressureIterations:       5,
		Thermodynamics:           params.ThermodynamicsSpec{Model: "linear_mixing"},
	}
}

func singleReplica(t *testing.T) *comm.Replica {
	t.Helper()
	fab := comm.NewFabric(grid.New(1, 1, 1))
	return fab.Replica(0)
}

// atRestState builds a uniform quiescent flow on the full tile.
func atRestState(s *Simulation, scalarValue float64) *types.State {
	nx, ny, nz := s.TileShape()
	states := types.NewState()
	states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 1.0))
	states.MustSet(types.KeyU, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyV, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyW, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyP, field.NewField(nx, ny, nz))
	states.MustSet("Z", field.NewUniform(nx, ny, nz, scalarValue))
	return states
}

func TestStepAtRestStaysAtRest(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(thermo.Config{Model: "constant_density", Rho: 1.0})
	require.NoError(t, err)
	p.Scalars = nil
	p.Thermodynamics.Model = "constant_density"

	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	states := types.NewState()
	states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 1.0))
	states.MustSet(types.KeyU, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyV, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyW, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyP, field.NewField(nx, ny, nz))

	out, err := s.Step(singleReplica(t), 0, states, nil)
	require.NoError(t, err)

	for _, key := range []string{types.KeyU, types.KeyV, types.KeyW, types.KeyP} {
		f, ok := out.Get(key)
		require.True(t, ok, key)
		assert.InDelta(t, 0., f.MaxAbs(), 1.e-10, key)
	}
	rho, _ := out.Get(types.KeyRho)
	assert.InDelta(t, 1.0, rho.At(4, 4, 4), 1.e-12)
}

func TestStepDeterminism(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(p.ThermoConfig())
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	build := func() *types.State {
		states := atRestState(s, 0)
		z, _ := states.Get("Z")
		z = z.Clone()
		// Non-uniform scalar so the step has real work to do.
		forEachInterior(z, p.HaloWidth, func(i, j, k int) {
			z.Set(i, j, k, 0.1*float64(i%3))
		})
		states.MustSet("Z", z)
		return states
	}

	out1, err := s.Step(singleReplica(t), 7, build(), nil)
	require.NoError(t, err)
	out2, err := s.Step(singleReplica(t), 7, build(), nil)
	require.NoError(t, err)

	require.ElementsMatch(t, out1.Keys(), out2.Keys())
	for _, key := range out1.Keys() {
		f1, _ := out1.Get(key)
		f2, _ := out2.Get(key)
		assert.Equal(t, f1.Data, f2.Data, key)
	}
}

func TestStepLowMachProducesDRho(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(p.ThermoConfig())
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	states := atRestState(s, 0)
	z, _ := states.Get("Z")
	z = z.Clone()
	forEachInterior(z, p.HaloWidth, func(i, j, k int) {
		if i < z.Nx/2 {
			z.Set(i, j, k, 0.8)
		}
	})
	states.MustSet("Z", z)

	nx, ny, nz := s.TileShape()
	additional := types.NewState()
	additional.MustSet(KeyDRho, field.NewField(nx, ny, nz))

	out, err := s.Step(singleReplica(t), 0, states, additional)
	require.NoError(t, err)

	drho, ok := out.Get(KeyDRho)
	require.True(t, ok)
	assert.Greater(t, drho.MaxAbs(), 0.)
}

// countingModel instruments the closure call pattern per solver mode.
type countingModel struct {
	inner        thermo.Model
	densityCalls int
	thermalCalls int
}

func (c *countingModel) UpdateDensity(states, additional, states0 *types.State) (*field.Field, *field.Field, error) {
	c.densityCalls++
	return c.inner.UpdateDensity(states, additional, states0)
}

func (c *countingModel) UpdateThermalDensity(states, additional *types.State) (*field.Field, error) {
	c.thermalCalls++
	return c.inner.UpdateThermalDensity(states, additional)
}

func TestStepModeBranching(t *testing.T) {
	run := func(mode string) *countingModel {
		p := testParams()
		p.SolverMode = mode
		inner, err := thermo.NewModel(p.ThermoConfig())
		require.NoError(t, err)
		model := &countingModel{inner: inner}
		s, err := NewSimulation(p, model)
		require.NoError(t, err)

		_, err = s.Step(singleReplica(t), 0, atRestState(s, 0.5), nil)
		require.NoError(t, err)
		return model
	}

	lowMach := run("LOW_MACH")
	// One call capturing the initial state plus one per corrector iteration.
	assert.Equal(t, 4, lowMach.densityCalls)
	assert.Equal(t, 4, lowMach.thermalCalls)

	anelastic := run("ANELASTIC")
	// The corrector loop never re-solves density in anelastic mode.
	assert.Equal(t, 1, anelastic.densityCalls)
	assert.Equal(t, 4, anelastic.thermalCalls)
}

func TestStepDropsWorkingKeys(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(p.ThermoConfig())
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	out, err := s.Step(singleReplica(t), 0, atRestState(s, 0.2), nil)
	require.NoError(t, err)

	for _, key := range []string{KeyRhoU, KeyRhoV, KeyRhoW, KeyRhoThermal,
		"rho_Z", KeyDRho, KeyDP} {
		assert.False(t, out.Has(key), key)
	}
	for _, key := range []string{types.KeyRho, types.KeyU, types.KeyV,
		types.KeyW, types.KeyP, "Z"} {
		assert.True(t, out.Has(key), key)
	}
}

func TestStepMissingStateKey(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(p.ThermoConfig())
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	states := atRestState(s, 0.2)
	states.Delete(types.KeyV)

	_, err = s.Step(singleReplica(t), 0, states, nil)
	assert.Error(t, err)
}

func TestStepHooksAndPassthrough(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(p.ThermoConfig())
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	prestepRan := false
	s.Prestep = func(states, additional *types.State) (*types.State, error) {
		prestepRan = true
		return nil, nil
	}

	additional := types.NewState()
	additional.MustSet("sponge", field.NewUniform(nx, ny, nz, 42))

	out, err := s.Step(singleReplica(t), 0, atRestState(s, 0.2), additional)
	require.NoError(t, err)

	assert.True(t, prestepRan)
	sponge, ok := out.Get("sponge")
	require.True(t, ok)
	assert.Equal(t, 42., sponge.At(0, 0, 0))
}

func TestStepMonitorAnalytics(t *testing.T) {
	p := testParams()
	p.Scalars = nil
	p.Thermodynamics.Model = "constant_density"
	model, err := thermo.NewModel(thermo.Config{Model: "constant_density", Rho: 1.0})
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	states := types.NewState()
	states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 1.0))
	states.MustSet(types.KeyU, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyV, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyW, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyP, field.NewField(nx, ny, nz))

	additional := types.NewState()
	additional.MustSet("monitor_rho_mean", field.NewField(nx, ny, nz))

	out, err := s.Step(singleReplica(t), 3, states, additional)
	require.NoError(t, err)

	mean, ok := out.Get("monitor_rho_mean")
	require.True(t, ok)
	assert.InDelta(t, 1.0, mean.At(0, 0, 0), 1.e-12)
}

func TestStepTurbulentViscosityPassthrough(t *testing.T) {
	p := testParams()
	model, err := thermo.NewModel(p.ThermoConfig())
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	states := atRestState(s, 0.5)
	additional := types.NewState()
	additional.MustSet(KeyNuT, field.NewUniform(nx, ny, nz, 0.05))

	out, err := s.Step(singleReplica(t), 0, states, additional)
	require.NoError(t, err)

	{ // nu_t is consumed by the momentum prediction and echoed through
		nuT, ok := out.Get(KeyNuT)
		require.True(t, ok)
		assert.Equal(t, 0.05, nuT.At(1, 1, 1))
	}
	{ // a quiescent uniform flow has no shear for nu_t to act on
		for _, key := range []string{types.KeyU, types.KeyV, types.KeyW} {
			vel, ok := out.Get(key)
			require.True(t, ok)
			assert.LessOrEqual(t, vel.MaxAbs(), 1e-10)
		}
	}
}

func TestStepBoundaryPlaneDrivesFlow(t *testing.T) {
	p := testParams()
	p.Scalars = nil
	p.Thermodynamics.Model = "constant_density"
	model, err := thermo.NewModel(thermo.Config{Model: "constant_density", Rho: 1.0})
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	states := types.NewState()
	states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 1.0))
	states.MustSet(types.KeyU, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyV, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyW, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyP, field.NewField(nx, ny, nz))

	// A nonzero wall gradient for u at the bottom face must pull the fluid
	// out of rest through the halo fill and the diffusion stencil.
	additional := types.NewState()
	additional.MustSet(types.BCKey(types.KeyU, 2, 0), field.NewUniform(nx, ny, nz, 0.5))

	out, err := s.Step(singleReplica(t), 0, states, additional)
	require.NoError(t, err)

	u, ok := out.Get(types.KeyU)
	require.True(t, ok)
	assert.Greater(t, u.MaxAbs(), 0.)
}

func TestStepSurfaceClosureAltersFlow(t *testing.T) {
	p := testParams()
	p.Scalars = nil
	p.Thermodynamics.Model = "constant_density"
	p.MOST = &params.MOSTSpec{
		Enabled:     true,
		VerticalDim: 2,
		ZM:          0.1, Z0: 0.01, ZT: 0.01,
		T0: 300, TS: 295,
		HeatFlux: 0.1,
		BetaM:    4.8, BetaH: 7.8,
		GammaM: 15, GammaH: 15,
		Alpha: 1,
	}
	model, err := thermo.NewModel(thermo.Config{Model: "constant_density", Rho: 1.0})
	require.NoError(t, err)
	closure, err := most.NewClosure(p)
	require.NoError(t, err)

	build := func(s *Simulation) (*types.State, *types.State) {
		nx, ny, nz := s.TileShape()
		states := types.NewState()
		states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 1.0))
		states.MustSet(types.KeyU, field.NewUniform(nx, ny, nz, 1.0))
		states.MustSet(types.KeyV, field.NewField(nx, ny, nz))
		states.MustSet(types.KeyW, field.NewField(nx, ny, nz))
		states.MustSet(types.KeyP, field.NewField(nx, ny, nz))

		additional := types.NewState()
		additional.MustSet(most.KeyTemperature, field.NewUniform(nx, ny, nz, 300))
		additional.MustSet(types.BCKey(types.KeyU, 2, 0), field.NewField(nx, ny, nz))
		additional.MustSet(types.BCKey(types.KeyV, 2, 0), field.NewField(nx, ny, nz))
		return states, additional
	}

	run := func(withClosure bool) *types.State {
		s, err := NewSimulation(p, model)
		require.NoError(t, err)
		rep := singleReplica(t)
		if withClosure {
			s.Prestep = func(states, additional *types.State) (*types.State, error) {
				return closure.MoengUpdateFn(rep, states, additional)
			}
		}
		states, additional := build(s)
		out, err := s.Step(rep, 0, states, additional)
		require.NoError(t, err)
		return out
	}

	plain := run(false)
	closed := run(true)

	{ // the closure leaves a nonzero wall gradient plane in its wake
		du, ok := closed.Get(types.BCKey(types.KeyU, 2, 0))
		require.True(t, ok)
		assert.Greater(t, du.MaxAbs(), 0.)
	}
	{ // without the closure a uniform stream stays uniform
		u, _ := plain.Get(types.KeyU)
		assert.InDelta(t, 0., field.AddScaled(u, -1,
			field.NewUniform(u.Nx, u.Ny, u.Nz, 1.0)).MaxAbs(), 1.e-12)
	}
	{ // with it the wall stress decelerates the stream
		uPlain, _ := plain.Get(types.KeyU)
		uClosed, _ := closed.Get(types.KeyU)
		assert.Greater(t, field.Sub(uClosed, uPlain).MaxAbs(), 0.)
	}
}

func TestVelocityPredictionUsesMidpointDensity(t *testing.T) {
	p := testParams()
	p.Scalars = nil
	p.Thermodynamics.Model = "constant_density"
	model, err := thermo.NewModel(thermo.Config{Model: "constant_density", Rho: 1.0})
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	statesK := types.NewState()
	statesK.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 3.0))
	statesK.MustSet(types.KeyU, field.NewField(nx, ny, nz))
	statesK.MustSet(types.KeyV, field.NewField(nx, ny, nz))
	statesK.MustSet(types.KeyW, field.NewField(nx, ny, nz))
	statesK.MustSet(types.KeyP, field.NewField(nx, ny, nz))
	statesK.MustSet(KeyRhoU, field.NewField(nx, ny, nz))
	statesK.MustSet(KeyRhoV, field.NewField(nx, ny, nz))
	statesK.MustSet(KeyRhoW, field.NewField(nx, ny, nz))

	states0 := types.NewState()
	states0.MustSet(KeyRhoU, field.NewUniform(nx, ny, nz, 3.0))
	states0.MustSet(KeyRhoV, field.NewField(nx, ny, nz))
	states0.MustSet(KeyRhoW, field.NewField(nx, ny, nz))

	rhoMid := field.NewUniform(nx, ny, nz, 1.5)

	require.NoError(t, s.velocity.predictionStep(s, singleReplica(t),
		statesK, nil, states0, rhoMid))

	// With zero forcing the provisional velocity is the carried momentum over
	// the midpoint density, not over the end-of-iteration density.
	u, _ := statesK.Get(types.KeyU)
	assert.Equal(t, 2.0, u.At(4, 4, 4))
	assert.InDelta(t, 0., field.AddScaled(u, -1,
		field.NewUniform(nx, ny, nz, 2.0)).MaxAbs(), 1.e-12)
}

func TestStepPrestepLeavesCallerStates(t *testing.T) {
	p := testParams()
	p.Scalars = nil
	p.Thermodynamics.Model = "constant_density"
	model, err := thermo.NewModel(thermo.Config{Model: "constant_density", Rho: 1.0})
	require.NoError(t, err)
	s, err := NewSimulation(p, model)
	require.NoError(t, err)

	nx, ny, nz := s.TileShape()
	s.Prestep = func(states, additional *types.State) (*types.State, error) {
		updates := types.NewState()
		updates.MustSet(types.KeyU, field.NewUniform(nx, ny, nz, 1.0))
		return updates, nil
	}

	states := types.NewState()
	states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, 1.0))
	states.MustSet(types.KeyU, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyV, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyW, field.NewField(nx, ny, nz))
	states.MustSet(types.KeyP, field.NewField(nx, ny, nz))

	out, err := s.Step(singleReplica(t), 0, states, nil)
	require.NoError(t, err)

	{ // the update took effect on the result
		u, _ := out.Get(types.KeyU)
		assert.Equal(t, 1.0, u.At(4, 4, 4))
	}
	{ // but the caller still owns an untouched input
		u, _ := states.Get(types.KeyU)
		assert.Equal(t, 0., u.MaxAbs())
	}
}
