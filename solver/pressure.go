package solver

import (
	"github.com/james-bowman/sparse"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/types"
)

// pressureEqs solves the pressure-correction Poisson equation. The 7-point
// Laplacian over the local tile is assembled once into a compressed sparse
// row matrix; each Jacobi sweep applies the off-diagonal part through the
// matrix and refreshes the correction's halos so interior updates next to a
// subdomain boundary see the neighbor's latest values.
type pressureEqs struct {
	bc           *comm.FieldBC
	allNeumann   bool
	dx, dy, dz   float64
	dt           float64
	sweeps       int
	halo         int
	nx, ny, nz   int
	offDiagonal  *sparse.CSR
	diagonal     float64
	haloExchange *comm.FieldBC
}

func newPressureEqs(p *params.Parameters) (*pressureEqs, error) {
	bc, err := p.FieldBC(types.KeyP)
	if err != nil {
		return nil, err
	}
	allNeumann := true
	for dim := 0; dim < 3; dim++ {
		for face := 0; face < 2; face++ {
			if bc[dim][face].Type == comm.BCDirichlet {
				allNeumann = false
			}
		}
	}

	eqs := &pressureEqs{
		bc:         bc,
		allNeumann: allNeumann,
		dx:         p.Dx, dy: p.Dy, dz: p.Dz,
		dt:           p.Dt,
		sweeps:       p.PressureIterations,
		halo:         p.HaloWidth,
		nx:           p.Nx + 2*p.HaloWidth,
		ny:           p.Ny + 2*p.HaloWidth,
		nz:           p.Nz + 2*p.HaloWidth,
		haloExchange: comm.HomogeneousNeumann(),
	}
	eqs.assemble()
	return eqs, nil
}

// assemble builds the off-diagonal Laplacian entries for every interior
// cell. The constant diagonal is kept separately for the Jacobi update.
func (e *pressureEqs) assemble() {
	var (
		ix = 1 / (e.dx * e.dx)
		iy = 1 / (e.dy * e.dy)
		iz = 1 / (e.dz * e.dz)
		n  = e.nx * e.ny * e.nz
	)
	e.diagonal = -2 * (ix + iy + iz)

	idx := func(i, j, k int) int { return (k*e.nx+i)*e.ny + j }
	dok := sparse.NewDOK(n, n)
	for k := e.halo; k < e.nz-e.halo; k++ {
		for i := e.halo; i < e.nx-e.halo; i++ {
			for j := e.halo; j < e.ny-e.halo; j++ {
				row := idx(i, j, k)
				dok.Set(row, idx(i-1, j, k), ix)
				dok.Set(row, idx(i+1, j, k), ix)
				dok.Set(row, idx(i, j-1, k), iy)
				dok.Set(row, idx(i, j+1, k), iy)
				dok.Set(row, idx(i, j, k-1), iz)
				dok.Set(row, idx(i, j, k+1), iz)
			}
		}
	}
	e.offDiagonal = dok.ToCSR()
}

func (e *pressureEqs) updateHalos(s *Simulation, rep *comm.Replica,
	states, additional *types.State) error {
	p, err := states.Require(types.KeyP)
	if err != nil {
		return err
	}
	exchanged, err := s.exchange(rep, types.KeyP, p, e.bc, states, additional)
	if err != nil {
		return err
	}
	states.MustSet(types.KeyP, exchanged)
	return nil
}

// step solves lap(dp) = (div(rho*u) + drho/dt) / dt for the pressure
// correction. The first corrector iteration runs twice the configured sweep
// count since it starts from a zero guess. With all-Neumann boundaries the
// right hand side mean is removed for solvability and the correction is
// re-centered at zero mean.
func (e *pressureEqs) step(s *Simulation, rep *comm.Replica,
	statesK, states0, additional *types.State, iteration int) error {
	mx := mustGet(statesK, KeyRhoU)
	my := mustGet(statesK, KeyRhoV)
	mz := mustGet(statesK, KeyRhoW)
	drho := mustGet(statesK, KeyDRho)

	b := field.AddScaled(
		divergence(mx, my, mz, e.dx, e.dy, e.dz).Scale(1/e.dt),
		1/(e.dt*e.dt), drho)

	halos := [3]int{e.halo, e.halo, e.halo}
	if e.allNeumann {
		mean, err := rep.GlobalMean(b, halos)
		if err != nil {
			return err
		}
		b = b.Map(func(v float64) float64 { return v - mean })
	}

	sweeps := e.sweeps
	if iteration == 0 {
		sweeps *= 2
	}

	dp := field.ZerosLike(b)
	for sweep := 0; sweep < sweeps; sweep++ {
		sigma := make([]float64, len(dp.Data))
		e.offDiagonal.DoNonZero(func(row, col int, v float64) {
			sigma[row] += v * dp.Data[col]
		})
		next := dp.Clone()
		forEachInterior(next, e.halo, func(i, j, k int) {
			row := (k*e.nx+i)*e.ny + j
			next.Set(i, j, k, (b.At(i, j, k)-sigma[row])/e.diagonal)
		})
		exchanged, err := s.exchange(rep, KeyDP, next, e.haloExchange,
			statesK, additional)
		if err != nil {
			return err
		}
		dp = exchanged
	}

	if e.allNeumann {
		mean, err := rep.GlobalMean(dp, halos)
		if err != nil {
			return err
		}
		dp = dp.Map(func(v float64) float64 { return v - mean })
	}
	statesK.MustSet(KeyDP, dp)
	return nil
}
