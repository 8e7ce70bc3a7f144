package most

import (
	"fmt"
	"math"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/types"
)

// BCKey names the additional-state entry holding the boundary condition
// plane of a variable at one domain face.
func BCKey(name string, dim, face int) string {
	return types.BCKey(name, dim, face)
}

// shearStresses computes the wall-parallel stress components from the
// plane-averaged resolved velocity and the neutral log law.
func (c *Closure) shearStresses(rep *comm.Replica, u1, u2 *field.Field,
	z float64) (tau1, tau2 *field.Field, err error) {
	uNorm := field.Map2(u1, u2, func(u, v float64) float64 {
		return math.Sqrt(u*u + v*v)
	})
	uMean, err := rep.GlobalMean(uNorm, [3]int{})
	if err != nil {
		return nil, nil, err
	}
	uStar := uMean * kappa / (math.Log(z/c.z0) - phiM)

	stress := func(v float64) float64 {
		if uMean == 0 {
			return 0
		}
		return -uStar * uStar * v / uMean
	}
	return u1.Map(stress), u2.Map(stress), nil
}

// frictionVelocity is the quartic root of the summed squared stresses.
func (c *Closure) frictionVelocity(rep *comm.Replica, u1, u2 *field.Field,
	z float64) (*field.Field, error) {
	tau1, tau2, err := c.shearStresses(rep, u1, u2, z)
	if err != nil {
		return nil, err
	}
	return field.Map2(tau1, tau2, func(a, b float64) float64 {
		return math.Pow(a*a+b*b, 0.25)
	}), nil
}

// lengthScale computes the Monin-Obukhov length L = -u*^3 T / (kappa g q).
func (c *Closure) lengthScale(uStar, temperature *field.Field) *field.Field {
	return field.Map2(uStar, temperature, func(us, t float64) float64 {
		denom := kappa * g * c.heatFlux
		if denom == 0 {
			return 0
		}
		return -us * us * us * t / denom
	})
}

// nondimensionalGradient evaluates phi(z/L): the convective form for
// surface heating, the stable form for surface cooling.
func (c *Closure) nondimensionalGradient(rep *comm.Replica,
	u1, u2, temperature *field.Field, z float64) (*field.Field, error) {
	uStar, err := c.frictionVelocity(rep, u1, u2, z)
	if err != nil {
		return nil, err
	}
	l := c.lengthScale(uStar, temperature).Scale(-1)

	if c.heatFlux >= 0 {
		return l.Map(func(li float64) float64 {
			var ratio float64
			if li != 0 {
				ratio = 15 * z / li
			}
			base := math.Max(1-ratio, 0)
			if base == 0 {
				return 0
			}
			return math.Pow(base, -0.25)
		}), nil
	}
	return l.Map(func(li float64) float64 {
		if li == 0 {
			return 1
		}
		return 1 + 4.7*z/li
	}), nil
}

// dimensionalGradient converts phi into the wall-normal gradient used for
// the Neumann condition.
func (c *Closure) dimensionalGradient(fStar, phi *field.Field, z float64) *field.Field {
	return field.Map2(fStar, phi, func(fs, p float64) float64 {
		return fs * p / (kappa * z)
	})
}

// horizontalHalos is the halo layout of a wall plane: halos exist only in
// the wall-parallel dimensions.
func (c *Closure) horizontalHalos() [3]int {
	var halos [3]int
	for _, dim := range c.horizontalDims {
		halos[dim] = c.haloWidth
	}
	return halos
}

func (c *Closure) stripPlane(plane *field.Field) (*field.Field, error) {
	return field.StripHalos(plane, c.horizontalHalos())
}

func (c *Closure) padPlane(plane *field.Field) *field.Field {
	var paddings [3][2]int
	for _, dim := range c.horizontalDims {
		paddings[dim] = [2]int{c.haloWidth, c.haloWidth}
	}
	return field.Pad(plane, paddings, 0)
}

// expandAlongVertical tiles a wall plane to the full vertical extent so it
// can live alongside the flow fields in a state map.
func (c *Closure) expandAlongVertical(plane *field.Field, n int) *field.Field {
	nx, ny, nz := plane.Nx, plane.Ny, plane.Nz
	switch c.verticalDim {
	case 0:
		nx = n
	case 1:
		ny = n
	case 2:
		nz = n
	}
	out := field.NewField(nx, ny, nz)
	for pos := 0; pos < n; pos++ {
		out = out.SetPlane(c.verticalDim, pos, plane)
	}
	return out
}

// MoengUpdateFn computes the Neumann boundary condition planes for the
// horizontal velocity components and, when the temperature is a prognostic
// state, for the temperature. The boundary keys must already exist in the
// additional states; their absence is a configuration error. Every replica
// must call this collectively since plane averages reduce globally.
func (c *Closure) MoengUpdateFn(rep *comm.Replica,
	states, additionalStates *types.State) (*types.State, error) {
	var (
		tFull   *field.Field
		updateT bool
	)
	if f, ok := states.Get(KeyTemperature); ok {
		tFull, updateT = f, true
	} else if additionalStates != nil {
		if f, ok := additionalStates.Get(KeyTemperature); ok {
			tFull, updateT = f, false
		}
	}
	if tFull == nil {
		return nil, fmt.Errorf("field %q is required for the similarity theory "+
			"boundary condition but was not found", KeyTemperature)
	}

	key1 := BCKey(dimToVelocityKey[c.horizontalDims[0]], c.verticalDim, 0)
	key2 := BCKey(dimToVelocityKey[c.horizontalDims[1]], c.verticalDim, 0)
	keyT := BCKey(KeyTemperature, c.verticalDim, 0)
	for _, key := range []string{key1, key2} {
		if additionalStates == nil || !additionalStates.Has(key) {
			return nil, fmt.Errorf("boundary key %q missing from the additional states", key)
		}
	}
	if updateT && !additionalStates.Has(keyT) {
		return nil, fmt.Errorf("boundary key %q missing from the additional states", keyT)
	}

	u1Full, u2Full, err := c.horizontalVelocityPlanes(states)
	if err != nil {
		return nil, err
	}
	u1, err := c.stripPlane(u1Full)
	if err != nil {
		return nil, err
	}
	u2, err := c.stripPlane(u2Full)
	if err != nil {
		return nil, err
	}
	temperature, err := c.stripPlane(c.regularizeTheta(c.firstFluidLayer(tFull)))
	if err != nil {
		return nil, err
	}

	phi, err := c.nondimensionalGradient(rep, u1, u2, temperature, c.height)
	if err != nil {
		return nil, err
	}
	uStar, err := c.frictionVelocity(rep, u1, u2, c.height)
	if err != nil {
		return nil, err
	}

	verticalExtent := tFull.Extent(c.verticalDim)
	du := c.padPlane(c.dimensionalGradient(uStar, phi, c.height).Scale(c.height))
	duFull := c.expandAlongVertical(du, verticalExtent)

	updates := types.NewState()
	updates.MustSet(key1, duFull)
	updates.MustSet(key2, duFull)

	if updateT {
		tStar := uStar.Map(func(us float64) float64 {
			if us == 0 {
				return 0
			}
			return c.heatFlux / us
		})
		dt := c.padPlane(c.dimensionalGradient(tStar, phi, c.height).Scale(c.height))
		updates.MustSet(keyT, c.expandAlongVertical(dt, verticalExtent))
	}
	return updates, nil
}
