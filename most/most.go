// Package most implements the Monin-Obukhov similarity theory surface
// layer closure. It computes wall shear stress and heat flux from the first
// fluid layer above the ground and turns them into Neumann boundary
// condition planes for the horizontal velocity components and, optionally,
// the temperature.
//
// Divisions follow a zero-on-zero-denominator policy throughout: a zero
// Obukhov length means no friction and a zero first-layer velocity means no
// shear, so a zero result is the physically correct limit in both cases.
// Square root arguments are clamped at zero before the root is taken.
package most

import (
	"fmt"
	"math"

	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/rootfind"
	"github.com/structmesh/lowmach/types"
)

const (
	// Von Karman constant.
	kappa = 0.4
	// Stability correction for momentum in the neutral log law.
	phiM = 0.0
	// Acceleration of gravity.
	g = 9.81
)

// KeyTemperature is the state key the closure reads for buoyancy.
const KeyTemperature = "T"

// Closure evaluates the similarity theory relations for one wall, assumed
// to sit at the low-index end of the vertical dimension.
type Closure struct {
	nu        float64
	height    float64
	haloWidth int

	verticalDim    int
	horizontalDims [2]int

	z0, zT         float64
	t0, tS         float64
	heatFlux       float64
	betaM, betaH   float64
	gammaM, gammaH float64
	alpha          float64

	enableThetaReg     bool
	thetaMax, thetaMin float64
}

// NewClosure builds the closure from the simulation parameters. A missing
// or disabled MOST block is a configuration error.
func NewClosure(p *params.Parameters) (*Closure, error) {
	if p.MOST == nil || !p.MOST.Enabled {
		return nil, fmt.Errorf("surface layer model requested but the MOST block is absent or disabled")
	}
	spec := p.MOST
	if spec.VerticalDim < 0 || spec.VerticalDim > 2 {
		return nil, fmt.Errorf("vertical dimension out of range: %d", spec.VerticalDim)
	}
	if spec.Z0 <= 0 || spec.ZM <= 0 {
		return nil, fmt.Errorf("surface layer heights must be positive, got zm=%g z0=%g",
			spec.ZM, spec.Z0)
	}

	var horizontal [2]int
	n := 0
	for dim := 0; dim < 3; dim++ {
		if dim != spec.VerticalDim {
			horizontal[n] = dim
			n++
		}
	}

	height := [3]float64{p.Dx, p.Dy, p.Dz}[spec.VerticalDim]
	return &Closure{
		nu:             p.Nu,
		height:         height,
		haloWidth:      p.HaloWidth,
		verticalDim:    spec.VerticalDim,
		horizontalDims: horizontal,
		z0:             spec.Z0,
		zT:             spec.ZT,
		t0:             spec.T0,
		tS:             spec.TS,
		heatFlux:       spec.HeatFlux,
		betaM:          spec.BetaM,
		betaH:          spec.BetaH,
		gammaM:         spec.GammaM,
		gammaH:         spec.GammaH,
		alpha:          spec.Alpha,
		enableThetaReg: spec.EnableThetaReg,
		thetaMax:       spec.ThetaMax,
		thetaMin:       spec.ThetaMin,
	}, nil
}

// stabilityCorrection selects the correction functions by the buoyancy of
// the first fluid layer: negative buoyancy is unstable, positive stable and
// zero neutral.
func (c *Closure) stabilityCorrection(zeta, theta *field.Field) (psiM, psiH *field.Field) {
	psiM = field.Map2(theta, zeta, func(t, z float64) float64 {
		b := t - c.tS
		switch {
		case b < 0:
			x := math.Pow(math.Max(1-c.gammaM*z, 0), 0.25)
			return 2*math.Log(0.5*(1+x)) + math.Log(0.5*(1+x*x)) -
				2*math.Atan(x) + 0.5*math.Pi
		case b > 0:
			return -c.betaM * z
		}
		return 0
	})
	psiH = field.Map2(theta, zeta, func(t, z float64) float64 {
		b := t - c.tS
		switch {
		case b < 0:
			y := math.Sqrt(math.Max(1-c.gammaH*z, 0))
			return 2 * math.Log(0.5*(1+y))
		case b > 0:
			return -c.betaH * z
		}
		return 0
	})
	return psiM, psiH
}

// richardsonNumber computes the bulk Richardson number of the first fluid
// layer. Quiescent points yield zero rather than a division blowup.
func (c *Closure) richardsonNumber(theta, u1, u2 *field.Field, height float64) *field.Field {
	return field.Map3(theta, u1, u2, func(t, u, v float64) float64 {
		denom := (u*u + v*v) * t
		if denom == 0 {
			return 0
		}
		return g * height * (t - c.tS) / denom
	})
}

// normalizedHeight solves zeta = z/L from the bulk Richardson number
// relation Rb = zeta * (ln(z/z0) - Psi_h) / (ln(z/z0) - Psi_m)^2 with a
// fixed ten-iteration Newton solve from a zero initial guess.
func (c *Closure) normalizedHeight(theta, u1, u2 *field.Field, height float64) *field.Field {
	lnZ := math.Log(height / c.z0)
	rb := c.richardsonNumber(theta, u1, u2, height)

	objective := func(zeta *field.Field) *field.Field {
		psiM, psiH := c.stabilityCorrection(zeta, theta)
		out := field.ZerosLike(zeta)
		for n := range out.Data {
			denom := lnZ - psiM.Data[n]
			out.Data[n] = rb.Data[n] - zeta.Data[n]*(lnZ-psiH.Data[n])/(denom*denom)
		}
		return out
	}

	zeta, err := rootfind.Newton(objective, field.ZerosLike(theta),
		rootfind.Options{MaxIterations: 10})
	if err != nil {
		// Only tolerance misconfiguration can fail here and none is set.
		panic(err)
	}
	return zeta
}

// regularizeTheta applies the configured bounds to the potential
// temperature.
func (c *Closure) regularizeTheta(theta *field.Field) *field.Field {
	if !c.enableThetaReg {
		return theta
	}
	return theta.Map(func(t float64) float64 {
		return math.Max(math.Min(t, c.thetaMax), c.thetaMin)
	})
}

// surfaceShearStressAndHeatFlux evaluates the stability corrected log law
// at the given height above the wall.
func (c *Closure) surfaceShearStressAndHeatFlux(theta, u1, u2 *field.Field,
	height float64) (tau13, tau23, q3 *field.Field) {
	zeta := c.normalizedHeight(theta, u1, u2, height)
	psiM, psiH := c.stabilityCorrection(zeta, theta)
	lnZ := math.Log(height / c.z0)

	uMag := field.Map2(u1, u2, func(u, v float64) float64 {
		return math.Sqrt(u*u + v*v)
	})

	shear := func(ui, ur, psi float64) float64 {
		denom := lnZ - psi
		return -kappa * kappa * ur * ui / (denom * denom)
	}
	tau13 = field.Map3(u1, uMag, psiM, shear)
	tau23 = field.Map3(u2, uMag, psiM, shear)

	uS := field.Map2(tau13, tau23, func(a, b float64) float64 {
		return math.Pow(a*a+b*b, 0.25)
	})
	q3 = field.Map3(theta, uS, psiH, func(t, us, psi float64) float64 {
		return (c.tS - t) * us * kappa / (lnZ - psi)
	})
	return tau13, tau23, q3
}

// firstFluidLayer extracts the plane one halo width above the wall.
func (c *Closure) firstFluidLayer(f *field.Field) *field.Field {
	return f.Plane(c.verticalDim, c.haloWidth, 1)
}

var dimToVelocityKey = [3]string{types.KeyU, types.KeyV, types.KeyW}

func (c *Closure) horizontalVelocityPlanes(states *types.State) (u1, u2 *field.Field, err error) {
	f1, err := states.Require(dimToVelocityKey[c.horizontalDims[0]])
	if err != nil {
		return nil, nil, err
	}
	f2, err := states.Require(dimToVelocityKey[c.horizontalDims[1]])
	if err != nil {
		return nil, nil, err
	}
	return c.firstFluidLayer(f1), c.firstFluidLayer(f2), nil
}

// SurfaceShearStressAndHeatFlux computes the wall stress components and the
// surface heat flux from the first fluid layer. The wall sits at the face
// midway between the first fluid layer and the halo, so the evaluation
// height is half the vertical spacing.
func (c *Closure) SurfaceShearStressAndHeatFlux(states *types.State) (tau13, tau23, q3 *field.Field, err error) {
	u1, u2, err := c.horizontalVelocityPlanes(states)
	if err != nil {
		return nil, nil, nil, err
	}
	t, err := states.Require(KeyTemperature)
	if err != nil {
		return nil, nil, nil, err
	}
	theta := c.regularizeTheta(c.firstFluidLayer(t))

	tau13, tau23, q3 = c.surfaceShearStressAndHeatFlux(theta, u1, u2, c.height/2)
	return tau13, tau23, q3, nil
}

// exchangeCoefficient computes the transfer coefficient of the energy
// equation; it degrades to zero where the log law denominator vanishes.
func (c *Closure) exchangeCoefficient(theta, u1, u2 *field.Field, height float64) *field.Field {
	zeta := c.normalizedHeight(theta, u1, u2, height)
	psiM, psiH := c.stabilityCorrection(zeta, theta)
	lnZ := math.Log(height / c.z0)

	return field.Map2(psiM, psiH, func(pm, ph float64) float64 {
		denom := (lnZ - ph) * (lnZ - pm)
		if denom == 0 {
			return 0
		}
		return kappa * kappa / denom
	})
}

// SurfaceScalarFlux computes the wall-normal flux of the named scalar from
// the bulk exchange formula.
func (c *Closure) SurfaceScalarFlux(states *types.State, scalar string) (*field.Field, error) {
	u1, u2, err := c.horizontalVelocityPlanes(states)
	if err != nil {
		return nil, err
	}
	t, err := states.Require(KeyTemperature)
	if err != nil {
		return nil, err
	}
	rhoFull, err := states.Require(types.KeyRho)
	if err != nil {
		return nil, err
	}
	phiFull, err := states.Require(scalar)
	if err != nil {
		return nil, err
	}

	theta := c.regularizeTheta(c.firstFluidLayer(t))
	rho := c.firstFluidLayer(rhoFull)
	phiZM := c.firstFluidLayer(phiFull)
	phiZ0 := phiFull.Plane(c.verticalDim, c.haloWidth-1, 1)

	ch := c.exchangeCoefficient(theta, u1, u2, c.height/2)

	out := field.ZerosLike(rho)
	for n := range out.Data {
		uMag := math.Sqrt(u1.Data[n]*u1.Data[n] + u2.Data[n]*u2.Data[n])
		out.Data[n] = -rho.Data[n] * ch.Data[n] * uMag *
			(phiZM.Data[n] - phiZ0.Data[n])
	}
	return out, nil
}

// obukhovLength solves the quadratic for the inverse normalized Obukhov
// length from plane-averaged velocity magnitude and temperature. The
// discriminant is clamped at zero and the root branch follows the sign of
// the leading coefficient.
func (c *Closure) obukhovLength(m, temperature, zm float64) float64 {
	var param float64
	if dt := temperature - c.tS; dt != 0 {
		param = m * m / g * c.t0 / dt
	}

	a := c.betaM*c.betaM + param*c.betaH/zm
	b := 2*c.betaM*math.Log(zm/c.z0) + c.alpha*param*math.Log(zm/c.zT)/zm
	cc := math.Log(zm / c.z0)
	cc *= cc

	delta := math.Sqrt(math.Max(b*b-4*a*cc, 0))
	var lInv float64
	if a != 0 {
		if a < 0 {
			lInv = (-b - delta) / (2 * a)
		} else {
			lInv = (-b + delta) / (2 * a)
		}
	}
	if lInv == 0 {
		return 0
	}
	return zm / lInv
}
