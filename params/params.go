// Package params holds the YAML-backed simulation configuration.
package params

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"

	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/thermo"
	"github.com/structmesh/lowmach/types"
)

// ScalarSpec describes one transported scalar.
type ScalarSpec struct {
	Name        string  `yaml:"Name"`
	Density     float64 `yaml:"Density"`     // pure-species density for mixing rules
	Diffusivity float64 `yaml:"Diffusivity"` // molecular diffusivity, m^2/s
	InitValue   float64 `yaml:"InitValue"`
}

// FaceBCSpec is the boundary condition on one face of the domain.
type FaceBCSpec struct {
	Type  string  `yaml:"Type"` // "dirichlet", "neumann" or "none"
	Value float64 `yaml:"Value"`
}

// FieldBCSpec lists face conditions per dimension, low face then high face.
type FieldBCSpec [3][2]FaceBCSpec

// ThermodynamicsSpec selects the density closure.
type ThermodynamicsSpec struct {
	Model            string             `yaml:"Model"`
	PRef             float64            `yaml:"PRef"`
	MolecularWeights map[string]float64 `yaml:"MolecularWeights"`
}

// MOSTSpec parameterizes the Monin-Obukhov surface layer closure. All
// lengths are in meters, temperatures in Kelvin.
type MOSTSpec struct {
	Enabled        bool    `yaml:"Enabled"`
	VerticalDim    int     `yaml:"VerticalDim"`
	ZM             float64 `yaml:"ZM"` // height of the first model level
	Z0             float64 `yaml:"Z0"` // momentum roughness length
	ZT             float64 `yaml:"ZT"` // scalar roughness length
	T0             float64 `yaml:"T0"` // reference temperature
	TS             float64 `yaml:"TS"` // surface temperature
	UStar          float64 `yaml:"UStar"`
	HeatFlux       float64 `yaml:"HeatFlux"`
	BetaM          float64 `yaml:"BetaM"`
	BetaH          float64 `yaml:"BetaH"`
	GammaM         float64 `yaml:"GammaM"`
	GammaH         float64 `yaml:"GammaH"`
	Alpha          float64 `yaml:"Alpha"`
	EnableThetaReg bool    `yaml:"EnableThetaReg"`
	ThetaMax       float64 `yaml:"ThetaMax"`
	ThetaMin       float64 `yaml:"ThetaMin"`
}

// Parameters obtained from the YAML input file.
type Parameters struct {
	Title string `yaml:"Title"`

	// Mesh decomposition: number of subdomains along each dimension.
	Cx int `yaml:"Cx"`
	Cy int `yaml:"Cy"`
	Cz int `yaml:"Cz"`

	// Per-subdomain interior extents, halos excluded.
	Nx int `yaml:"Nx"`
	Ny int `yaml:"Ny"`
	Nz int `yaml:"Nz"`

	Dx float64 `yaml:"Dx"`
	Dy float64 `yaml:"Dy"`
	Dz float64 `yaml:"Dz"`
	Dt float64 `yaml:"Dt"`

	HaloWidth    int     `yaml:"HaloWidth"`
	CorrectorNit int     `yaml:"CorrectorNit"`
	SolverMode   string  `yaml:"SolverMode"`
	Periodic     [3]bool `yaml:"Periodic"`

	Rho float64 `yaml:"Rho"` // reference density, kg/m^3
	Nu  float64 `yaml:"Nu"`  // kinematic viscosity, m^2/s

	Scalars []ScalarSpec           `yaml:"Scalars"`
	BCs     map[string]FieldBCSpec `yaml:"BCs"`

	// EnableScalarRecorrection re-corrects primitive scalars against the
	// newest density inside each corrector iteration.
	EnableScalarRecorrection bool `yaml:"EnableScalarRecorrection"`

	// PressureIterations is the fixed Jacobi sweep count of the pressure
	// correction solve.
	PressureIterations int `yaml:"PressureIterations"`

	Thermodynamics ThermodynamicsSpec `yaml:"Thermodynamics"`
	MOST           *MOSTSpec          `yaml:"MOST"`

	NumSteps        int    `yaml:"NumSteps"`
	CheckpointEvery int    `yaml:"CheckpointEvery"`
	CheckpointDir   string `yaml:"CheckpointDir"`
	CheckpointName  string `yaml:"CheckpointName"`
}

func (p *Parameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, p); err != nil {
		return err
	}
	return p.Validate()
}

func (p *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", p.Title)
	fmt.Printf("[%d %d %d]\t\t= Decomposition\n", p.Cx, p.Cy, p.Cz)
	fmt.Printf("[%d %d %d]\t\t= Subdomain Extents\n", p.Nx, p.Ny, p.Nz)
	fmt.Printf("%8.5f\t\t= Dt\n", p.Dt)
	fmt.Printf("[%d]\t\t\t= Halo Width\n", p.HaloWidth)
	fmt.Printf("[%d]\t\t\t= Corrector Iterations\n", p.CorrectorNit)
	fmt.Printf("[%s]\t\t= Solver Mode\n", p.SolverMode)
	fmt.Printf("[%s]\t\t= Thermodynamics\n", p.Thermodynamics.Model)
	keys := make([]string, 0, len(p.BCs))
	for k := range p.BCs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, p.BCs[key])
	}
}

// Validate rejects configuration inconsistencies before any stepping starts.
func (p *Parameters) Validate() error {
	if p.Cx < 1 || p.Cy < 1 || p.Cz < 1 {
		return fmt.Errorf("decomposition must be at least 1 in every dimension, got (%d, %d, %d)",
			p.Cx, p.Cy, p.Cz)
	}
	if p.Nx < 1 || p.Ny < 1 || p.Nz < 1 {
		return fmt.Errorf("subdomain extents must be positive, got (%d, %d, %d)",
			p.Nx, p.Ny, p.Nz)
	}
	if p.Dx <= 0 || p.Dy <= 0 || p.Dz <= 0 {
		return fmt.Errorf("grid spacing must be positive, got (%g, %g, %g)",
			p.Dx, p.Dy, p.Dz)
	}
	if p.Dt <= 0 {
		return fmt.Errorf("time step must be positive, got %g", p.Dt)
	}
	if p.HaloWidth < 1 {
		return fmt.Errorf("halo width must be at least 1, got %d", p.HaloWidth)
	}
	if p.CorrectorNit < 1 {
		return fmt.Errorf("corrector iteration count must be at least 1, got %d",
			p.CorrectorNit)
	}
	if p.PressureIterations < 1 {
		return fmt.Errorf("pressure iteration count must be at least 1, got %d",
			p.PressureIterations)
	}
	if _, err := types.ParseSolverMode(p.SolverMode); err != nil {
		return err
	}
	seen := make(map[string]bool, len(p.Scalars))
	for _, sc := range p.Scalars {
		if sc.Name == "" {
			return fmt.Errorf("scalar with empty name")
		}
		if seen[sc.Name] {
			return fmt.Errorf("duplicate scalar %q", sc.Name)
		}
		seen[sc.Name] = true
	}
	for name, spec := range p.BCs {
		for dim := 0; dim < 3; dim++ {
			for face := 0; face < 2; face++ {
				if _, err := parseBCType(spec[dim][face].Type); err != nil {
					return fmt.Errorf("field %q dim %d face %d: %v", name, dim, face, err)
				}
			}
		}
	}
	if p.MOST != nil && p.MOST.Enabled {
		if p.MOST.Z0 <= 0 || p.MOST.ZM <= 0 {
			return fmt.Errorf("surface layer heights must be positive, got zm=%g z0=%g",
				p.MOST.ZM, p.MOST.Z0)
		}
	}
	return nil
}

// Mode returns the parsed solver mode.
func (p *Parameters) Mode() types.SolverMode {
	m, err := types.ParseSolverMode(p.SolverMode)
	if err != nil {
		panic(err)
	}
	return m
}

// ScalarNames lists the configured transported scalars in file order.
func (p *Parameters) ScalarNames() []string {
	names := make([]string, len(p.Scalars))
	for i, sc := range p.Scalars {
		names[i] = sc.Name
	}
	return names
}

// Diffusivity returns the molecular diffusivity of the named scalar.
func (p *Parameters) Diffusivity(name string) float64 {
	for _, sc := range p.Scalars {
		if sc.Name == name {
			return sc.Diffusivity
		}
	}
	return 0
}

// ThermoConfig assembles the density closure configuration.
func (p *Parameters) ThermoConfig() thermo.Config {
	densities := make(map[string]float64, len(p.Scalars))
	for _, sc := range p.Scalars {
		densities[sc.Name] = sc.Density
	}
	return thermo.Config{
		Model:            p.Thermodynamics.Model,
		Rho:              p.Rho,
		ScalarDensities:  densities,
		MolecularWeights: p.Thermodynamics.MolecularWeights,
		PRef:             p.Thermodynamics.PRef,
	}
}

func parseBCType(s string) (comm.BCType, error) {
	switch s {
	case "none", "":
		return comm.BCNone, nil
	case "dirichlet":
		return comm.BCDirichlet, nil
	case "neumann":
		return comm.BCNeumann, nil
	}
	return comm.BCNone, fmt.Errorf("unknown boundary condition type %q", s)
}

// FieldBC converts the configured spec of the named field into the form the
// halo exchange consumes. Fields without an entry default to homogeneous
// Neumann conditions on every physical face.
func (p *Parameters) FieldBC(name string) (*comm.FieldBC, error) {
	spec, ok := p.BCs[name]
	if !ok {
		return comm.HomogeneousNeumann(), nil
	}
	var bc comm.FieldBC
	for dim := 0; dim < 3; dim++ {
		for face := 0; face < 2; face++ {
			t, err := parseBCType(spec[dim][face].Type)
			if err != nil {
				return nil, err
			}
			bc[dim][face] = comm.FaceBC{Type: t, Value: spec[dim][face].Value}
		}
	}
	return &bc, nil
}
