/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/structmesh/lowmach/checkpoint"
	"github.com/structmesh/lowmach/comm"
	"github.com/structmesh/lowmach/field"
	"github.com/structmesh/lowmach/grid"
	"github.com/structmesh/lowmach/most"
	"github.com/structmesh/lowmach/params"
	"github.com/structmesh/lowmach/solver"
	"github.com/structmesh/lowmach/thermo"
	"github.com/structmesh/lowmach/types"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the flow solver from a YAML input file",
	Long:  `Run the flow solver from a YAML input file`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		icFile, err := cmd.Flags().GetString("inputFile")
		if err != nil {
			panic(err)
		}
		doProfile, _ := cmd.Flags().GetBool("profile")
		if doProfile {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		p := processInput(icFile)
		if err = RunSolver(p); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func processInput(icFile string) (p *params.Parameters) {
	var (
		err error
	)
	if len(icFile) == 0 {
		err := fmt.Errorf("must supply an input parameters file (-I, --inputFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Lid Driven Cavity"
Cx: 1
Cy: 1
Cz: 1
Nx: 32
Ny: 32
Nz: 32
Dx: 0.03125
Dy: 0.03125
Dz: 0.03125
Dt: 0.001
HaloWidth: 2
CorrectorNit: 3
SolverMode: LOW_MACH
Rho: 1.0
Nu: 0.001
NumSteps: 100
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = ioutil.ReadFile(icFile); err != nil {
		panic(err)
	}
	p = &params.Parameters{}
	if err = p.Parse(data); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
	p.Print()
	return
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputFile", "I", "", "YAML file for input parameters like:\n\t- grid decomposition\n\t- time step\n\t- transported scalars")
	RunCmd.Flags().Bool("profile", false, "write a CPU profile to the working directory")
}

// RunSolver launches one goroutine per replica and steps them all in
// lockstep for the configured number of steps.
func RunSolver(p *params.Parameters) error {
	model, err := thermo.NewModel(p.ThermoConfig())
	if err != nil {
		return err
	}
	g := grid.New(p.Cx, p.Cy, p.Cz)
	fab := comm.NewFabric(g)

	var store *checkpoint.Store
	if p.CheckpointEvery > 0 {
		store = checkpoint.NewStore(p.CheckpointDir, p.CheckpointName)
	}

	errs := make(chan error, g.NumReplicas())
	var wg sync.WaitGroup
	for id := 0; id < g.NumReplicas(); id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs <- runReplica(p, model, fab.Replica(id), store)
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func runReplica(p *params.Parameters, model thermo.Model,
	rep *comm.Replica, store *checkpoint.Store) error {
	sim, err := solver.NewSimulation(p, model)
	if err != nil {
		return err
	}
	states, additional := initialState(p, sim)

	if p.MOST != nil && p.MOST.Enabled {
		closure, err := most.NewClosure(p)
		if err != nil {
			return err
		}
		sim.Prestep = func(s, a *types.State) (*types.State, error) {
			return closure.MoengUpdateFn(rep, s, a)
		}
	}

	for step := 0; step < p.NumSteps; step++ {
		states, err = sim.Step(rep, step, states, additional)
		if err != nil {
			return fmt.Errorf("replica %d step %d: %w", rep.ID(), step, err)
		}
		if store != nil && (step+1)%p.CheckpointEvery == 0 {
			if err := store.WriteState(step+1, rep.ID(), states); err != nil {
				return err
			}
		}
	}
	return nil
}

// initialState builds a quiescent flow field: uniform density, zero
// velocity and pressure, scalars at their configured initial values. The
// additional states carry the surface boundary planes when the similarity
// closure is enabled.
func initialState(p *params.Parameters, sim *solver.Simulation) (states, additional *types.State) {
	nx, ny, nz := sim.TileShape()
	states = types.NewState()
	states.MustSet(types.KeyRho, field.NewUniform(nx, ny, nz, p.Rho))
	for _, key := range []string{types.KeyU, types.KeyV, types.KeyW, types.KeyP} {
		states.MustSet(key, field.NewField(nx, ny, nz))
	}
	for _, sc := range p.Scalars {
		states.MustSet(sc.Name, field.NewUniform(nx, ny, nz, sc.InitValue))
	}

	additional = types.NewState()
	if p.MOST != nil && p.MOST.Enabled {
		additional.MustSet(most.KeyTemperature, field.NewUniform(nx, ny, nz, p.MOST.T0))
		velKeys := [3]string{types.KeyU, types.KeyV, types.KeyW}
		for dim := 0; dim < 3; dim++ {
			if dim == p.MOST.VerticalDim {
				continue
			}
			key := most.BCKey(velKeys[dim], p.MOST.VerticalDim, 0)
			additional.MustSet(key, field.NewField(nx, ny, nz))
		}
	}
	return
}
