package main

import "github.com/structmesh/lowmach/cmd"

func main() {
	cmd.Execute()
}
