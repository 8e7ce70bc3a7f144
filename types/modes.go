package types

import "fmt"

// SolverMode selects the density treatment of the step engine.
type SolverMode int

const (
	// LowMach evolves a thermodynamic density with a time derivative term.
	LowMach SolverMode = iota
	// Anelastic freezes the reference density; scalar correction after the
	// density update is skipped.
	Anelastic
)

func (m SolverMode) String() string {
	switch m {
	case LowMach:
		return "LOW_MACH"
	case Anelastic:
		return "ANELASTIC"
	}
	return fmt.Sprintf("SolverMode(%d)", int(m))
}

// ParseSolverMode maps a configuration string onto a SolverMode.
func ParseSolverMode(s string) (SolverMode, error) {
	switch s {
	case "LOW_MACH", "low_mach", "":
		return LowMach, nil
	case "ANELASTIC", "anelastic":
		return Anelastic, nil
	}
	return LowMach, fmt.Errorf("unknown solver mode %q", s)
}
