// Package types holds the shared flow-state containers passed between the
// step engine, the thermodynamic closures and the boundary models.
package types

import (
	"fmt"

	"github.com/structmesh/lowmach/field"
)

// Core prognostic variable names. Scalars configured for transport extend
// this set.
const (
	KeyRho = "rho"
	KeyU   = "u"
	KeyV   = "v"
	KeyW   = "w"
	KeyP   = "p"
)

// BCKeyPrefix marks state entries holding per-point boundary planes.
const BCKeyPrefix = "bc_"

// BCKey names the state entry holding the boundary condition plane of a
// variable at one domain face.
func BCKey(name string, dim, face int) string {
	return fmt.Sprintf("bc_%s_%d_%d", name, dim, face)
}

// IsBCKey reports whether a state entry carries a boundary plane.
func IsBCKey(name string) bool {
	return len(name) > len(BCKeyPrefix) && name[:len(BCKeyPrefix)] == BCKeyPrefix
}

// State is an ordered mapping from variable name to field. Every field in a
// State shares the same local tile shape, halos included; the invariant is
// enforced on insertion rather than by convention.
type State struct {
	names  []string
	fields map[string]*field.Field
}

func NewState() *State {
	return &State{fields: make(map[string]*field.Field)}
}

// Set inserts or replaces a field, preserving insertion order for new keys.
func (s *State) Set(name string, f *field.Field) error {
	if f == nil {
		return fmt.Errorf("nil field for state key %q", name)
	}
	for _, existing := range s.fields {
		if !existing.SameShape(f) {
			return fmt.Errorf("state field %q tile shape (%d, %d, %d) does not "+
				"match existing shape (%d, %d, %d)", name, f.Nx, f.Ny, f.Nz,
				existing.Nx, existing.Ny, existing.Nz)
		}
		break
	}
	if _, ok := s.fields[name]; !ok {
		s.names = append(s.names, name)
	}
	s.fields[name] = f
	return nil
}

// MustSet panics on shape mismatch; for construction sites where the shapes
// are known correct.
func (s *State) MustSet(name string, f *field.Field) {
	if err := s.Set(name, f); err != nil {
		panic(err)
	}
}

func (s *State) Get(name string) (*field.Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Require returns the named field or an error identifying the missing
// precondition.
func (s *State) Require(name string) (*field.Field, error) {
	f, ok := s.fields[name]
	if !ok {
		return nil, fmt.Errorf("state is missing required key %q", name)
	}
	return f, nil
}

func (s *State) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

func (s *State) Delete(name string) {
	if _, ok := s.fields[name]; !ok {
		return
	}
	delete(s.fields, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Keys returns the variable names in insertion order.
func (s *State) Keys() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *State) Len() int {
	return len(s.names)
}

// Clone returns a new State sharing the same field values. Fields are
// treated as immutable by every consumer (operations return new fields), so
// a key-level copy preserves value semantics between corrector iterations.
func (s *State) Clone() *State {
	o := NewState()
	for _, name := range s.names {
		o.MustSet(name, s.fields[name])
	}
	return o
}

// Merge copies every entry of other into s, overwriting existing keys.
func (s *State) Merge(other *State) error {
	if other == nil {
		return nil
	}
	for _, name := range other.names {
		if err := s.Set(name, other.fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// Range visits entries in insertion order.
func (s *State) Range(fn func(name string, f *field.Field) error) error {
	for _, name := range s.names {
		if err := fn(name, s.fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// TileShape returns the shared tile shape, or ok=false for an empty state.
func (s *State) TileShape() (nx, ny, nz int, ok bool) {
	if len(s.names) == 0 {
		return 0, 0, 0, false
	}
	f := s.fields[s.names[0]]
	return f.Nx, f.Ny, f.Nz, true
}

// UpdateFn is the signature of pre/post-processing hooks: given the current
// states, produce partial updates to merge back.
type UpdateFn func(states, additionalStates *State) (*State, error)
