// Package grid describes the logical decomposition of the global mesh into
// subdomain-owning replicas: which replica sits at which (i, j, k) grid
// coordinate, who its neighbors are, and how replicas group for reductions.
package grid

import (
	"fmt"
)

// Grid maps logical coordinates (i, j, k) on the computation decomposition
// (cx, cy, cz) to globally unique replica ids. The mapping is bijective onto
// 0..cx*cy*cz-1.
type Grid struct {
	Shape [3]int
	ids   []int // flattened [i][j][k], row-major over (cx, cy, cz)
}

// New builds the canonical grid where the replica id increases fastest
// along z, then y, then x.
func New(cx, cy, cz int) *Grid {
	if cx <= 0 || cy <= 0 || cz <= 0 {
		panic(fmt.Sprintf("invalid decomposition (%d, %d, %d)", cx, cy, cz))
	}
	g := &Grid{Shape: [3]int{cx, cy, cz}, ids: make([]int, cx*cy*cz)}
	for n := range g.ids {
		g.ids[n] = n
	}
	return g
}

// NewFromIDs builds a grid from an explicit coordinate-to-id assignment,
// validating that the assignment is a bijection.
func NewFromIDs(cx, cy, cz int, ids []int) (*Grid, error) {
	n := cx * cy * cz
	if len(ids) != n {
		return nil, fmt.Errorf("replica grid needs %d ids for shape (%d, %d, %d), got %d",
			n, cx, cy, cz, len(ids))
	}
	seen := make([]bool, n)
	for _, id := range ids {
		if id < 0 || id >= n {
			return nil, fmt.Errorf("replica id %d out of range [0, %d)", id, n)
		}
		if seen[id] {
			return nil, fmt.Errorf("replica id %d assigned to more than one coordinate", id)
		}
		seen[id] = true
	}
	g := &Grid{Shape: [3]int{cx, cy, cz}, ids: make([]int, n)}
	copy(g.ids, ids)
	return g, nil
}

func (g *Grid) NumReplicas() int {
	return len(g.ids)
}

func (g *Grid) flat(i, j, k int) int {
	return (i*g.Shape[1]+j)*g.Shape[2] + k
}

// At returns the replica id at coordinate (i, j, k).
func (g *Grid) At(i, j, k int) int {
	return g.ids[g.flat(i, j, k)]
}

// Coordinate returns the grid coordinate of the given replica id.
func (g *Grid) Coordinate(id int) (coord [3]int, err error) {
	for i := 0; i < g.Shape[0]; i++ {
		for j := 0; j < g.Shape[1]; j++ {
			for k := 0; k < g.Shape[2]; k++ {
				if g.ids[g.flat(i, j, k)] == id {
					return [3]int{i, j, k}, nil
				}
			}
		}
	}
	return coord, fmt.Errorf("replica id %d not present in grid", id)
}

// Neighbor returns the replica id adjacent to id in the given dimension and
// face (0 low, 1 high), wrapping when periodic. ok is false when the face
// is a physical domain edge.
func (g *Grid) Neighbor(id, dim, face int, periodic bool) (nbr int, ok bool) {
	coord, err := g.Coordinate(id)
	if err != nil {
		panic(err)
	}
	delta := -1
	if face == 1 {
		delta = 1
	}
	c := coord[dim] + delta
	n := g.Shape[dim]
	if c < 0 || c >= n {
		if !periodic {
			return 0, false
		}
		c = (c + n) % n
		if g.Shape[dim] == 1 {
			// A periodic singleton dimension exchanges with itself.
			c = coord[dim]
		}
	}
	coord[dim] = c
	return g.At(coord[0], coord[1], coord[2]), true
}

// Groups partitions replica ids into groups that share all non-axis
// coordinates, with ids inside each group ordered by their coordinate along
// the axis dimensions. axis nil (or all three dims) yields a single group
// holding every replica.
func (g *Grid) Groups(axis []int) [][]int {
	if axis == nil {
		all := make([]int, 0, g.NumReplicas())
		for i := 0; i < g.Shape[0]; i++ {
			for j := 0; j < g.Shape[1]; j++ {
				for k := 0; k < g.Shape[2]; k++ {
					all = append(all, g.At(i, j, k))
				}
			}
		}
		return [][]int{all}
	}
	inAxis := [3]bool{}
	for _, ax := range axis {
		if ax < 0 || ax > 2 {
			panic(fmt.Sprintf("axis out of range: %d", ax))
		}
		inAxis[ax] = true
	}
	// Iterate the non-axis coordinates in order; each combination is one
	// group, filled by sweeping the axis coordinates.
	outer := [3]int{1, 1, 1}
	inner := [3]int{1, 1, 1}
	for d := 0; d < 3; d++ {
		if inAxis[d] {
			inner[d] = g.Shape[d]
		} else {
			outer[d] = g.Shape[d]
		}
	}
	var groups [][]int
	for oi := 0; oi < outer[0]; oi++ {
		for oj := 0; oj < outer[1]; oj++ {
			for ok := 0; ok < outer[2]; ok++ {
				group := make([]int, 0, inner[0]*inner[1]*inner[2])
				for ii := 0; ii < inner[0]; ii++ {
					for ij := 0; ij < inner[1]; ij++ {
						for ik := 0; ik < inner[2]; ik++ {
							i, j, k := oi, oj, ok
							if inAxis[0] {
								i = ii
							}
							if inAxis[1] {
								j = ij
							}
							if inAxis[2] {
								k = ik
							}
							group = append(group, g.At(i, j, k))
						}
					}
				}
				groups = append(groups, group)
			}
		}
	}
	return groups
}

// GroupOf returns the group from Groups(axis) containing id.
func (g *Grid) GroupOf(id int, axis []int) []int {
	for _, group := range g.Groups(axis) {
		for _, member := range group {
			if member == id {
				return group
			}
		}
	}
	panic(fmt.Sprintf("replica id %d not present in grid", id))
}
