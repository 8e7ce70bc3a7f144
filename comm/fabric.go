// Package comm provides the replica fabric: point-to-point halo exchange
// between logically-neighboring subdomains and all-to-all reductions across
// replica groups. Replicas run the identical step program in lockstep; the
// only cross-replica communication is through this package.
package comm

import (
	"fmt"

	"github.com/structmesh/lowmach/grid"
)

// message is one tagged payload between replicas. seq counts communication
// rounds per sender so that a fast neighbor running ahead cannot be confused
// with the current round.
type message struct {
	seq    uint64
	sender int
	tag    int
	data   []float64
}

// Fabric owns one inbox per replica. Inboxes are buffered generously enough
// that no sender ever blocks: lockstep execution bounds how far ahead any
// replica can run before it must wait on a receive of its own.
type Fabric struct {
	grid  *grid.Grid
	inbox []chan message
}

func NewFabric(g *grid.Grid) (fab *Fabric) {
	n := g.NumReplicas()
	fab = &Fabric{
		grid:  g,
		inbox: make([]chan message, n),
	}
	for i := range fab.inbox {
		fab.inbox[i] = make(chan message, 4*n+8)
	}
	return
}

// Replica returns the communication handle for one replica. Each handle is
// owned by exactly one goroutine.
func (fab *Fabric) Replica(id int) *Replica {
	coord, err := fab.grid.Coordinate(id)
	if err != nil {
		panic(err)
	}
	return &Replica{fab: fab, id: id, coord: coord}
}

type Replica struct {
	fab     *Fabric
	id      int
	coord   [3]int
	seq     uint64
	pending []message
}

func (r *Replica) ID() int {
	return r.id
}

func (r *Replica) Coordinate() [3]int {
	return r.coord
}

func (r *Replica) Grid() *grid.Grid {
	return r.fab.grid
}

func (r *Replica) send(to int, tag int, data []float64) {
	r.fab.inbox[to] <- message{seq: r.seq, sender: r.id, tag: tag, data: data}
}

// recv blocks until the message with the given round, sender and tag
// arrives. Messages for other rounds or tags are parked so that out-of-order
// delivery from independent neighbors cannot drop data.
func (r *Replica) recv(seq uint64, sender, tag int) message {
	for i, m := range r.pending {
		if m.seq == seq && m.sender == sender && m.tag == tag {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return m
		}
	}
	for {
		m := <-r.fab.inbox[r.id]
		if m.seq == seq && m.sender == sender && m.tag == tag {
			return m
		}
		r.pending = append(r.pending, m)
	}
}

// Barrier completes only when every replica has reached it.
func (r *Replica) Barrier() {
	group := r.fab.grid.Groups(nil)[0]
	r.allGather(group, nil)
}

// allGather distributes local to every member of group and returns each
// member's contribution ordered by its rank within the group. Every replica
// observes the identical ordered result, which keeps any combination of the
// parts bit-identical across the group.
func (r *Replica) allGather(group []int, local []float64) [][]float64 {
	r.seq++
	rank := -1
	for i, id := range group {
		if id == r.id {
			rank = i
		}
	}
	if rank < 0 {
		panic(fmt.Sprintf("replica %d is not a member of group %v", r.id, group))
	}
	for _, id := range group {
		if id != r.id {
			r.send(id, tagGather, local)
		}
	}
	out := make([][]float64, len(group))
	out[rank] = local
	for i, id := range group {
		if id == r.id {
			continue
		}
		out[i] = r.recv(r.seq, id, tagGather).data
	}
	return out
}

const (
	tagGather = -1
	// Halo messages are tagged dim*2 + destination face.
)
