package graph

import (
	"context"
	"fmt"

	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/node"
)

// Edge connects one node's output port to another node's input port.
type Edge struct {
	// ID is assigned by the store when the edge is added.
	ID         string `json:"id,omitempty"`
	Source     string `json:"source" binding:"required"`
	SourcePort string `json:"sourcePort" binding:"required"`
	Target     string `json:"target" binding:"required"`
	TargetPort string `json:"targetPort" binding:"required"`
}

// SameEndpoints reports whether two edges join the same pair of ports.
func (e Edge) SameEndpoints(o Edge) bool {
	return e.Source == o.Source && e.SourcePort == o.SourcePort &&
		e.Target == o.Target && e.TargetPort == o.TargetPort
}

// Touches reports whether the edge references node id on either side.
func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

func (e Edge) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.Source, e.SourcePort, e.Target, e.TargetPort)
}

// Graph is a read-only view of the store at one version.
type Graph struct {
	Nodes   []node.Instance `json:"nodes"`
	Edges   []Edge          `json:"edges"`
	Version uint64          `json:"version"`
}

// Node finds a node by id.
func (g Graph) Node(id string) (node.Instance, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return node.Instance{}, false
}

// EdgesFrom returns the edges leaving an output port, in insertion order.
func (g Graph) EdgesFrom(id, port string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id && e.SourcePort == port {
			out = append(out, e)
		}
	}
	return out
}

// EdgesInto returns the edges arriving at an input port, in insertion order.
func (g Graph) EdgesInto(id, port string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Target == id && e.TargetPort == port {
			out = append(out, e)
		}
	}
	return out
}

// ChangeSet lists the ids touched by a mutation, grouped by effect.
type ChangeSet struct {
	Added   []string `json:"added,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether nothing was touched.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Op names the mutation that produced a Change.
type Op string

const (
	OpAddNode    Op = "add_node"
	OpMoveNode   Op = "move_node"
	OpUpdateNode Op = "update_node"
	OpRemoveNode Op = "remove_node"
	OpAddEdge    Op = "add_edge"
	OpRemoveEdge Op = "remove_edge"
	OpLoad       Op = "load"
)

// Change describes the minimal region affected by one mutation.
type Change struct {
	Version uint64    `json:"version"`
	Op      Op        `json:"op"`
	Nodes   ChangeSet `json:"nodes"`
	Edges   ChangeSet `json:"edges"`
}

// Listener receives changes. It runs synchronously inside the mutation
// that produced the change.
type Listener func(ctx context.Context, c Change)

// Policy controls which edges the store accepts.
type Policy struct {
	AllowSelfLoops       bool
	RejectDuplicateEdges bool
}

// Schema resolves node kinds so that payload updates can be type checked.
// *registry.Registry satisfies it.
type Schema interface {
	Lookup(typeTag string) (kind.Definition, bool)
}
