// Package node defines the runtime node instance placed on the constructor
// canvas.
package node

import (
	"maps"
	"math"

	"github.com/vk/nodegrid/internal/kind"
)

// Position is a point in graph coordinate space.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

// Finite reports whether both coordinates are real numbers.
func (p Position) Finite() bool {
	return !math.IsInf(p.X, 0) && !math.IsNaN(p.X) && !math.IsInf(p.Y, 0) && !math.IsNaN(p.Y)
}

// Instance is a placed, mutable occurrence of a node kind.
type Instance struct {
	// ID is unique across the live graph.
	ID string `json:"id"`
	// Type references the kind.Definition the instance was created from.
	Type     string         `json:"type"`
	Position Position       `json:"position"`
	Payload  map[string]any `json:"payload"`
	// Inputs and Outputs are snapshots of the kind's ports taken at creation.
	Inputs  []kind.Port `json:"inputs"`
	Outputs []kind.Port `json:"outputs"`
}

// New builds an instance of def. The payload map is taken as is.
func New(id string, def kind.Definition, pos Position, payload map[string]any) Instance {
	if payload == nil {
		payload = map[string]any{}
	}
	return Instance{
		ID:       id,
		Type:     def.Type,
		Position: pos,
		Payload:  payload,
		Inputs:   kind.ClonePorts(def.Inputs),
		Outputs:  kind.ClonePorts(def.Outputs),
	}
}

// Clone returns a deep copy of the instance.
func (n Instance) Clone() Instance {
	c := n
	c.Payload = maps.Clone(n.Payload)
	if c.Payload == nil {
		c.Payload = map[string]any{}
	}
	c.Inputs = kind.ClonePorts(n.Inputs)
	c.Outputs = kind.ClonePorts(n.Outputs)
	return c
}

// Input looks up one of the instance's input ports.
func (n Instance) Input(name string) (kind.Port, bool) {
	for _, p := range n.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return kind.Port{}, false
}

// Output looks up one of the instance's output ports.
func (n Instance) Output(name string) (kind.Port, bool) {
	for _, p := range n.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return kind.Port{}, false
}
