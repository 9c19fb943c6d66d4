// Package document converts a graph to and from its persisted form.
//
// A Document is a plain structure: node records carry id, type, position and
// payload, edge records carry the four endpoint fields. Ports are not stored;
// they are rebuilt from the registry on load, so a document written against
// one catalog picks up port label changes in the next. Edge ids are not
// stored either; the graph store assigns them.
package document

import (
	"fmt"

	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/node"
)

// FormatVersion is written into every document.
const FormatVersion = 1

// Document is the serialized form of a graph.
type Document struct {
	Version int          `json:"version" yaml:"version"`
	Nodes   []NodeRecord `json:"nodes" yaml:"nodes"`
	Edges   []EdgeRecord `json:"edges" yaml:"edges"`
}

// NodeRecord is one persisted node.
type NodeRecord struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Position node.Position  `json:"position" yaml:"position"`
	Payload  map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// EdgeRecord is one persisted edge.
type EdgeRecord struct {
	Source     string `json:"source" yaml:"source"`
	SourcePort string `json:"sourcePort" yaml:"sourcePort"`
	Target     string `json:"target" yaml:"target"`
	TargetPort string `json:"targetPort" yaml:"targetPort"`
}

// Schema is what Deserialize needs from the registry.
type Schema interface {
	Lookup(typeTag string) (kind.Definition, bool)
	CoercePayload(typeTag string, payload map[string]any) (map[string]any, error)
	ObserveID(id string)
}

// Serialize captures a graph snapshot. Payload maps are copied.
func Serialize(g graph.Graph) Document {
	doc := Document{
		Version: FormatVersion,
		Nodes:   make([]NodeRecord, 0, len(g.Nodes)),
		Edges:   make([]EdgeRecord, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		c := n.Clone()
		doc.Nodes = append(doc.Nodes, NodeRecord{
			ID:       c.ID,
			Type:     c.Type,
			Position: c.Position,
			Payload:  c.Payload,
		})
	}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, EdgeRecord{
			Source:     e.Source,
			SourcePort: e.SourcePort,
			Target:     e.Target,
			TargetPort: e.TargetPort,
		})
	}
	return doc
}

// Deserialize rebuilds a graph from doc. Every node's type must be known to
// schema and its payload must coerce into the kind's fields; fields missing
// from the record take the kind's defaults. Node ids are reported to
// schema.ObserveID so newly created nodes never collide with loaded ones.
//
// Edges are returned without ids and are not checked here: graph.Store.Load
// validates them against the rebuilt nodes.
func Deserialize(doc Document, schema Schema) (graph.Graph, error) {
	if doc.Version > FormatVersion {
		return graph.Graph{}, &VersionError{Version: doc.Version}
	}

	g := graph.Graph{
		Nodes: make([]node.Instance, 0, len(doc.Nodes)),
		Edges: make([]graph.Edge, 0, len(doc.Edges)),
	}
	for i, rec := range doc.Nodes {
		if rec.ID == "" {
			return graph.Graph{}, &RecordError{Index: i, Err: fmt.Errorf("node id is empty")}
		}
		def, ok := schema.Lookup(rec.Type)
		if !ok {
			return graph.Graph{}, &RecordError{Index: i, ID: rec.ID, Err: fmt.Errorf("unknown node type '%s'", rec.Type)}
		}

		raw := make(map[string]any, len(rec.Payload))
		for k, v := range rec.Payload {
			if v != nil {
				raw[k] = v
			}
		}
		coerced, err := schema.CoercePayload(rec.Type, raw)
		if err != nil {
			return graph.Graph{}, &RecordError{Index: i, ID: rec.ID, Err: err}
		}
		payload := def.DefaultPayload()
		for k, v := range coerced {
			payload[k] = v
		}

		g.Nodes = append(g.Nodes, node.New(rec.ID, def, rec.Position, payload))
	}
	for _, rec := range doc.Edges {
		g.Edges = append(g.Edges, graph.Edge{
			Source:     rec.Source,
			SourcePort: rec.SourcePort,
			Target:     rec.Target,
			TargetPort: rec.TargetPort,
		})
	}

	for _, n := range g.Nodes {
		schema.ObserveID(n.ID)
	}
	return g, nil
}
