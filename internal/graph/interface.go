package graph

import (
	"context"

	"github.com/vk/nodegrid/internal/node"
)

// Store is the interface through which the editor reads and mutates a graph.
//
// Implementations MUST be safe for concurrent use: the websocket reader of a
// session, its REST handlers and the catalog watcher may all touch the same
// store.
type Store interface {
	// AddNode inserts a node instance. It fails with *DuplicateNodeError if
	// the id is already taken.
	AddNode(ctx context.Context, n node.Instance) error

	// MoveNode sets the graph-space position of a node.
	MoveNode(ctx context.Context, id string, pos node.Position) error

	// UpdateNodePayload sets one payload field of a node. The value is
	// coerced into the field's declared type when the store knows the
	// node's kind.
	UpdateNodePayload(ctx context.Context, id, field string, value any) error

	// PatchNodePayload applies several field updates as one mutation. Either
	// every field is applied or none is.
	PatchNodePayload(ctx context.Context, id string, partial map[string]any) error

	// RemoveNode deletes a node and every edge that references it as source
	// or target.
	RemoveNode(ctx context.Context, id string) error

	// AddEdge validates and records an edge, returning it with its assigned id.
	AddEdge(ctx context.Context, e Edge) (Edge, error)

	// RemoveEdge deletes every edge with the same four endpoints as e and
	// returns how many were removed.
	RemoveEdge(ctx context.Context, e Edge) (int, error)

	// RemoveEdgeByID deletes a single edge.
	RemoveEdgeByID(ctx context.Context, id string) error

	// Load atomically replaces the whole graph. Edge ids are reassigned.
	Load(ctx context.Context, g Graph) error

	// Snapshot returns a deep copy of the current graph.
	Snapshot() Graph

	// Node returns a copy of one node.
	Node(id string) (node.Instance, bool)

	// Edge returns one edge by id.
	Edge(id string) (Edge, bool)

	// Version returns the number of mutations applied so far.
	Version() uint64

	// Subscribe registers a listener for changes and returns a function that
	// removes it.
	Subscribe(l Listener) (cancel func())
}
