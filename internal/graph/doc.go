// Package graph is the single authoritative owner of the nodes and edges of
// one editing session.
//
// # Why Graph Package Exists
//
// The canvas controller, the renderer, the executor and the transport layer
// all look at the same graph. None of them keep their own copy: they read
// through Snapshot and write through the mutation methods of Store. This
// keeps the two graph invariants in one place:
//   - **Edge endpoints:** every edge joins an existing output port of an
//     existing node to an existing input port of an existing node.
//   - **Node ids:** unique across the live graph at all times.
//
// # Change Notification
//
// Every accepted mutation bumps the store's Version and is announced to
// subscribers as a Change naming only the node and edge ids it touched, so
// that a renderer can redraw incrementally. Rejected mutations leave the
// store untouched: no version bump, no notification.
//
// Mutations are serialised. Subscribers run synchronously, in subscription
// order, after the mutation has been applied and before the next mutation
// starts, so a subscriber always observes a state no older than the change
// it is handling. Subscribers may read from the store but must not mutate
// it.
//
// # Policy
//
// Whether self-loops and duplicate edges are accepted is a Policy decision
// made when the store is created. The default rejects self-loops and
// accepts duplicates.
package graph
