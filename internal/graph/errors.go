package graph

import (
	"errors"
	"fmt"

	"github.com/vk/nodegrid/internal/node"
)

var (
	ErrInvalidEndpoint = errors.New("invalid edge endpoint")
	ErrSelfLoop        = errors.New("self-loop not allowed")
	ErrDuplicateEdge   = errors.New("duplicate edge")
	ErrDuplicateNode   = errors.New("duplicate node id")
	ErrNotFound        = errors.New("not found")
	ErrUnknownField    = errors.New("unknown payload field")
	ErrInvalidPosition = errors.New("invalid node position")
)

// InvalidPositionError is returned when a node would be placed at a
// non-finite coordinate.
type InvalidPositionError struct {
	Node     string
	Position node.Position
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("node '%s': position (%g, %g) is not finite", e.Node, e.Position.X, e.Position.Y)
}

func (e *InvalidPositionError) Is(target error) bool { return target == ErrInvalidPosition }

// InvalidEndpointError is returned when an edge names a node that is not in
// the graph, or a port the node does not have on the required side.
type InvalidEndpointError struct {
	Edge Edge
	// Side is "source" or "target".
	Side   string
	Reason string
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("edge %s: invalid %s endpoint: %s", e.Edge, e.Side, e.Reason)
}

func (e *InvalidEndpointError) Is(target error) bool { return target == ErrInvalidEndpoint }

// SelfLoopError is returned when an edge joins a node to itself and the
// policy disallows it.
type SelfLoopError struct {
	Node string
}

func (e *SelfLoopError) Error() string {
	return fmt.Sprintf("edge from node '%s' to itself is not allowed", e.Node)
}

func (e *SelfLoopError) Is(target error) bool { return target == ErrSelfLoop }

// DuplicateEdgeError is returned when the policy rejects a second edge
// between the same two ports.
type DuplicateEdgeError struct {
	Edge     Edge
	Existing string
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("edge %s duplicates existing edge '%s'", e.Edge, e.Existing)
}

func (e *DuplicateEdgeError) Is(target error) bool { return target == ErrDuplicateEdge }

// DuplicateNodeError is returned when a node id is already in use.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node '%s' already exists", e.ID)
}

func (e *DuplicateNodeError) Is(target error) bool { return target == ErrDuplicateNode }

// NodeNotFoundError is returned when a mutation names a missing node.
type NodeNotFoundError struct {
	ID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node '%s' not found", e.ID)
}

func (e *NodeNotFoundError) Is(target error) bool { return target == ErrNotFound }

// EdgeNotFoundError is returned when an edge removal matches nothing.
type EdgeNotFoundError struct {
	ID   string
	Edge Edge
}

func (e *EdgeNotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("edge '%s' not found", e.ID)
	}
	return fmt.Sprintf("edge %s not found", e.Edge)
}

func (e *EdgeNotFoundError) Is(target error) bool { return target == ErrNotFound }

// FieldError is returned when a payload update is rejected.
type FieldError struct {
	Node  string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("node '%s', field '%s': %v", e.Node, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// IsRejectedEdge reports whether err is one of the edge rejections that an
// ordinary user miss-drop can produce.
func IsRejectedEdge(err error) bool {
	return errors.Is(err, ErrInvalidEndpoint) || errors.Is(err, ErrSelfLoop) || errors.Is(err, ErrDuplicateEdge)
}

// IsNotFound reports whether err names a node or edge that does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
