package canvas

import (
	"errors"
	"fmt"

	"github.com/vk/nodegrid/internal/graph"
)

// State is the gesture the controller is currently tracking.
type State int

const (
	Idle State = iota
	PaletteDragging
	PortDragging
	NodeDragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PaletteDragging:
		return "palette_dragging"
	case PortDragging:
		return "port_dragging"
	case NodeDragging:
		return "node_dragging"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, PaletteDragging, PortDragging, NodeDragging} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown gesture state %q", b)
}

// MoveMode selects when a node drag writes positions to the graph store.
type MoveMode int

const (
	// MoveOnDrop keeps the dragged position in the controller and writes it
	// once on drop.
	MoveOnDrop MoveMode = iota
	// MoveContinuous writes positions while the pointer moves, throttled by
	// the controller's rate limiter.
	MoveContinuous
)

// ParseMoveMode maps a configuration keyword onto a MoveMode.
func ParseMoveMode(s string) (MoveMode, error) {
	switch s {
	case "", "drop":
		return MoveOnDrop, nil
	case "continuous":
		return MoveContinuous, nil
	default:
		return 0, fmt.Errorf("unknown node move mode %q: must be 'drop' or 'continuous'", s)
	}
}

// TargetKind classifies what lies under the pointer when it is released.
type TargetKind int

const (
	// TargetNone means the pointer left the canvas.
	TargetNone TargetKind = iota
	// TargetCanvas is empty canvas space or a node body.
	TargetCanvas
	// TargetPort is a port handle, identified by node id and port name.
	TargetPort
)

// Target is a drop location.
type Target struct {
	Kind   TargetKind
	Screen Point
	Node   string
	Port   string
}

// Nowhere is the target of a release outside the canvas.
func Nowhere() Target { return Target{Kind: TargetNone} }

// OnCanvas is a release over the canvas at screen point p.
func OnCanvas(p Point) Target { return Target{Kind: TargetCanvas, Screen: p} }

// OnPort is a release over the handle of port on node.
func OnPort(nodeID, port string, p Point) Target {
	return Target{Kind: TargetPort, Screen: p, Node: nodeID, Port: port}
}

// Outcome is how a gesture ended.
type Outcome string

const (
	Committed Outcome = "committed"
	Discarded Outcome = "discarded"
)

// Result reports the end of a gesture.
type Result struct {
	Gesture State
	Outcome Outcome
	// Reason explains a discard.
	Reason string
	// Node is the created or moved node.
	Node string
	// Edge is the created edge.
	Edge graph.Edge
	// Cause is the store rejection behind a discard, if any.
	Cause error
}

// ErrBusy is returned when a gesture starts while another is in progress.
var ErrBusy = errors.New("another gesture is in progress")

// ErrNotOutputPort is returned when a port drag starts on something other
// than an output port handle.
var ErrNotOutputPort = errors.New("port drags start on an output port")
