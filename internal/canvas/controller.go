// Package canvas translates pointer gestures into graph store mutations.
//
// A Controller tracks one gesture at a time: a palette drag that creates a
// node, a port drag that connects two ports, or a node drag that moves a
// node. Every gesture can be abandoned. Releasing the pointer over no valid
// target, or calling Cancel, returns the controller to Idle without
// changing the nodes or edges of the graph.
package canvas

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/node"
)

// Creator instantiates nodes. *registry.Registry satisfies it.
type Creator interface {
	Create(typeTag string, override map[string]any, pos node.Position) (node.Instance, error)
}

// Preview describes the in-progress gesture for drawing drag feedback.
type Preview struct {
	State State `json:"state"`
	// Type is the type tag carried by a palette drag.
	Type string `json:"type,omitempty"`
	// Node and Port identify the dragged node or the source port.
	Node string `json:"node,omitempty"`
	Port string `json:"port,omitempty"`
	// Position is where a dragged node would land.
	Position node.Position `json:"position"`
	// Pointer is the last pointer location.
	Pointer Point `json:"pointer"`
}

// Controller is the canvas interaction state machine of one editor session.
type Controller struct {
	store   graph.Store
	creator Creator

	mode    MoveMode
	limiter *rate.Limiter

	mu       sync.Mutex
	viewport Viewport
	state    State
	typeTag  string
	nodeID   string
	port     string
	start    Point
	pointer  Point
	origin   node.Position
	preview  node.Position
	moved    bool
}

// Option customises a Controller.
type Option func(*Controller)

// WithMoveMode selects how node drags reach the store.
func WithMoveMode(m MoveMode) Option {
	return func(c *Controller) { c.mode = m }
}

// WithMoveRate caps continuous node-move writes per second.
func WithMoveRate(limit rate.Limit, burst int) Option {
	return func(c *Controller) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithViewport sets the initial viewport.
func WithViewport(v Viewport) Option {
	return func(c *Controller) { c.viewport = v }
}

// New creates an idle controller over store.
func New(store graph.Store, creator Creator, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		creator:  creator,
		viewport: DefaultViewport(),
		limiter:  rate.NewLimiter(rate.Limit(30), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current gesture state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Viewport returns the current viewport.
func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// SetViewport replaces the viewport, e.g. after the canvas element resized.
// A non-finite viewport is ignored.
func (c *Controller) SetViewport(v Viewport) {
	if !v.Finite() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
}

// Pan shifts the viewport by a screen-space delta.
func (c *Controller) Pan(dx, dy float64) Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = c.viewport.Pan(dx, dy)
	return c.viewport
}

// ZoomAt zooms the viewport around a screen point.
func (c *Controller) ZoomAt(p Point, factor float64) Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = c.viewport.ZoomAt(p, factor)
	return c.viewport
}

// Preview returns the in-progress gesture, or false when idle.
func (c *Controller) Preview() (Preview, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return Preview{}, false
	}
	return Preview{
		State:    c.state,
		Type:     c.typeTag,
		Node:     c.nodeID,
		Port:     c.port,
		Position: c.preview,
		Pointer:  c.pointer,
	}, true
}

// BeginPaletteDrag starts dragging a palette entry carrying typeTag.
func (c *Controller) BeginPaletteDrag(ctx context.Context, typeTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("palette drag of '%s': %w (%s)", typeTag, ErrBusy, c.state)
	}
	c.state = PaletteDragging
	c.typeTag = typeTag
	ctxlog.FromContext(ctx).Debug("Gesture started.", "gesture", c.state.String(), "type", typeTag)
	return nil
}

// BeginPortDrag starts dragging from an output port handle.
func (c *Controller) BeginPortDrag(ctx context.Context, nodeID, port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("port drag from '%s.%s': %w (%s)", nodeID, port, ErrBusy, c.state)
	}
	n, ok := c.store.Node(nodeID)
	if !ok {
		return &graph.NodeNotFoundError{ID: nodeID}
	}
	if _, ok := n.Output(port); !ok {
		return fmt.Errorf("port drag from '%s.%s': %w", nodeID, port, ErrNotOutputPort)
	}
	c.state = PortDragging
	c.nodeID = nodeID
	c.port = port
	ctxlog.FromContext(ctx).Debug("Gesture started.", "gesture", c.state.String(), "node", nodeID, "port", port)
	return nil
}

// BeginNodeDrag starts dragging a node body grabbed at screen point at.
func (c *Controller) BeginNodeDrag(ctx context.Context, nodeID string, at Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("node drag of '%s': %w (%s)", nodeID, ErrBusy, c.state)
	}
	n, ok := c.store.Node(nodeID)
	if !ok {
		return &graph.NodeNotFoundError{ID: nodeID}
	}
	c.state = NodeDragging
	c.nodeID = nodeID
	c.start = at
	c.pointer = at
	c.origin = n.Position
	c.preview = n.Position
	c.moved = false
	ctxlog.FromContext(ctx).Debug("Gesture started.", "gesture", c.state.String(), "node", nodeID)
	return nil
}

// Move reports a pointer move. During a node drag in continuous mode the
// new position is written to the store when the rate limiter allows it.
func (c *Controller) Move(ctx context.Context, at Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointer = at
	if c.state != NodeDragging {
		return nil
	}
	pos := c.dragPosition(at)
	if !pos.Finite() {
		return nil
	}
	c.preview = pos
	if c.mode != MoveContinuous || !c.limiter.Allow() {
		return nil
	}
	if err := c.store.MoveNode(ctx, c.nodeID, c.preview); err != nil {
		return err
	}
	c.moved = true
	return nil
}

// dragPosition converts a pointer location into the dragged node's position.
func (c *Controller) dragPosition(at Point) node.Position {
	z := c.viewport.zoom()
	return c.origin.Add(node.Position{X: (at.X - c.start.X) / z, Y: (at.Y - c.start.Y) / z})
}

const reasonOutOfRange = "position out of range"

// Drop ends the current gesture over target. User miss-drops are reported
// as Discarded results, not errors. An error means a programmer or storage
// failure; the controller is back to Idle either way.
func (c *Controller) Drop(ctx context.Context, target Target) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.resetLocked()

	logger := ctxlog.FromContext(ctx)
	gesture := c.state
	if target.Kind == TargetNone {
		res, err := c.abortLocked(ctx, "released outside the canvas")
		logger.Debug("Gesture discarded.", "gesture", gesture.String(), "reason", res.Reason)
		return res, err
	}

	switch gesture {
	case PaletteDragging:
		pos := c.viewport.ScreenToGraph(target.Screen)
		if !pos.Finite() {
			logger.Debug("Gesture discarded.", "gesture", gesture.String(), "reason", reasonOutOfRange)
			return Result{Gesture: gesture, Outcome: Discarded, Reason: reasonOutOfRange}, nil
		}
		n, err := c.creator.Create(c.typeTag, nil, pos)
		if err != nil {
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "cannot create node", Cause: err}, err
		}
		if err := c.store.AddNode(ctx, n); err != nil {
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "cannot add node", Cause: err}, err
		}
		logger.Debug("Gesture committed.", "gesture", gesture.String(), "node", n.ID)
		return Result{Gesture: gesture, Outcome: Committed, Node: n.ID}, nil

	case PortDragging:
		if target.Kind != TargetPort {
			logger.Debug("Gesture discarded.", "gesture", gesture.String(), "reason", "no port under pointer")
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "no port under pointer"}, nil
		}
		e, err := c.store.AddEdge(ctx, graph.Edge{
			Source: c.nodeID, SourcePort: c.port,
			Target: target.Node, TargetPort: target.Port,
		})
		if graph.IsRejectedEdge(err) {
			logger.Warn("Connection discarded.", "from", c.nodeID+"."+c.port, "to", target.Node+"."+target.Port, "error", err)
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "edge rejected", Cause: err}, nil
		}
		if err != nil {
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "edge failed", Cause: err}, err
		}
		logger.Debug("Gesture committed.", "gesture", gesture.String(), "edge", e.ID)
		return Result{Gesture: gesture, Outcome: Committed, Edge: e}, nil

	case NodeDragging:
		pos := c.dragPosition(target.Screen)
		if !pos.Finite() {
			res, err := c.abortLocked(ctx, reasonOutOfRange)
			logger.Debug("Gesture discarded.", "gesture", gesture.String(), "reason", res.Reason)
			return res, err
		}
		err := c.store.MoveNode(ctx, c.nodeID, pos)
		if graph.IsNotFound(err) {
			logger.Warn("Node drag discarded.", "node", c.nodeID, "error", err)
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "node no longer exists", Cause: err}, nil
		}
		if err != nil {
			return Result{Gesture: gesture, Outcome: Discarded, Reason: "move failed", Cause: err}, err
		}
		logger.Debug("Gesture committed.", "gesture", gesture.String(), "node", c.nodeID, "x", pos.X, "y", pos.Y)
		return Result{Gesture: gesture, Outcome: Committed, Node: c.nodeID}, nil

	default:
		return Result{Gesture: Idle, Outcome: Discarded, Reason: "no gesture in progress"}, nil
	}
}

// Cancel abandons the current gesture, e.g. on Escape.
func (c *Controller) Cancel(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.resetLocked()
	res, err := c.abortLocked(ctx, "cancelled")
	ctxlog.FromContext(ctx).Debug("Gesture cancelled.", "gesture", res.Gesture.String())
	return res, err
}

// abortLocked ends the gesture without a graph change. A node already moved
// by continuous dragging is put back where it started.
func (c *Controller) abortLocked(ctx context.Context, reason string) (Result, error) {
	res := Result{Gesture: c.state, Outcome: Discarded, Reason: reason}
	if c.state == NodeDragging && c.moved {
		res.Node = c.nodeID
		if err := c.store.MoveNode(ctx, c.nodeID, c.origin); err != nil && !graph.IsNotFound(err) {
			return res, err
		}
	}
	return res, nil
}

func (c *Controller) resetLocked() {
	c.state = Idle
	c.typeTag = ""
	c.nodeID = ""
	c.port = ""
	c.moved = false
}
