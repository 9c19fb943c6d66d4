package canvas

import (
	"math"

	"github.com/vk/nodegrid/internal/node"
)

const (
	MinZoom = 0.1
	MaxZoom = 4.0
)

// Point is a pointer location in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport maps screen coordinates onto graph coordinates.
//
//	screen = Origin + Offset + graph*Zoom
type Viewport struct {
	// Origin is the screen position of the canvas element's top-left corner.
	Origin Point `json:"origin"`
	// Offset is the pan applied inside the canvas, in screen pixels.
	Offset Point   `json:"offset"`
	Zoom   float64 `json:"zoom"`
}

// DefaultViewport is an unpanned, unzoomed viewport at the screen origin.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1}
}

func (v Viewport) zoom() float64 {
	if v.Zoom <= 0 {
		return 1
	}
	return v.Zoom
}

// Finite reports whether every component of the viewport is a real number.
func (v Viewport) Finite() bool {
	for _, f := range []float64{v.Origin.X, v.Origin.Y, v.Offset.X, v.Offset.Y, v.Zoom} {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return false
		}
	}
	return true
}

// ScreenToGraph converts a screen point into graph space.
func (v Viewport) ScreenToGraph(p Point) node.Position {
	z := v.zoom()
	return node.Position{
		X: (p.X - v.Origin.X - v.Offset.X) / z,
		Y: (p.Y - v.Origin.Y - v.Offset.Y) / z,
	}
}

// GraphToScreen converts a graph position into screen space.
func (v Viewport) GraphToScreen(pos node.Position) Point {
	z := v.zoom()
	return Point{
		X: v.Origin.X + v.Offset.X + pos.X*z,
		Y: v.Origin.Y + v.Offset.Y + pos.Y*z,
	}
}

// Pan shifts the view by a screen-space delta. A pan that would leave the
// representable range returns v unchanged.
func (v Viewport) Pan(dx, dy float64) Viewport {
	next := v
	next.Offset.X += dx
	next.Offset.Y += dy
	if !next.Finite() {
		return v
	}
	return next
}

// ZoomAt scales the view by factor while keeping the graph point under the
// screen point p fixed. The resulting zoom is clamped to [MinZoom, MaxZoom].
// Like Pan, it returns v unchanged rather than a non-finite viewport.
func (v Viewport) ZoomAt(p Point, factor float64) Viewport {
	anchor := v.ScreenToGraph(p)
	next := v
	next.Zoom = min(max(v.zoom()*factor, MinZoom), MaxZoom)
	next.Offset.X = p.X - v.Origin.X - anchor.X*next.Zoom
	next.Offset.Y = p.Y - v.Origin.Y - anchor.Y*next.Zoom
	if !next.Finite() {
		return v
	}
	return next
}
