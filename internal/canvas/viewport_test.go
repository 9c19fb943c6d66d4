package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/nodegrid/internal/node"
)

func TestViewport_RoundTrip(t *testing.T) {
	v := Viewport{Origin: Point{X: 20, Y: 40}, Offset: Point{X: 5, Y: -5}, Zoom: 0.5}

	pos := v.ScreenToGraph(Point{X: 125, Y: 85})
	assert.Equal(t, node.Position{X: 200, Y: 100}, pos)
	assert.Equal(t, Point{X: 125, Y: 85}, v.GraphToScreen(pos))
}

func TestViewport_ZeroZoomActsAsOne(t *testing.T) {
	var v Viewport
	assert.Equal(t, node.Position{X: 3, Y: 4}, v.ScreenToGraph(Point{X: 3, Y: 4}))
}

func TestViewport_Pan(t *testing.T) {
	v := DefaultViewport().Pan(10, 20)
	assert.Equal(t, node.Position{X: -10, Y: -20}, v.ScreenToGraph(Point{}))
}

func TestViewport_ZoomAtKeepsAnchor(t *testing.T) {
	v := Viewport{Origin: Point{X: 10, Y: 10}, Zoom: 1}
	p := Point{X: 110, Y: 60}
	anchor := v.ScreenToGraph(p)

	zoomed := v.ZoomAt(p, 2)
	assert.Equal(t, 2.0, zoomed.Zoom)
	assert.InDelta(t, anchor.X, zoomed.ScreenToGraph(p).X, 1e-9)
	assert.InDelta(t, anchor.Y, zoomed.ScreenToGraph(p).Y, 1e-9)
}

func TestViewport_ZoomIsClamped(t *testing.T) {
	v := DefaultViewport()
	assert.Equal(t, MaxZoom, v.ZoomAt(Point{}, 100).Zoom)
	assert.Equal(t, MinZoom, v.ZoomAt(Point{}, 0.0001).Zoom)
}
