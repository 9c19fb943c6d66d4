package render

import (
	"context"
	"slices"
	"sync"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/node"
)

// Update is what the renderer redrew for one change.
type Update struct {
	Version      uint64     `json:"version"`
	Nodes        []NodeView `json:"nodes,omitempty"`
	RemovedNodes []string   `json:"removedNodes,omitempty"`
	Edges        []EdgeView `json:"edges,omitempty"`
	RemovedEdges []string   `json:"removedEdges,omitempty"`
}

// Frame is a consistent copy of the view cache at one store version.
type Frame struct {
	Version uint64     `json:"version"`
	Nodes   []NodeView `json:"nodes"`
	Edges   []EdgeView `json:"edges"`
}

// Renderer keeps a view cache in step with a graph store. Each change
// re-renders only the nodes and edges it names.
type Renderer struct {
	store  graph.Store
	schema graph.Schema

	mu        sync.RWMutex
	nodes     map[string]NodeView
	order     []string
	edges     map[string]EdgeView
	edgeOrder []string
	// version is the store version the cache reflects.
	version   uint64
	renders   int
	observers []observer
	nextObs   int

	cancel func()
}

// NewRenderer subscribes to the store's changes and renders its current
// graph. Changes already contained in that first snapshot are skipped.
func NewRenderer(store graph.Store, schema graph.Schema) *Renderer {
	r := &Renderer{
		store:  store,
		schema: schema,
		nodes:  make(map[string]NodeView),
		edges:  make(map[string]EdgeView),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = store.Subscribe(r.apply)

	g := store.Snapshot()
	r.version = g.Version
	for _, n := range g.Nodes {
		r.nodes[n.ID] = r.render(n)
		r.order = append(r.order, n.ID)
	}
	for _, e := range g.Edges {
		r.edges[e.ID] = EdgeOf(e)
		r.edgeOrder = append(r.edgeOrder, e.ID)
	}
	return r
}

// Close stops following the store.
func (r *Renderer) Close() {
	r.cancel()
}

type observer struct {
	id int
	fn func(context.Context, Update)
}

// Observe registers fn to receive every Update after it is applied. The
// returned func stops delivery.
func (r *Renderer) Observe(fn func(context.Context, Update)) (cancel func()) {
	return r.Attach(nil, fn)
}

// Attach is Observe with a starting point: snapshot receives the current
// Frame, and fn then receives exactly the updates that follow it. snapshot
// runs with the renderer locked and must not call back into it.
func (r *Renderer) Attach(snapshot func(Frame), fn func(context.Context, Update)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snapshot != nil {
		snapshot(r.frameLocked())
	}
	r.nextObs++
	id := r.nextObs
	r.observers = append(r.observers, observer{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.observers = slices.DeleteFunc(r.observers, func(o observer) bool { return o.id == id })
	}
}

// render resolves the node's kind and builds its view. Nodes whose kind is
// no longer registered still render from their own port snapshot.
func (r *Renderer) render(n node.Instance) NodeView {
	var def kind.Definition
	if r.schema != nil {
		def, _ = r.schema.Lookup(n.Type)
	}
	return Render(n, def)
}

func (r *Renderer) apply(ctx context.Context, c graph.Change) {
	r.mu.RLock()
	stale := c.Version <= r.version
	r.mu.RUnlock()
	if stale {
		return
	}
	u := Update{Version: c.Version}

	changed := slices.Concat(c.Nodes.Added, c.Nodes.Updated)
	views := make([]NodeView, 0, len(changed))
	for _, id := range changed {
		if n, ok := r.store.Node(id); ok {
			views = append(views, r.render(n))
		}
	}
	var edges []EdgeView
	for _, id := range c.Edges.Added {
		if e, ok := r.store.Edge(id); ok {
			edges = append(edges, EdgeOf(e))
		}
	}

	r.mu.Lock()
	for _, id := range c.Nodes.Removed {
		delete(r.nodes, id)
		r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	}
	for _, v := range views {
		if _, known := r.nodes[v.ID]; !known {
			r.order = append(r.order, v.ID)
		}
		r.nodes[v.ID] = v
		r.renders++
	}
	for _, id := range c.Edges.Removed {
		delete(r.edges, id)
		r.edgeOrder = slices.DeleteFunc(r.edgeOrder, func(s string) bool { return s == id })
	}
	for _, e := range edges {
		r.edges[e.ID] = e
		r.edgeOrder = append(r.edgeOrder, e.ID)
	}
	r.version = max(r.version, c.Version)
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	u.Nodes = views
	u.RemovedNodes = c.Nodes.Removed
	u.Edges = edges
	u.RemovedEdges = c.Edges.Removed

	ctxlog.FromContext(ctx).Debug("Views updated.", "version", c.Version, "nodes", len(views), "edges", len(edges))
	for _, o := range observers {
		o.fn(ctx, u)
	}
}

// Frame returns the node and edge views together with the store version
// they reflect.
func (r *Renderer) Frame() Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frameLocked()
}

func (r *Renderer) frameLocked() Frame {
	return Frame{Version: r.version, Nodes: r.viewsLocked(), Edges: r.edgesLocked()}
}

// Views returns the cached node views in graph order.
func (r *Renderer) Views() []NodeView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewsLocked()
}

func (r *Renderer) viewsLocked() []NodeView {
	out := make([]NodeView, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.nodes[id])
	}
	return out
}

// View returns the cached view of one node.
func (r *Renderer) View(id string) (NodeView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.nodes[id]
	return v, ok
}

// Edges returns the cached edge views in graph order.
func (r *Renderer) Edges() []EdgeView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edgesLocked()
}

func (r *Renderer) edgesLocked() []EdgeView {
	out := make([]EdgeView, 0, len(r.edgeOrder))
	for _, id := range r.edgeOrder {
		out = append(out, r.edges[id])
	}
	return out
}

// RenderCount is the number of node renders done since creation, not
// counting the initial full render.
func (r *Renderer) RenderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.renders
}

// Edit forwards a body-control edit to the store. The view refreshes when
// the store announces the change.
func (r *Renderer) Edit(ctx context.Context, nodeID, field string, raw any) error {
	return r.store.UpdateNodePayload(ctx, nodeID, field, raw)
}
