package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/node"
)

// Manager is the in-memory implementation of Store.
type Manager struct {
	policy Policy
	schema Schema

	// writeMu serialises mutations together with their notifications.
	writeMu sync.Mutex

	mu       sync.RWMutex
	nodes    map[string]node.Instance
	order    []string
	edges    []Edge
	version  uint64
	edgeSeq  uint64
	listenMu sync.Mutex
	listenID int
	listens  []listenerEntry
}

type listenerEntry struct {
	id int
	fn Listener
}

// Option customises a Manager.
type Option func(*Manager)

// WithPolicy sets the edge policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithSchema lets the store coerce payload updates through node kind fields.
func WithSchema(s Schema) Option {
	return func(m *Manager) { m.schema = s }
}

// New creates an empty graph store.
func New(opts ...Option) *Manager {
	m := &Manager{nodes: make(map[string]node.Instance)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the edge policy the store was created with.
func (m *Manager) Policy() Policy {
	return m.policy
}

func (m *Manager) AddNode(ctx context.Context, n node.Instance) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if n.ID == "" {
		return fmt.Errorf("node of type '%s' has an empty id", n.Type)
	}
	if !n.Position.Finite() {
		return &InvalidPositionError{Node: n.ID, Position: n.Position}
	}

	m.mu.Lock()
	if _, exists := m.nodes[n.ID]; exists {
		m.mu.Unlock()
		return &DuplicateNodeError{ID: n.ID}
	}
	m.nodes[n.ID] = n.Clone()
	m.order = append(m.order, n.ID)
	c := m.commitLocked(OpAddNode)
	c.Nodes.Added = []string{n.ID}
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Node added.", "node", n.ID, "type", n.Type, "version", c.Version)
	m.notify(ctx, c)
	return nil
}

func (m *Manager) MoveNode(ctx context.Context, id string, pos node.Position) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !pos.Finite() {
		return &InvalidPositionError{Node: id, Position: pos}
	}

	m.mu.Lock()
	n, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()
		return &NodeNotFoundError{ID: id}
	}
	if n.Position == pos {
		m.mu.Unlock()
		return nil
	}
	n.Position = pos
	m.nodes[id] = n
	c := m.commitLocked(OpMoveNode)
	c.Nodes.Updated = []string{id}
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Node moved.", "node", id, "x", pos.X, "y", pos.Y, "version", c.Version)
	m.notify(ctx, c)
	return nil
}

func (m *Manager) UpdateNodePayload(ctx context.Context, id, field string, value any) error {
	return m.PatchNodePayload(ctx, id, map[string]any{field: value})
}

func (m *Manager) PatchNodePayload(ctx context.Context, id string, partial map[string]any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	n, ok := m.nodes[id]
	m.mu.RUnlock()
	if !ok {
		return &NodeNotFoundError{ID: id}
	}

	coerced := make(map[string]any, len(partial))
	for _, field := range slices.Sorted(maps.Keys(partial)) {
		v, err := m.coerceField(n, field, partial[field])
		if err != nil {
			return &FieldError{Node: id, Field: field, Err: err}
		}
		coerced[field] = v
	}
	if len(coerced) == 0 {
		return nil
	}

	m.mu.Lock()
	n = m.nodes[id]
	payload := maps.Clone(n.Payload)
	if payload == nil {
		payload = make(map[string]any, len(coerced))
	}
	maps.Copy(payload, coerced)
	n.Payload = payload
	m.nodes[id] = n
	c := m.commitLocked(OpUpdateNode)
	c.Nodes.Updated = []string{id}
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Node payload updated.", "node", id, "fields", len(coerced), "version", c.Version)
	m.notify(ctx, c)
	return nil
}

// coerceField checks a payload value against the node's kind. Without a
// schema only fields already present in the payload may be set.
func (m *Manager) coerceField(n node.Instance, field string, value any) (any, error) {
	if m.schema == nil {
		if _, ok := n.Payload[field]; !ok {
			return nil, ErrUnknownField
		}
		return value, nil
	}
	def, ok := m.schema.Lookup(n.Type)
	if !ok {
		return nil, fmt.Errorf("node type '%s' is not registered", n.Type)
	}
	f, ok := def.Field(field)
	if !ok {
		return nil, ErrUnknownField
	}
	return f.Coerce(value)
}

func (m *Manager) RemoveNode(ctx context.Context, id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if _, ok := m.nodes[id]; !ok {
		m.mu.Unlock()
		return &NodeNotFoundError{ID: id}
	}
	delete(m.nodes, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })

	var removedEdges []string
	m.edges = slices.DeleteFunc(m.edges, func(e Edge) bool {
		if e.Touches(id) {
			removedEdges = append(removedEdges, e.ID)
			return true
		}
		return false
	})
	c := m.commitLocked(OpRemoveNode)
	c.Nodes.Removed = []string{id}
	c.Edges.Removed = removedEdges
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Node removed.", "node", id, "edges_removed", len(removedEdges), "version", c.Version)
	m.notify(ctx, c)
	return nil
}

func (m *Manager) AddEdge(ctx context.Context, e Edge) (Edge, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if err := m.checkEdgeLocked(e, m.nodes, m.edges); err != nil {
		m.mu.Unlock()
		ctxlog.FromContext(ctx).Debug("Edge rejected.", "edge", e.String(), "error", err)
		return Edge{}, err
	}
	m.edgeSeq++
	e.ID = fmt.Sprintf("e-%d", m.edgeSeq)
	m.edges = append(m.edges, e)
	c := m.commitLocked(OpAddEdge)
	c.Edges.Added = []string{e.ID}
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Edge added.", "edge", e.ID, "from", e.Source, "to", e.Target, "version", c.Version)
	m.notify(ctx, c)
	return e, nil
}

// checkEdgeLocked validates e against the given nodes and edges under the
// store's policy.
func (m *Manager) checkEdgeLocked(e Edge, nodes map[string]node.Instance, edges []Edge) error {
	src, ok := nodes[e.Source]
	if !ok {
		return &InvalidEndpointError{Edge: e, Side: "source", Reason: fmt.Sprintf("node '%s' does not exist", e.Source)}
	}
	if _, ok := src.Output(e.SourcePort); !ok {
		return &InvalidEndpointError{Edge: e, Side: "source", Reason: fmt.Sprintf("node '%s' has no output port '%s'", e.Source, e.SourcePort)}
	}
	dst, ok := nodes[e.Target]
	if !ok {
		return &InvalidEndpointError{Edge: e, Side: "target", Reason: fmt.Sprintf("node '%s' does not exist", e.Target)}
	}
	if _, ok := dst.Input(e.TargetPort); !ok {
		return &InvalidEndpointError{Edge: e, Side: "target", Reason: fmt.Sprintf("node '%s' has no input port '%s'", e.Target, e.TargetPort)}
	}
	if e.Source == e.Target && !m.policy.AllowSelfLoops {
		return &SelfLoopError{Node: e.Source}
	}
	if m.policy.RejectDuplicateEdges {
		for _, existing := range edges {
			if existing.SameEndpoints(e) {
				return &DuplicateEdgeError{Edge: e, Existing: existing.ID}
			}
		}
	}
	return nil
}

func (m *Manager) RemoveEdge(ctx context.Context, e Edge) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	var removed []string
	m.edges = slices.DeleteFunc(m.edges, func(existing Edge) bool {
		if existing.SameEndpoints(e) {
			removed = append(removed, existing.ID)
			return true
		}
		return false
	})
	if len(removed) == 0 {
		m.mu.Unlock()
		return 0, &EdgeNotFoundError{Edge: e}
	}
	c := m.commitLocked(OpRemoveEdge)
	c.Edges.Removed = removed
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Edges removed.", "edge", e.String(), "count", len(removed), "version", c.Version)
	m.notify(ctx, c)
	return len(removed), nil
}

func (m *Manager) RemoveEdgeByID(ctx context.Context, id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	i := slices.IndexFunc(m.edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		m.mu.Unlock()
		return &EdgeNotFoundError{ID: id}
	}
	m.edges = slices.Delete(m.edges, i, i+1)
	c := m.commitLocked(OpRemoveEdge)
	c.Edges.Removed = []string{id}
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Edge removed.", "edge", id, "version", c.Version)
	m.notify(ctx, c)
	return nil
}

func (m *Manager) Load(ctx context.Context, g Graph) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	nodes := make(map[string]node.Instance, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node of type '%s' has an empty id", n.Type)
		}
		if _, dup := nodes[n.ID]; dup {
			return &DuplicateNodeError{ID: n.ID}
		}
		if !n.Position.Finite() {
			return &InvalidPositionError{Node: n.ID, Position: n.Position}
		}
		nodes[n.ID] = n.Clone()
		order = append(order, n.ID)
	}

	m.mu.Lock()
	seq := m.edgeSeq
	edges := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if err := m.checkEdgeLocked(e, nodes, edges); err != nil {
			m.mu.Unlock()
			return err
		}
		seq++
		e.ID = fmt.Sprintf("e-%d", seq)
		edges = append(edges, e)
	}

	c := m.commitLocked(OpLoad)
	c.Nodes.Removed = slices.Clone(m.order)
	c.Nodes.Added = slices.Clone(order)
	for _, e := range m.edges {
		c.Edges.Removed = append(c.Edges.Removed, e.ID)
	}
	for _, e := range edges {
		c.Edges.Added = append(c.Edges.Added, e.ID)
	}
	m.nodes, m.order, m.edges, m.edgeSeq = nodes, order, edges, seq
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Graph loaded.", "nodes", len(order), "edges", len(edges), "version", c.Version)
	m.notify(ctx, c)
	return nil
}

func (m *Manager) Snapshot() Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g := Graph{
		Nodes:   make([]node.Instance, 0, len(m.order)),
		Edges:   slices.Clone(m.edges),
		Version: m.version,
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	for _, id := range m.order {
		g.Nodes = append(g.Nodes, m.nodes[id].Clone())
	}
	return g
}

func (m *Manager) Node(id string) (node.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return node.Instance{}, false
	}
	return n.Clone(), true
}

func (m *Manager) Edge(id string) (Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := slices.IndexFunc(m.edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		return Edge{}, false
	}
	return m.edges[i], true
}

func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *Manager) Subscribe(l Listener) func() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listenID++
	id := m.listenID
	m.listens = append(m.listens, listenerEntry{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenMu.Lock()
			defer m.listenMu.Unlock()
			m.listens = slices.DeleteFunc(m.listens, func(le listenerEntry) bool { return le.id == id })
		})
	}
}

// commitLocked bumps the version. The caller fills in the touched ids.
func (m *Manager) commitLocked(op Op) Change {
	m.version++
	return Change{Version: m.version, Op: op}
}

func (m *Manager) notify(ctx context.Context, c Change) {
	m.listenMu.Lock()
	listeners := slices.Clone(m.listens)
	m.listenMu.Unlock()

	for _, le := range listeners {
		le.fn(ctx, c)
	}
}

var _ Store = (*Manager)(nil)
