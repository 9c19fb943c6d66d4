// Package session wires one graph store, canvas controller and renderer
// together per open editor, and keeps the set of open editors.
//
// A session is the unit the transport talks to. Its graph is created empty
// on Open and discarded on Close; Save and Restore move it through the
// configured docstore.Store.
package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/document"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/registry"
	"github.com/vk/nodegrid/internal/render"
)

// Info summarises an open session.
type Info struct {
	ID       string    `json:"id"`
	OpenedAt time.Time `json:"openedAt"`
	Nodes    int       `json:"nodes"`
	Edges    int       `json:"edges"`
	Version  uint64    `json:"version"`
}

// Session is one open editor.
type Session struct {
	id       string
	openedAt time.Time

	reg   *registry.Registry
	docs  docstore.Store
	exec  executor.Executor
	obs   Observer
	store *graph.Manager
	ctl   *canvas.Controller
	views *render.Renderer

	unsubscribe func()
}

func (s *Session) ID() string { return s.id }

// Store is the session's graph store.
func (s *Session) Store() graph.Store { return s.store }

// Canvas is the session's interaction controller. Gestures should end
// through Session.Drop and Session.Cancel so observers see them.
func (s *Session) Canvas() *canvas.Controller { return s.ctl }

// Views is the session's node renderer.
func (s *Session) Views() *render.Renderer { return s.views }

// Info returns a summary of the session.
func (s *Session) Info() Info {
	g := s.store.Snapshot()
	return Info{ID: s.id, OpenedAt: s.openedAt, Nodes: len(g.Nodes), Edges: len(g.Edges), Version: g.Version}
}

// CreateNode instantiates typeTag through the registry and inserts it.
func (s *Session) CreateNode(ctx context.Context, typeTag string, override map[string]any, pos node.Position) (node.Instance, error) {
	n, err := s.reg.Create(typeTag, override, pos)
	if err != nil {
		return node.Instance{}, s.track(ctx, graph.OpAddNode, err)
	}
	if err := s.store.AddNode(ctx, n); err != nil {
		return node.Instance{}, s.track(ctx, graph.OpAddNode, err)
	}
	return n, nil
}

func (s *Session) MoveNode(ctx context.Context, id string, pos node.Position) error {
	return s.track(ctx, graph.OpMoveNode, s.store.MoveNode(ctx, id, pos))
}

func (s *Session) PatchNode(ctx context.Context, id string, partial map[string]any) error {
	return s.track(ctx, graph.OpUpdateNode, s.store.PatchNodePayload(ctx, id, partial))
}

func (s *Session) RemoveNode(ctx context.Context, id string) error {
	return s.track(ctx, graph.OpRemoveNode, s.store.RemoveNode(ctx, id))
}

func (s *Session) Connect(ctx context.Context, e graph.Edge) (graph.Edge, error) {
	added, err := s.store.AddEdge(ctx, e)
	return added, s.track(ctx, graph.OpAddEdge, err)
}

func (s *Session) Disconnect(ctx context.Context, id string) error {
	return s.track(ctx, graph.OpRemoveEdge, s.store.RemoveEdgeByID(ctx, id))
}

// Drop ends the current gesture at target.
func (s *Session) Drop(ctx context.Context, target canvas.Target) (canvas.Result, error) {
	res, err := s.ctl.Drop(ctx, target)
	if res.Gesture != canvas.Idle {
		s.obs.GestureEnded(ctx, s.id, res)
	}
	return res, err
}

// Cancel abandons the current gesture.
func (s *Session) Cancel(ctx context.Context) (canvas.Result, error) {
	res, err := s.ctl.Cancel(ctx)
	if res.Gesture != canvas.Idle {
		s.obs.GestureEnded(ctx, s.id, res)
	}
	return res, err
}

// Save writes the current graph to the docstore under name.
func (s *Session) Save(ctx context.Context, name string) (docstore.Summary, error) {
	doc := document.Serialize(s.store.Snapshot())
	if err := s.docs.Save(ctx, name, doc); err != nil {
		return docstore.Summary{}, fmt.Errorf("save %s: %w", name, err)
	}
	ctxlog.FromContext(ctx).Info("Graph saved.", "session", s.id, "name", name, "nodes", len(doc.Nodes))
	return docstore.Summarize(name, doc, time.Now()), nil
}

// Restore replaces the graph with the document stored under name. The graph
// is left untouched if the document cannot be rebuilt.
func (s *Session) Restore(ctx context.Context, name string) error {
	doc, err := s.docs.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return s.Import(ctx, doc)
}

// Import replaces the graph with doc.
func (s *Session) Import(ctx context.Context, doc document.Document) error {
	g, err := document.Deserialize(doc, s.reg)
	if err != nil {
		return s.track(ctx, graph.OpLoad, err)
	}
	if err := s.store.Load(ctx, g); err != nil {
		return s.track(ctx, graph.OpLoad, err)
	}
	ctxlog.FromContext(ctx).Info("Graph restored.", "session", s.id, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Export serializes the current graph.
func (s *Session) Export() document.Document {
	return document.Serialize(s.store.Snapshot())
}

// Run executes a snapshot of the graph, writing Print output to w.
func (s *Session) Run(ctx context.Context, w io.Writer) (executor.Report, error) {
	rep, err := s.exec.Run(ctx, s.store.Snapshot(), w)
	s.obs.RunFinished(ctx, s.id, rep, err)
	return rep, err
}

func (s *Session) close() {
	s.unsubscribe()
	s.views.Close()
}

func (s *Session) track(ctx context.Context, op graph.Op, err error) error {
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Mutation rejected.", "session", s.id, "op", op, "error", err)
		s.obs.MutationRejected(ctx, s.id, op, err)
	}
	return err
}
