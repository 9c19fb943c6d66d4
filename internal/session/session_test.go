package session_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/nodegrid/internal/builtin"
	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/inmemorydocs"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/session"
)

// events records observer calls as short strings.
type events struct {
	session.NopObserver
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *events) SessionOpened(_ context.Context, id string) { e.add("open %s", id) }
func (e *events) SessionClosed(_ context.Context, id string) { e.add("close %s", id) }
func (e *events) GraphChanged(_ context.Context, id string, c graph.Change) {
	e.add("change %s %s v%d", id, c.Op, c.Version)
}
func (e *events) MutationRejected(_ context.Context, id string, op graph.Op, _ error) {
	e.add("reject %s %s", id, op)
}
func (e *events) GestureEnded(_ context.Context, id string, r canvas.Result) {
	e.add("gesture %s %s %s", id, r.Gesture, r.Outcome)
}
func (e *events) RunFinished(_ context.Context, id string, r executor.Report, _ error) {
	e.add("run %s %d", id, r.Steps)
}

func newManager(t *testing.T, opts ...session.Option) (*session.Manager, *events, docstore.Store) {
	t.Helper()
	reg := builtin.NewRegistry(nil)
	docs := inmemorydocs.New()
	ev := &events{}
	n := 0
	opts = append([]session.Option{
		session.WithObserver(ev),
		session.WithIDGenerator(func() string { n++; return fmt.Sprintf("s%d", n) }),
	}, opts...)
	return session.NewManager(reg, docs, executor.New(reg), opts...), ev, docs
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m, ev, _ := newManager(t)

	a, err := m.Open(ctx)
	require.NoError(t, err)
	b, err := m.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", a.ID())

	got, err := m.Get("s2")
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Len(t, m.List(), 2)

	require.NoError(t, m.Close(ctx, "s1"))
	_, err = m.Get("s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, m.Close(ctx, "s1"), session.ErrNotFound)

	m.CloseAll(ctx)
	assert.Empty(t, m.List())
	assert.Equal(t, []string{"open s1", "open s2", "close s1", "close s2"}, ev.all())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)
	a, _ := m.Open(ctx)
	b, _ := m.Open(ctx)

	_, err := a.CreateNode(ctx, "print", nil, node.Position{})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Info().Nodes)
	assert.Equal(t, 0, b.Info().Nodes)
}

func TestManager_MaxSessions(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, session.WithMaxSessions(1))
	_, err := m.Open(ctx)
	require.NoError(t, err)
	_, err = m.Open(ctx)
	assert.ErrorIs(t, err, session.ErrLimit)
}

func TestSession_ObserversSeeChangesRejectionsAndGestures(t *testing.T) {
	ctx := context.Background()
	m, ev, _ := newManager(t)
	s, _ := m.Open(ctx)

	require.NoError(t, s.Canvas().BeginPaletteDrag(ctx, "loop"))
	res, err := s.Drop(ctx, canvas.OnCanvas(canvas.Point{X: 100, Y: 100}))
	require.NoError(t, err)
	assert.Equal(t, canvas.Committed, res.Outcome)

	_, err = s.Connect(ctx, graph.Edge{Source: res.Node, SourcePort: "bogus", Target: res.Node, TargetPort: "count"})
	assert.ErrorIs(t, err, graph.ErrInvalidEndpoint)

	_, err = s.CreateNode(ctx, "teleport", nil, node.Position{})
	assert.Error(t, err)

	assert.Equal(t, []string{
		"open s1",
		"change s1 add_node v1",
		"gesture s1 palette_dragging committed",
		"reject s1 add_edge",
		"reject s1 add_node",
	}, ev.all())

	view, ok := s.Views().View(res.Node)
	require.True(t, ok)
	assert.Equal(t, node.Position{X: 100, Y: 100}, view.Position)
}

func TestSession_EditOperations(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)
	s, _ := m.Open(ctx)

	v, err := s.CreateNode(ctx, "variable", map[string]any{"value": "hi"}, node.Position{})
	require.NoError(t, err)
	p, err := s.CreateNode(ctx, "print", nil, node.Position{X: 200})
	require.NoError(t, err)

	e, err := s.Connect(ctx, graph.Edge{Source: v.ID, SourcePort: "value", Target: p.ID, TargetPort: "value"})
	require.NoError(t, err)
	require.NoError(t, s.MoveNode(ctx, p.ID, node.Position{X: 300, Y: 10}))
	require.NoError(t, s.PatchNode(ctx, v.ID, map[string]any{"value": "bye"}))
	require.NoError(t, s.Disconnect(ctx, e.ID))
	require.NoError(t, s.RemoveNode(ctx, v.ID))

	g := s.Store().Snapshot()
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, 300.0, g.Nodes[0].Position.X)
	assert.Empty(t, g.Edges)
}

func TestSession_SaveRestoreRun(t *testing.T) {
	ctx := context.Background()
	m, ev, docs := newManager(t)
	a, _ := m.Open(ctx)

	loop, err := a.CreateNode(ctx, "loop", map[string]any{"count": 2}, node.Position{})
	require.NoError(t, err)
	p, err := a.CreateNode(ctx, "print", nil, node.Position{X: 200})
	require.NoError(t, err)
	_, err = a.Connect(ctx, graph.Edge{Source: loop.ID, SourcePort: "body", Target: p.ID, TargetPort: "value"})
	require.NoError(t, err)

	sum, err := a.Save(ctx, "counting")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Nodes)
	list, err := docs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	b, _ := m.Open(ctx)
	require.NoError(t, b.Restore(ctx, "counting"))
	assert.Equal(t, a.Store().Snapshot().Nodes, b.Store().Snapshot().Nodes)
	assert.Len(t, b.Views().Edges(), 1)

	var out bytes.Buffer
	rep, err := b.Run(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n", out.String())
	assert.Contains(t, ev.all(), fmt.Sprintf("run s2 %d", rep.Steps))
}

func TestSession_RestoreFailureLeavesGraph(t *testing.T) {
	ctx := context.Background()
	m, _, docs := newManager(t)
	s, _ := m.Open(ctx)
	_, err := s.CreateNode(ctx, "print", nil, node.Position{})
	require.NoError(t, err)

	err = s.Restore(ctx, "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	bad := s.Export()
	bad.Nodes[0].Type = "teleport"
	require.NoError(t, docs.Save(ctx, "bad", bad))
	assert.Error(t, s.Restore(ctx, "bad"))

	assert.Equal(t, 1, s.Info().Nodes)
}
