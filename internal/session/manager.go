package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/registry"
	"github.com/vk/nodegrid/internal/render"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrLimit is returned by Open when MaxSessions sessions are already open.
var ErrLimit = errors.New("too many open sessions")

// Manager owns the open sessions.
type Manager struct {
	reg  *registry.Registry
	docs docstore.Store
	exec executor.Executor

	policy      graph.Policy
	canvasOpts  []canvas.Option
	obs         observers
	newID       func() string
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option customises a Manager.
type Option func(*Manager)

// WithGraphPolicy sets the edge policy of every new session's store.
func WithGraphPolicy(p graph.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithCanvasOptions is passed to every new session's controller.
func WithCanvasOptions(opts ...canvas.Option) Option {
	return func(m *Manager) { m.canvasOpts = append(m.canvasOpts, opts...) }
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.obs = append(m.obs, o) }
}

// WithIDGenerator replaces uuid session ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithMaxSessions caps the number of open sessions. Zero means no cap.
func WithMaxSessions(n int) Option {
	return func(m *Manager) { m.maxSessions = n }
}

// NewManager creates a manager. exec runs graphs; docs stores saved graphs.
func NewManager(reg *registry.Registry, docs docstore.Store, exec executor.Executor, opts ...Option) *Manager {
	m := &Manager{
		reg:      reg,
		docs:     docs,
		exec:     exec,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a session with an empty graph.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	id := m.newID()
	store := graph.New(graph.WithPolicy(m.policy), graph.WithSchema(m.reg))
	s := &Session{
		id:       id,
		openedAt: time.Now().UTC(),
		reg:      m.reg,
		docs:     m.docs,
		exec:     m.exec,
		obs:      m.obs,
		store:    store,
		ctl:      canvas.New(store, m.reg, m.canvasOpts...),
		views:    render.NewRenderer(store, m.reg),
	}
	s.unsubscribe = store.Subscribe(func(ctx context.Context, c graph.Change) {
		m.obs.GraphChanged(ctx, id, c)
	})

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		s.close()
		return nil, fmt.Errorf("%w: limit is %d", ErrLimit, m.maxSessions)
	}
	if _, dup := m.sessions[id]; dup {
		m.mu.Unlock()
		s.close()
		return nil, fmt.Errorf("session id %s is already in use", id)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	ctxlog.FromContext(ctx).Info("Session opened.", "session", id)
	m.obs.SessionOpened(ctx, id)
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close discards a session and its graph.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.close()
	ctxlog.FromContext(ctx).Info("Session closed.", "session", id)
	m.obs.SessionClosed(ctx, id)
	return nil
}

// CloseAll discards every session; used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(ctx, id)
	}
}

// List summarises the open sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.OpenedAt.Compare(b.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Registry is the node kind registry shared by all sessions.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Documents is the docstore shared by all sessions.
func (m *Manager) Documents() docstore.Store { return m.docs }
