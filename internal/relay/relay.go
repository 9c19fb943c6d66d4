// Package relay forwards session changes to an external socket.io server so
// collaborators outside this process can follow an editor.
//
// Store listeners must not block, so the relay only enqueues from its
// observer callbacks. Run drains the queue and emits. When the queue is full
// events are dropped and counted; a relay is best-effort.
package relay

import (
	"context"
	"sync/atomic"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/session"
)

// DefaultEvent is the socket.io event name used when none is configured.
const DefaultEvent = "graph_change"

// Emitter sends one event. SocketEmitter is the production implementation.
type Emitter interface {
	Emit(event string, payload any) error
}

// Message is the payload of every relayed event.
type Message struct {
	Session string          `json:"session"`
	Kind    string          `json:"kind"`
	Op      graph.Op        `json:"op,omitempty"`
	Version uint64          `json:"version,omitempty"`
	Nodes   graph.ChangeSet `json:"nodes"`
	Edges   graph.ChangeSet `json:"edges"`
}

// Message kinds.
const (
	KindOpened = "opened"
	KindClosed = "closed"
	KindChange = "change"
)

// Relay is a session.Observer that forwards to an Emitter.
type Relay struct {
	session.NopObserver

	emitter Emitter
	event   string
	queue   chan Message
	dropped atomic.Int64
}

// New creates a relay with a queue of the given size.
func New(emitter Emitter, event string, queueSize int) *Relay {
	if event == "" {
		event = DefaultEvent
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Relay{emitter: emitter, event: event, queue: make(chan Message, queueSize)}
}

func (r *Relay) SessionOpened(ctx context.Context, id string) {
	r.enqueue(ctx, Message{Session: id, Kind: KindOpened})
}

func (r *Relay) SessionClosed(ctx context.Context, id string) {
	r.enqueue(ctx, Message{Session: id, Kind: KindClosed})
}

func (r *Relay) GraphChanged(ctx context.Context, id string, c graph.Change) {
	r.enqueue(ctx, Message{Session: id, Kind: KindChange, Op: c.Op, Version: c.Version, Nodes: c.Nodes, Edges: c.Edges})
}

// Dropped is the number of messages discarded because the queue was full.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

func (r *Relay) enqueue(ctx context.Context, m Message) {
	select {
	case r.queue <- m:
	default:
		n := r.dropped.Add(1)
		ctxlog.FromContext(ctx).Warn("Relay queue full; dropping message.", "session", m.Session, "kind", m.Kind, "dropped", n)
	}
}

// Run emits queued messages until ctx is done. Emit failures are logged and
// the message is dropped.
func (r *Relay) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("component", "relay", "event", r.event)
	logger.Info("Relay started.")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Relay stopped.", "dropped", r.Dropped())
			return nil
		case m := <-r.queue:
			if err := r.emitter.Emit(r.event, m); err != nil {
				logger.Warn("Relay emit failed.", "session", m.Session, "kind", m.Kind, "error", err)
				continue
			}
			logger.Debug("Relayed message.", "session", m.Session, "kind", m.Kind, "version", m.Version)
		}
	}
}
