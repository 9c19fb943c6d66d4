package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/vk/nodegrid/internal/badgerdocs"
	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/hcl"
	"github.com/vk/nodegrid/internal/inmemorydocs"
	"github.com/vk/nodegrid/internal/metrics"
	"github.com/vk/nodegrid/internal/registry"
	"github.com/vk/nodegrid/internal/relay"
	"github.com/vk/nodegrid/internal/server"
	"github.com/vk/nodegrid/internal/session"
	"github.com/vk/nodegrid/internal/sqlitedocs"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	cfg      Config
	logger   *slog.Logger
	registry *registry.Registry
	loader   *hcl.Loader
	docs     docstore.Store
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	emitter  relay.Emitter
	relay    *relay.Relay
	sessions *session.Manager
	server   *server.Server
}

// Option customises New.
type Option func(*options)

type options struct {
	modules []registry.Module
	emitter relay.Emitter
}

// WithModules registers extra node kinds after the built-in ones.
func WithModules(mods ...registry.Module) Option {
	return func(o *options) { o.modules = append(o.modules, mods...) }
}

// WithEmitter relays session changes to e instead of dialing cfg.Relay.URL.
func WithEmitter(e relay.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// New is the constructor for the main application. It builds the registry,
// loads the node kind catalog, opens the document store and wires sessions,
// metrics, the relay and the HTTP server. Nothing is listening yet; see Serve.
func New(ctx context.Context, outW io.Writer, cfg Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := NewLogger(cfg.Log.Level, cfg.Log.Format, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	reg, err := LoadRegistry(ctx, cfg, o.modules...)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		loader:   hcl.NewLoader(),
		promReg:  prometheus.NewRegistry(),
	}
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.promReg)

	docs, err := openDocuments(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	a.docs = docs

	moveMode, err := canvas.ParseMoveMode(cfg.Canvas.MoveMode)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	sessionOpts := []session.Option{
		session.WithGraphPolicy(graph.Policy{
			AllowSelfLoops:       cfg.Graph.AllowSelfLoops,
			RejectDuplicateEdges: cfg.Graph.RejectDuplicateEdges,
		}),
		session.WithCanvasOptions(
			canvas.WithMoveMode(moveMode),
			canvas.WithMoveRate(rate.Limit(cfg.Canvas.MoveRate), cfg.Canvas.MoveBurst),
		),
		session.WithMaxSessions(cfg.Sessions.Max),
		session.WithObserver(a.metrics),
	}

	a.emitter = o.emitter
	if a.emitter == nil && cfg.Relay.URL != "" {
		sock, err := relay.Dial(ctx, relay.ClientConfig{
			URL:                cfg.Relay.URL,
			Namespace:          cfg.Relay.Namespace,
			InsecureSkipVerify: cfg.Relay.InsecureSkipVerify,
			ConnectTimeout:     cfg.Relay.Timeout,
		})
		if err != nil {
			_ = docs.Close()
			return nil, fmt.Errorf("failed to connect change relay: %w", err)
		}
		a.emitter = relay.SocketEmitter{Socket: sock}
	}
	if a.emitter != nil {
		a.relay = relay.New(a.emitter, cfg.Relay.Event, cfg.Relay.QueueSize)
		sessionOpts = append(sessionOpts, session.WithObserver(a.relay))
	}

	exec := executor.New(a.registry, executor.WithMaxSteps(cfg.Exec.MaxSteps))
	a.sessions = session.NewManager(a.registry, a.docs, exec, sessionOpts...)
	a.server = server.New(ctx, a.sessions, server.WithGatherer(a.promReg))

	logger.Debug("Application wired.", "storage", cfg.Storage.Driver, "relay", a.relay != nil)
	return a, nil
}

// openDocuments opens the configured document store driver.
func openDocuments(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return inmemorydocs.New(), nil
	case "badger":
		s, err := badgerdocs.Open(badgerdocs.Config{Path: cfg.Path, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlitedocs.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Close releases the document store and the relay connection.
func (a *App) Close() error {
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	a.sessions.CloseAll(ctx)
	var errs []error
	if c, ok := a.emitter.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.docs.Close())
	return errors.Join(errs...)
}

// Registry returns the application's registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Documents returns the configured document store.
func (a *App) Documents() docstore.Store { return a.docs }

// Handler is the HTTP handler Serve listens with; used by tests.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger { return a.logger }
