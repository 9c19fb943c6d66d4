package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/node"
)

// Module is the interface that every built-in node kind package implements
// to contribute its definition and handler.
type Module interface {
	Register(r *Registry)
}

// Registry holds the node kind definitions and execution handlers of a
// single application instance. It is safe for concurrent use; the catalog
// watcher may re-register kinds while editor sessions create nodes.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]kind.Definition
	order       []string
	handlers    map[string]Handler
	ids         *IDGenerator
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock replaces the clock used for node id generation.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.ids = NewIDGenerator(now)
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		definitions: make(map[string]kind.Definition),
		handlers:    make(map[string]Handler),
		ids:         NewIDGenerator(time.Now),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a definition, or replaces the definition with the same type
// tag. Replacing keeps the kind's palette position.
func (r *Registry) Register(def kind.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def = def.Clone()
	for i, f := range def.Fields {
		if f.Default == nil {
			continue
		}
		v, err := f.Coerce(f.Default)
		if err != nil {
			return fmt.Errorf("node kind '%s': %w", def.Type, err)
		}
		def.Fields[i].Default = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Type]; !exists {
		r.order = append(r.order, def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// MustRegister is Register for module init code, where an invalid
// definition is a programmer error.
func (r *Registry) MustRegister(def kind.Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the definition registered for typeTag.
func (r *Registry) Lookup(typeTag string) (kind.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[typeTag]
	if !ok {
		return kind.Definition{}, false
	}
	return def.Clone(), true
}

// Kinds returns copies of all definitions in palette (registration) order.
func (r *Registry) Kinds() []kind.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kind.Definition, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.definitions[t].Clone())
	}
	return out
}

// Create instantiates a node of typeTag at pos. The payload starts from the
// kind's defaults; override values are coerced into their field types and
// merged on top.
func (r *Registry) Create(typeTag string, override map[string]any, pos node.Position) (node.Instance, error) {
	def, ok := r.Lookup(typeTag)
	if !ok {
		return node.Instance{}, &UnknownTypeError{Type: typeTag}
	}

	payload := def.DefaultPayload()
	for name, raw := range override {
		f, ok := def.Field(name)
		if !ok {
			return node.Instance{}, &PayloadError{Type: typeTag, Field: name, Err: ErrUnknownField}
		}
		v, err := f.Coerce(raw)
		if err != nil {
			return node.Instance{}, &PayloadError{Type: typeTag, Field: name, Err: err}
		}
		payload[name] = v
	}

	return node.New(r.ids.Next(typeTag), def, pos, payload), nil
}

// ObserveID tells the id generator about an id minted elsewhere (e.g. loaded
// from a document) so that later ids never collide with it.
func (r *Registry) ObserveID(id string) {
	r.ids.Observe(id)
}

// CoercePayload validates a full payload against the kind's fields.
func (r *Registry) CoercePayload(typeTag string, payload map[string]any) (map[string]any, error) {
	def, ok := r.Lookup(typeTag)
	if !ok {
		return nil, &UnknownTypeError{Type: typeTag}
	}
	out := make(map[string]any, len(payload))
	for name, raw := range payload {
		f, ok := def.Field(name)
		if !ok {
			return nil, &PayloadError{Type: typeTag, Field: name, Err: ErrUnknownField}
		}
		v, err := f.Coerce(raw)
		if err != nil {
			return nil, &PayloadError{Type: typeTag, Field: name, Err: err}
		}
		out[name] = v
	}
	return out, nil
}

// Validate checks that every definition's handler resolves. Kinds without a
// handler could be placed but never executed.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, t := range r.order {
		def := r.definitions[t]
		if _, ok := r.handlers[def.HandlerName()]; !ok {
			missing = append(missing, fmt.Sprintf("node kind '%s': handler '%s' is not registered", t, def.HandlerName()))
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Problems: missing}
	}

	logger.Debug("Registry validation passed.", "kinds", len(r.order), "handlers", len(r.handlers))
	return nil
}

// HandlerNames returns the registered handler names, sorted.
func (r *Registry) HandlerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}
