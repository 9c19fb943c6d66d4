package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/nodegrid/internal/node"
)

// Call is what a handler receives when its node runs.
type Call struct {
	// Node is a read-only copy of the instance being executed.
	Node node.Instance
	// Inputs holds the resolved value of every input port; unconnected
	// ports are nil.
	Inputs map[string]any
	// Trigger names the input port through which a flow edge fired the node.
	// It is empty for start nodes and for pure nodes evaluated on demand.
	Trigger string
	// Out receives anything the node prints.
	Out io.Writer
}

// Input returns the value of an input port, falling back to the payload
// field of the same name when the port is unconnected.
func (c *Call) Input(port string) any {
	if v, ok := c.Inputs[port]; ok && v != nil {
		return v
	}
	return c.Node.Payload[port]
}

// Emit delivers a value on one of the node's output ports. Emissions on
// flow ports trigger the connected nodes before Emit returns, so a handler
// producing many values never holds them all at once. A non-nil error means
// the run is over; the handler must stop and return it.
type Emit func(port string, value any) error

// Handler executes one node, reporting its outputs through emit in order.
type Handler func(ctx context.Context, call *Call, emit Emit) error

// RegisterHandler registers a Go function under a handler name. Node kinds
// refer to handlers by name, so catalog kinds can reuse built-in behaviour.
func (r *Registry) RegisterHandler(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("node handler with name '%s' already registered", name))
	}
	slog.Debug("Registering node handler.", "name", name)
	r.handlers[name] = h
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// HandlerFor returns the handler of a node kind.
func (r *Registry) HandlerFor(typeTag string) (Handler, error) {
	def, ok := r.Lookup(typeTag)
	if !ok {
		return nil, &UnknownTypeError{Type: typeTag}
	}
	h, ok := r.Handler(def.HandlerName())
	if !ok {
		return nil, fmt.Errorf("node kind '%s': %w: '%s'", typeTag, ErrNoHandler, def.HandlerName())
	}
	return h, nil
}
