// Package loop provides the built-in "loop" node kind. A loop fires its
// "body" flow port once per iteration and then its "next" flow port.
package loop

import (
	"context"
	"fmt"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
)

// Type is the palette tag of the kind.
const Type = "loop"

// Module implements the registry.Module interface for this package.
type Module struct{}

var countField = kind.Field{Name: "count", Label: "Repeat", Type: kind.FieldInteger, Default: 5}

// Definition returns the schema of the loop kind.
func Definition() kind.Definition {
	return kind.Definition{
		Type:   Type,
		Label:  "Loop",
		Style:  "error",
		Inputs: []kind.Port{{Name: "count", Label: "Count"}},
		Outputs: []kind.Port{
			{Name: "body", Label: "Body", Flow: true},
			{Name: "next", Label: "Next", Flow: true},
		},
		Fields: []kind.Field{countField},
	}
}

// Run emits the iteration index on "body" count times, then the count on
// "next". A negative count runs the body zero times. Each body emission
// runs its downstream nodes before the next index is produced.
func Run(ctx context.Context, call *registry.Call, emit registry.Emit) error {
	raw := call.Input("count")
	if raw == nil {
		raw = countField.Default
	}
	v, err := countField.Coerce(raw)
	if err != nil {
		return fmt.Errorf("loop node '%s': %w", call.Node.ID, err)
	}
	count := max(v.(int), 0)
	ctxlog.FromContext(ctx).Debug("Loop starting.", "node", call.Node.ID, "count", count)

	for i := range count {
		if err := emit("body", i); err != nil {
			return err
		}
	}
	return emit("next", count)
}

// Register registers the kind and its handler.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(Definition())
	r.RegisterHandler(Type, Run)
}
