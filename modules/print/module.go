// Package print provides the built-in "print" node kind: it writes its input
// value to the run output and passes it on through its "next" flow port.
package print

import (
	"context"
	"fmt"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
)

// Type is the palette tag of the kind.
const Type = "print"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Definition returns the schema of the print kind. It has no editable field.
func Definition() kind.Definition {
	return kind.Definition{
		Type:    Type,
		Label:   "Print",
		Style:   "warning",
		Inputs:  []kind.Port{{Name: "value", Label: "Value"}},
		Outputs: []kind.Port{{Name: "next", Label: "Next", Flow: true}},
	}
}

// Run is the handler for the print kind.
func Run(ctx context.Context, call *registry.Call, emit registry.Emit) error {
	value := call.Input("value")
	ctxlog.FromContext(ctx).Debug("Printing input.", "node", call.Node.ID, "value", value)

	if call.Out != nil {
		if _, err := fmt.Fprintln(call.Out, Format(value)); err != nil {
			return fmt.Errorf("print node '%s': %w", call.Node.ID, err)
		}
	}
	return emit("next", value)
}

// Format renders a value the way the print node writes it.
func Format(v any) string {
	if v == nil {
		return "(null)"
	}
	return fmt.Sprint(v)
}

// Register registers the kind and its handler.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(Definition())
	r.RegisterHandler(Type, Run)
}
