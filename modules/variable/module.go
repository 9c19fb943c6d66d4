// Package variable provides the built-in "variable" node kind, a named text
// value that can be overridden through its input port.
package variable

import (
	"context"

	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
)

// Type is the palette tag of the kind.
const Type = "variable"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Definition returns the schema of the variable kind.
func Definition() kind.Definition {
	return kind.Definition{
		Type:    Type,
		Label:   "Variable",
		Style:   "info",
		Inputs:  []kind.Port{{Name: "value", Label: "Value"}},
		Outputs: []kind.Port{{Name: "value", Label: "Value"}},
		Fields:  []kind.Field{{Name: "value", Label: "Value", Type: kind.FieldString, Default: "x"}},
	}
}

// Run emits the connected input value, or the payload value when the input
// is unconnected.
func Run(ctx context.Context, call *registry.Call, emit registry.Emit) error {
	return emit("value", call.Input("value"))
}

// Register registers the kind and its handler.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(Definition())
	r.RegisterHandler(Type, Run)
}
