// Package number provides the built-in "number" node kind.
package number

import (
	"context"
	"fmt"

	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
)

// Type is the palette tag of the kind.
const Type = "number"

// Module implements the registry.Module interface for this package.
type Module struct{}

var valueField = kind.Field{Name: "value", Label: "Value", Type: kind.FieldNumber, Default: 0.0}

// Definition returns the schema of the number kind.
func Definition() kind.Definition {
	return kind.Definition{
		Type:    Type,
		Label:   "Number",
		Style:   "success",
		Inputs:  []kind.Port{{Name: "value", Label: "Value"}},
		Outputs: []kind.Port{{Name: "value", Label: "Value"}},
		Fields:  []kind.Field{valueField},
	}
}

// Run emits the numeric value of the node. A connected input is converted
// to a number first.
func Run(ctx context.Context, call *registry.Call, emit registry.Emit) error {
	raw := call.Input("value")
	if raw == nil {
		return emit("value", nil)
	}
	v, err := valueField.Coerce(raw)
	if err != nil {
		return fmt.Errorf("number node '%s': %w", call.Node.ID, err)
	}
	return emit("value", v)
}

// Register registers the kind and its handler.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(Definition())
	r.RegisterHandler(Type, Run)
}
