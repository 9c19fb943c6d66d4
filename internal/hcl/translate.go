package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/zclconf/go-cty/cty"
)

// translateKind converts a decoded kind block into a kind.Definition.
func translateKind(ctx context.Context, b *kindBlock) (kind.Definition, error) {
	logger := ctxlog.FromContext(ctx).With("kind", b.Type)
	logger.Debug("Translating HCL kind block.")

	def := kind.Definition{
		Type:    b.Type,
		Label:   b.Label,
		Handler: b.Handler,
		Style:   b.Style,
		Inputs:  translatePorts(b.Inputs),
		Outputs: translatePorts(b.Outputs),
	}
	for _, fb := range b.Fields {
		f, err := translateField(ctx, fb)
		if err != nil {
			return kind.Definition{}, fmt.Errorf("kind '%s': %w", b.Type, err)
		}
		def.Fields = append(def.Fields, f)
	}
	if err := def.Validate(); err != nil {
		return kind.Definition{}, err
	}
	return def, nil
}

func translatePorts(blocks []*portBlock) []kind.Port {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]kind.Port, len(blocks))
	for i, b := range blocks {
		out[i] = kind.Port{Name: b.Name, Label: b.Label, Flow: b.Flow}
	}
	return out
}

func translateField(ctx context.Context, b *fieldBlock) (kind.Field, error) {
	ft, diags := fieldType(b.Type)
	if diags.HasErrors() {
		return kind.Field{}, fmt.Errorf("field '%s': %w", b.Name, diags)
	}
	f := kind.Field{Name: b.Name, Label: b.Label, Type: ft}

	if !isExprDefined(ctx, b.Default, "default") {
		return f, nil
	}
	val, diags := b.Default.Value(nil)
	if diags.HasErrors() {
		return kind.Field{}, fmt.Errorf("invalid default value for field '%s': %w", b.Name, diags)
	}
	if val.IsNull() {
		return f, nil
	}
	v, err := f.CoerceValue(val)
	if err != nil {
		return kind.Field{}, err
	}
	f.Default = v
	return f, nil
}

// fieldType reads a field's type keyword. Both the bare form (type = number)
// and the quoted form (type = "number") are accepted.
func fieldType(expr hcl.Expression) (kind.FieldType, hcl.Diagnostics) {
	name := hcl.ExprAsKeyword(expr)
	if name == "" {
		val, diags := expr.Value(nil)
		if diags.HasErrors() || val.IsNull() || !val.Type().Equals(cty.String) {
			return "", hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid type specification",
				Detail:   "The 'type' attribute must be one of the keywords string, number, integer or bool.",
				Subject:  expr.Range().Ptr(),
			}}
		}
		name = val.AsString()
	}
	ft, err := kind.ParseFieldType(name)
	if err != nil {
		return "", hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported field type",
			Detail:   err.Error(),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return ft, nil
}

// isExprDefined reports whether an optional attribute was actually written in
// the file. The decoder fills omitted optional expressions with a
// zero-width placeholder, so a nil check is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName, "hcl_range", r.String(), "is_defined", defined)
	return defined
}
