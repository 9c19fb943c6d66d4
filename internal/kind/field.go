package kind

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// FieldType is the value type of an editable payload field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBool    FieldType = "bool"
)

// ParseFieldType maps a catalog type keyword onto a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch t := FieldType(strings.ToLower(strings.TrimSpace(s))); t {
	case FieldString, FieldNumber, FieldInteger, FieldBool:
		return t, nil
	default:
		return "", fmt.Errorf("unknown field type %q: must be 'string', 'number', 'integer' or 'bool'", s)
	}
}

// CtyType returns the cty type used to convert values into this field type.
func (t FieldType) CtyType() cty.Type {
	switch t {
	case FieldString:
		return cty.String
	case FieldNumber, FieldInteger:
		return cty.Number
	case FieldBool:
		return cty.Bool
	default:
		return cty.DynamicPseudoType
	}
}

// Field is one editable value carried in a node's payload.
type Field struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	Type    FieldType `json:"type"`
	Default any       `json:"default"`
}

// CoerceError reports a value that cannot be stored in a field.
type CoerceError struct {
	Field string
	Type  FieldType
	Err   error
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("field '%s' requires a %s value: %v", e.Field, e.Type, e.Err)
}

func (e *CoerceError) Unwrap() error { return e.Err }

// Coerce converts a raw Go value into the field's canonical Go
// representation: string, float64, int or bool.
func (f Field) Coerce(v any) (any, error) {
	if cv, ok := v.(cty.Value); ok {
		return f.CoerceValue(cv)
	}
	if v == nil {
		return nil, &CoerceError{Field: f.Name, Type: f.Type, Err: fmt.Errorf("value is null")}
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return nil, &CoerceError{Field: f.Name, Type: f.Type, Err: err}
	}
	val, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return nil, &CoerceError{Field: f.Name, Type: f.Type, Err: err}
	}
	return f.CoerceValue(val)
}

// CoerceValue converts a cty value into the field's canonical Go representation.
func (f Field) CoerceValue(val cty.Value) (any, error) {
	if val.IsNull() || !val.IsKnown() {
		return nil, &CoerceError{Field: f.Name, Type: f.Type, Err: fmt.Errorf("value is null or unknown")}
	}
	converted, err := convert.Convert(val, f.Type.CtyType())
	if err != nil {
		return nil, &CoerceError{Field: f.Name, Type: f.Type, Err: err}
	}

	var out any
	switch f.Type {
	case FieldString:
		var s string
		err = gocty.FromCtyValue(converted, &s)
		out = s
	case FieldNumber:
		var n float64
		err = gocty.FromCtyValue(converted, &n)
		out = n
	case FieldInteger:
		var n int
		err = gocty.FromCtyValue(converted, &n)
		out = n
	case FieldBool:
		var b bool
		err = gocty.FromCtyValue(converted, &b)
		out = b
	default:
		err = fmt.Errorf("unsupported field type %q", f.Type)
	}
	if err != nil {
		return nil, &CoerceError{Field: f.Name, Type: f.Type, Err: err}
	}
	return out, nil
}
