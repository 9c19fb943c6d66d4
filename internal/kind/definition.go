package kind

import (
	"errors"
	"fmt"
	"strings"
)

// Port is a named connection point declared by a node kind.
type Port struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`
	// Flow marks an output that triggers the nodes connected to it when the
	// graph is executed. Ports without it only carry data.
	Flow bool `json:"flow,omitempty" yaml:"flow,omitempty"`
}

// Definition is the schema of one node kind.
type Definition struct {
	// Type is the unique tag carried by palette drags, e.g. "loop".
	Type  string `json:"type"`
	Label string `json:"label"`
	// Style is a presentation hint such as "info" or "warning".
	Style string `json:"style,omitempty"`
	// Handler names the registered execution handler. Empty means Type.
	Handler string  `json:"handler,omitempty"`
	Inputs  []Port  `json:"inputs"`
	Outputs []Port  `json:"outputs"`
	Fields  []Field `json:"fields,omitempty"`
}

// HandlerName returns the name of the execution handler for this kind.
func (d Definition) HandlerName() string {
	if d.Handler != "" {
		return d.Handler
	}
	return d.Type
}

// Clone returns a deep copy so that callers can never alias the registered schema.
func (d Definition) Clone() Definition {
	c := d
	c.Inputs = ClonePorts(d.Inputs)
	c.Outputs = ClonePorts(d.Outputs)
	if d.Fields != nil {
		c.Fields = make([]Field, len(d.Fields))
		copy(c.Fields, d.Fields)
	}
	return c
}

// ClonePorts copies a port list.
func ClonePorts(ports []Port) []Port {
	if ports == nil {
		return nil
	}
	out := make([]Port, len(ports))
	copy(out, ports)
	return out
}

// DefaultPayload builds a fresh payload holding every field's default.
func (d Definition) DefaultPayload() map[string]any {
	payload := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		if f.Default != nil {
			payload[f.Name] = f.Default
		}
	}
	return payload
}

// Field looks up an editable field by name.
func (d Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Input looks up an input port by name.
func (d Definition) Input(name string) (Port, bool) {
	return findPort(d.Inputs, name)
}

// Output looks up an output port by name.
func (d Definition) Output(name string) (Port, bool) {
	return findPort(d.Outputs, name)
}

// HasFlowOutput reports whether any output of the kind triggers execution.
func (d Definition) HasFlowOutput() bool {
	for _, p := range d.Outputs {
		if p.Flow {
			return true
		}
	}
	return false
}

// Validate checks the structural rules every registered kind must satisfy.
func (d Definition) Validate() error {
	var errs []string
	if strings.TrimSpace(d.Type) == "" {
		errs = append(errs, "type tag is empty")
	}
	if strings.TrimSpace(d.Label) == "" {
		errs = append(errs, "label is empty")
	}
	errs = append(errs, checkPorts("input", d.Inputs)...)
	errs = append(errs, checkPorts("output", d.Outputs)...)

	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			errs = append(errs, "field with empty name")
			continue
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate field '%s'", f.Name))
		}
		seen[f.Name] = struct{}{}
		if _, err := ParseFieldType(string(f.Type)); err != nil {
			errs = append(errs, fmt.Sprintf("field '%s': %v", f.Name, err))
			continue
		}
		if f.Default != nil {
			if _, err := f.Coerce(f.Default); err != nil {
				errs = append(errs, fmt.Sprintf("field '%s': invalid default: %v", f.Name, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("node kind '%s': %w", d.Type, errors.New(strings.Join(errs, "; ")))
	}
	return nil
}

func checkPorts(side string, ports []Port) []string {
	var errs []string
	seen := make(map[string]struct{}, len(ports))
	for _, p := range ports {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("%s port with empty name", side))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate %s port '%s'", side, p.Name))
		}
		seen[p.Name] = struct{}{}
	}
	return errs
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}
