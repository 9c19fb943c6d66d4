// Package render turns node instances into view models for the front end
// and the terminal.
//
// Render is a pure function of an instance and its kind. It never looks at
// the type tag to decide layout: header, body control and port handles all
// come from the kind's declared schema and style hint.
package render

import (
	"fmt"

	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/node"
)

// Side is the node edge a handle sits on.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// HandleView is one port handle. Offset is the fractional position along
// the node's side, in (0, 1).
type HandleView struct {
	Port   string  `json:"port"`
	Label  string  `json:"label"`
	Side   Side    `json:"side"`
	Offset float64 `json:"offset"`
	Flow   bool    `json:"flow,omitempty"`
}

// ControlKind is the widget used to edit a payload field.
type ControlKind string

const (
	ControlText     ControlKind = "text"
	ControlNumber   ControlKind = "number"
	ControlCheckbox ControlKind = "checkbox"
)

// ControlView is the body control of a node.
type ControlView struct {
	Field string      `json:"field"`
	Label string      `json:"label"`
	Kind  ControlKind `json:"kind"`
	Value any         `json:"value"`
}

// NodeView is the visual tree of one node.
type NodeView struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Label    string        `json:"label"`
	Style    string        `json:"style,omitempty"`
	Position node.Position `json:"position"`
	Control  *ControlView  `json:"control,omitempty"`
	Inputs   []HandleView  `json:"inputs"`
	Outputs  []HandleView  `json:"outputs"`
}

// Handle finds a handle by side and port name.
func (v NodeView) Handle(side Side, port string) (HandleView, bool) {
	handles := v.Inputs
	if side == Right {
		handles = v.Outputs
	}
	for _, h := range handles {
		if h.Port == port {
			return h, true
		}
	}
	return HandleView{}, false
}

// EdgeView is a drawn connection.
type EdgeView struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourcePort string `json:"sourcePort"`
	Target     string `json:"target"`
	TargetPort string `json:"targetPort"`
}

// EdgeOf converts a store edge.
func EdgeOf(e graph.Edge) EdgeView {
	return EdgeView{ID: e.ID, Source: e.Source, SourcePort: e.SourcePort, Target: e.Target, TargetPort: e.TargetPort}
}

// Render builds the view of inst. Ports come from the instance's own
// snapshot; labels of the header and control come from def.
func Render(inst node.Instance, def kind.Definition) NodeView {
	label := def.Label
	if label == "" {
		label = inst.Type
	}
	v := NodeView{
		ID:       inst.ID,
		Type:     inst.Type,
		Label:    label,
		Style:    def.Style,
		Position: inst.Position,
		Inputs:   handles(inst.Inputs, Left),
		Outputs:  handles(inst.Outputs, Right),
	}
	if len(def.Fields) > 0 {
		f := def.Fields[0]
		v.Control = &ControlView{
			Field: f.Name,
			Label: fieldLabel(f),
			Kind:  controlKind(f.Type),
			Value: inst.Payload[f.Name],
		}
	}
	return v
}

// HandleOffset is the fractional position of the index-th of count handles.
func HandleOffset(index, count int) float64 {
	return float64(index+1) / float64(count+1)
}

func handles(ports []kind.Port, side Side) []HandleView {
	out := make([]HandleView, len(ports))
	for i, p := range ports {
		label := p.Label
		if label == "" {
			label = p.Name
		}
		out[i] = HandleView{Port: p.Name, Label: label, Side: side, Offset: HandleOffset(i, len(ports)), Flow: p.Flow}
	}
	return out
}

func fieldLabel(f kind.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

func controlKind(t kind.FieldType) ControlKind {
	switch t {
	case kind.FieldNumber, kind.FieldInteger:
		return ControlNumber
	case kind.FieldBool:
		return ControlCheckbox
	default:
		return ControlText
	}
}

// String is a one-line summary used in logs.
func (v NodeView) String() string {
	return fmt.Sprintf("%s[%s] at (%g, %g)", v.Label, v.ID, v.Position.X, v.Position.Y)
}
