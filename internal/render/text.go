package render

import (
	"fmt"
	"io"
	"strings"
)

// Text draws node cards and an edge list for terminal output:
//
//	┌ Loop ─ loop-1700000000000 ─ (100, 100)
//	│ Repeat: 5
//	│ ● count                body ▶
//	│                        next ▶
//	└
func Text(w io.Writer, views []NodeView, edges []EdgeView) error {
	var b strings.Builder
	for _, v := range views {
		fmt.Fprintf(&b, "┌ %s ─ %s ─ (%g, %g)", v.Label, v.ID, v.Position.X, v.Position.Y)
		if v.Style != "" {
			fmt.Fprintf(&b, " [%s]", v.Style)
		}
		b.WriteString("\n")
		if v.Control != nil {
			fmt.Fprintf(&b, "│ %s: %s\n", v.Control.Label, formatValue(v.Control.Value))
		}
		rows := max(len(v.Inputs), len(v.Outputs))
		for i := range rows {
			left, right := "", ""
			if i < len(v.Inputs) {
				left = "● " + v.Inputs[i].Port
			}
			if i < len(v.Outputs) {
				right = v.Outputs[i].Port + " ▶"
				if v.Outputs[i].Flow {
					right = v.Outputs[i].Port + " ▷"
				}
			}
			fmt.Fprintf(&b, "│ %-20s %s\n", left, right)
		}
		b.WriteString("└\n")
	}
	if len(edges) > 0 {
		b.WriteString("edges:\n")
		for _, e := range edges {
			fmt.Fprintf(&b, "  %s: %s.%s -> %s.%s\n", e.ID, e.Source, e.SourcePort, e.Target, e.TargetPort)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "(empty)"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprint(x)
	}
}
