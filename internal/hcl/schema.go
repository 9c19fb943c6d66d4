package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is the top level of a catalog file.
type fileRoot struct {
	Kinds []*kindBlock `hcl:"kind,block"`
}

type kindBlock struct {
	Type    string        `hcl:"type,label"`
	Label   string        `hcl:"label"`
	Handler string        `hcl:"handler,optional"`
	Style   string        `hcl:"style,optional"`
	Inputs  []*portBlock  `hcl:"input,block"`
	Outputs []*portBlock  `hcl:"output,block"`
	Fields  []*fieldBlock `hcl:"field,block"`
}

type portBlock struct {
	Name  string `hcl:"name,label"`
	Label string `hcl:"label,optional"`
	Flow  bool   `hcl:"flow,optional"`
}

type fieldBlock struct {
	Name    string         `hcl:"name,label"`
	Type    hcl.Expression `hcl:"type"`
	Label   string         `hcl:"label,optional"`
	Default hcl.Expression `hcl:"default,optional"`
}
