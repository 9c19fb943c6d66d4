// Package builtin wires the node kinds compiled into the nodegrid binary.
package builtin

import (
	"github.com/vk/nodegrid/internal/registry"
	"github.com/vk/nodegrid/modules/loop"
	"github.com/vk/nodegrid/modules/number"
	"github.com/vk/nodegrid/modules/print"
	"github.com/vk/nodegrid/modules/variable"
)

// CoreModules is the definitive list of node kinds seeded into every
// registry, in palette order.
var CoreModules = []registry.Module{
	&variable.Module{},
	&number.Module{},
	&print.Module{},
	&loop.Module{},
}

// NewRegistry returns a registry seeded with the core kinds followed by any
// extra modules.
func NewRegistry(extra []registry.Module, opts ...registry.Option) *registry.Registry {
	reg := registry.New(opts...)
	for _, mod := range CoreModules {
		mod.Register(reg)
	}
	for _, mod := range extra {
		mod.Register(reg)
	}
	return reg
}
