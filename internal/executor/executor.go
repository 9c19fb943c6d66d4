// Package executor runs a node graph.
//
// Execution follows the graph's flow ports. A node whose kind has at least
// one flow output and that no flow edge leads into is a start node; start
// nodes run in reading order (top to bottom, then left to right). Handlers
// emit values one at a time, and every emission on a flow output triggers
// the nodes it is connected to, depth first, before the handler continues.
//
// Data ports do not trigger anything. A node reads a data input either
// from the value that triggered it or by pulling from the connected
// output: pure nodes (kinds without flow outputs, such as variable and
// number) are evaluated on demand, and other nodes supply the last value
// they emitted on that port during the run.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
)

// DefaultMaxSteps bounds a run when no limit is configured.
const DefaultMaxSteps = 10000

var (
	// ErrStepLimit is returned when a run executes more nodes than allowed,
	// usually because flow edges form a cycle, or when a single execution
	// emits more values than that limit.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrCycle is returned when pure nodes pull from each other in a cycle.
	ErrCycle = errors.New("data dependency cycle")
)

// Executor runs graphs.
type Executor interface {
	Run(ctx context.Context, g graph.Graph, out io.Writer) (Report, error)
}

// Catalog resolves node kinds and handlers. *registry.Registry satisfies it.
type Catalog interface {
	Lookup(typeTag string) (kind.Definition, bool)
	HandlerFor(typeTag string) (registry.Handler, error)
}

// Report summarises a run.
type Report struct {
	// Steps counts handler invocations.
	Steps int `json:"steps"`
	// Output holds the lines written by print-like nodes, in order.
	Output []string `json:"output"`
	// Starts lists the start nodes in the order they ran.
	Starts []string `json:"starts"`
}

// NodeError wraps a handler failure with the node that produced it.
type NodeError struct {
	Node string
	Type string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node '%s' (%s): %v", e.Node, e.Type, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Runner is the default Executor.
type Runner struct {
	catalog  Catalog
	maxSteps int
}

// Option customises a Runner.
type Option func(*Runner)

// WithMaxSteps caps the number of handler invocations per run and the
// number of values one invocation may emit. Values below one select
// DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = DefaultMaxSteps
		}
		r.maxSteps = n
	}
}

// New creates a Runner resolving kinds through catalog.
func New(catalog Catalog, opts ...Option) *Runner {
	r := &Runner{catalog: catalog, maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Executor = (*Runner)(nil)
