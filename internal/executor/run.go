package executor

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/registry"
)

// Run executes g from its start nodes and reports what happened. Output
// written by handlers goes to out (which may be nil) and into the report.
func (r *Runner) Run(ctx context.Context, g graph.Graph, out io.Writer) (Report, error) {
	logger := ctxlog.FromContext(ctx)
	rec := &lineRecorder{w: out}
	st := &state{
		runner:   r,
		graph:    g,
		out:      rec,
		emitted:  make(map[portKey]any),
		visiting: make(map[string]bool),
	}

	starts := StartNodes(g)
	rep := Report{Starts: make([]string, 0, len(starts))}
	logger.Info("Run started.", "nodes", len(g.Nodes), "edges", len(g.Edges), "starts", len(starts))

	var err error
	for _, n := range starts {
		rep.Starts = append(rep.Starts, n.ID)
		if err = st.fire(ctx, n, "", nil); err != nil {
			break
		}
	}
	rec.flush()
	rep.Steps = st.steps
	rep.Output = rec.lines
	if err != nil {
		logger.Warn("Run failed.", "steps", rep.Steps, "error", err)
		return rep, err
	}
	logger.Info("Run finished.", "steps", rep.Steps, "lines", len(rep.Output))
	return rep, nil
}

// StartNodes returns the nodes a run begins with, in reading order.
func StartNodes(g graph.Graph) []node.Instance {
	flowTargets := make(map[string]bool)
	for _, e := range g.Edges {
		if src, ok := g.Node(e.Source); ok && isFlow(src, e.SourcePort) {
			flowTargets[e.Target] = true
		}
	}
	var starts []node.Instance
	for _, n := range g.Nodes {
		if hasFlowOutput(n) && !flowTargets[n.ID] {
			starts = append(starts, n)
		}
	}
	slices.SortStableFunc(starts, func(a, b node.Instance) int {
		return cmp.Or(
			cmp.Compare(a.Position.Y, b.Position.Y),
			cmp.Compare(a.Position.X, b.Position.X),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return starts
}

type portKey struct {
	node string
	port string
}

type state struct {
	runner   *Runner
	graph    graph.Graph
	out      *lineRecorder
	steps    int
	emitted  map[portKey]any
	visiting map[string]bool
}

// fire runs n because a flow edge delivered value on its trigger port.
// Every flow emission triggers the connected nodes before the handler
// produces its next value.
func (s *state) fire(ctx context.Context, n node.Instance, trigger string, value any) error {
	inputs, err := s.resolveInputs(ctx, n, trigger, value)
	if err != nil {
		return err
	}
	return s.invoke(ctx, n, inputs, trigger, func(port string, v any) error {
		if !isFlow(n, port) {
			return nil
		}
		for _, e := range s.graph.EdgesFrom(n.ID, port) {
			target, ok := s.graph.Node(e.Target)
			if !ok {
				continue
			}
			if err := s.fire(ctx, target, e.TargetPort, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// invoke calls the handler of n, recording each emission and passing it to
// follow. Errors raised while following an emission end the run as they
// are; only the handler's own failures are wrapped in a NodeError.
func (s *state) invoke(ctx context.Context, n node.Instance, inputs map[string]any, trigger string, follow func(port string, v any) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.steps++
	if s.steps > s.runner.maxSteps {
		return fmt.Errorf("%w: more than %d node executions", ErrStepLimit, s.runner.maxSteps)
	}

	h, err := s.runner.catalog.HandlerFor(n.Type)
	if err != nil {
		return &NodeError{Node: n.ID, Type: n.Type, Err: err}
	}
	ctxlog.FromContext(ctx).Debug("Executing node.", "node", n.ID, "type", n.Type, "trigger", trigger, "step", s.steps)

	var (
		emitted int
		halt    error
	)
	emit := func(port string, v any) error {
		if halt != nil {
			return halt
		}
		if err := ctx.Err(); err != nil {
			halt = err
			return halt
		}
		if _, ok := n.Output(port); !ok {
			halt = &NodeError{Node: n.ID, Type: n.Type, Err: fmt.Errorf("emitted on undeclared output port '%s'", port)}
			return halt
		}
		emitted++
		if emitted > s.runner.maxSteps {
			halt = fmt.Errorf("%w: node '%s' emitted more than %d values", ErrStepLimit, n.ID, s.runner.maxSteps)
			return halt
		}
		s.emitted[portKey{n.ID, port}] = v
		if err := follow(port, v); err != nil {
			halt = err
			return halt
		}
		return nil
	}

	err = h(ctx, &registry.Call{Node: n.Clone(), Inputs: inputs, Trigger: trigger, Out: s.out}, emit)
	if halt != nil {
		return halt
	}
	if err != nil {
		return &NodeError{Node: n.ID, Type: n.Type, Err: err}
	}
	return nil
}

// resolveInputs fills every input port of n. The trigger port takes the
// triggering value; other ports pull from their first connected edge.
func (s *state) resolveInputs(ctx context.Context, n node.Instance, trigger string, value any) (map[string]any, error) {
	inputs := make(map[string]any, len(n.Inputs))
	for _, p := range n.Inputs {
		if trigger != "" && p.Name == trigger {
			inputs[p.Name] = value
			continue
		}
		v, err := s.pull(ctx, n.ID, p.Name)
		if err != nil {
			return nil, err
		}
		inputs[p.Name] = v
	}
	return inputs, nil
}

func (s *state) pull(ctx context.Context, id, port string) (any, error) {
	edges := s.graph.EdgesInto(id, port)
	if len(edges) == 0 {
		return nil, nil
	}
	e := edges[0]
	src, ok := s.graph.Node(e.Source)
	if !ok {
		return nil, nil
	}
	if hasFlowOutput(src) {
		return s.emitted[portKey{src.ID, e.SourcePort}], nil
	}
	return s.evaluate(ctx, src, e.SourcePort)
}

// evaluate runs a pure node on demand and returns its emission on port.
func (s *state) evaluate(ctx context.Context, n node.Instance, port string) (any, error) {
	if s.visiting[n.ID] {
		return nil, fmt.Errorf("%w through node '%s'", ErrCycle, n.ID)
	}
	s.visiting[n.ID] = true
	defer delete(s.visiting, n.ID)

	inputs, err := s.resolveInputs(ctx, n, "", nil)
	if err != nil {
		return nil, err
	}
	var v any
	err = s.invoke(ctx, n, inputs, "", func(p string, value any) error {
		if p == port {
			v = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func isFlow(n node.Instance, port string) bool {
	p, ok := n.Output(port)
	return ok && p.Flow
}

func hasFlowOutput(n node.Instance) bool {
	for _, p := range n.Outputs {
		if p.Flow {
			return true
		}
	}
	return false
}

// lineRecorder tees handler output to w and splits it into lines.
type lineRecorder struct {
	w     io.Writer
	buf   bytes.Buffer
	lines []string
}

func (l *lineRecorder) Write(p []byte) (int, error) {
	if l.w != nil {
		if _, err := l.w.Write(p); err != nil {
			return 0, err
		}
	}
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		l.lines = append(l.lines, string(l.buf.Next(i + 1)[:i]))
	}
	return len(p), nil
}

func (l *lineRecorder) flush() {
	if l.buf.Len() > 0 {
		l.lines = append(l.lines, l.buf.String())
		l.buf.Reset()
	}
	if l.lines == nil {
		l.lines = []string{}
	}
}
