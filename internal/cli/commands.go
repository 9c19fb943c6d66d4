package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vk/nodegrid/internal/app"
	"github.com/vk/nodegrid/internal/document"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
	"github.com/vk/nodegrid/internal/render"
)

func newServeCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve editor sessions over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := r.cfg
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, r.errOut, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			brand.Fprintf(r.out, "nodegrid listening on %s\n", cfg.Listen)
			return a.Serve(ctx)
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on, e.g. :8080.")
	cmd.Flags().Bool("watch", false, "Reload the catalog when *.hcl files change.")
	cmd.Flags().String("storage", "", "Document store: memory, badger or sqlite.")
	cmd.Flags().String("storage-path", "", "Database path for badger or sqlite.")
	return cmd
}

func newKindsCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the node kinds available in the palette",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := app.LoadRegistry(r.ctx(cmd), r.cfg)
			if err != nil {
				return invalid("%v", err)
			}
			for _, def := range reg.Kinds() {
				printKind(r, def)
			}
			return nil
		},
	}
}

func printKind(r *runner, def kind.Definition) {
	brand.Fprintf(r.out, "%-10s", def.Type)
	fmt.Fprintf(r.out, " %s", def.Label)
	if def.Handler != "" && def.Handler != def.Type {
		subtle.Fprintf(r.out, " (handler %s)", def.Handler)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "  in:  %s\n", portList(def.Inputs))
	fmt.Fprintf(r.out, "  out: %s\n", portList(def.Outputs))
	for _, f := range def.Fields {
		fmt.Fprintf(r.out, "  field %s %s", f.Name, f.Type)
		if f.Default != nil {
			subtle.Fprintf(r.out, " = %v", f.Default)
		}
		fmt.Fprintln(r.out)
	}
}

func portList(ports []kind.Port) string {
	if len(ports) == 0 {
		return "-"
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
		if p.Flow {
			names[i] += " ▷"
		}
	}
	return strings.Join(names, ", ")
}

func newValidateCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document>",
		Short: "Check that a graph document loads cleanly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := r.ctx(cmd)
			reg, err := app.LoadRegistry(ctx, r.cfg)
			if err != nil {
				return invalid("%v", err)
			}
			store, err := loadGraph(ctx, r, reg, args[0])
			if err != nil {
				return err
			}
			g := store.Snapshot()
			good.Fprintf(r.out, "✓ %s: %d nodes, %d edges\n", args[0], len(g.Nodes), len(g.Edges))
			return nil
		},
	}
}

func newRenderCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "render <document>",
		Short: "Draw the nodes and edges of a graph document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := r.ctx(cmd)
			reg, err := app.LoadRegistry(ctx, r.cfg)
			if err != nil {
				return invalid("%v", err)
			}
			store, err := loadGraph(ctx, r, reg, args[0])
			if err != nil {
				return err
			}
			views := render.NewRenderer(store, reg)
			defer views.Close()
			f := views.Frame()
			return render.Text(r.out, f.Nodes, f.Edges)
		},
	}
}

func newRunCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Execute a graph document and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := r.ctx(cmd)
			reg, err := app.LoadRegistry(ctx, r.cfg)
			if err != nil {
				return invalid("%v", err)
			}
			store, err := loadGraph(ctx, r, reg, args[0])
			if err != nil {
				return err
			}
			exec := executor.New(reg, executor.WithMaxSteps(r.cfg.Exec.MaxSteps))
			rep, err := exec.Run(ctx, store.Snapshot(), r.out)
			if err != nil {
				var nodeErr *executor.NodeError
				if errors.Is(err, executor.ErrStepLimit) || errors.Is(err, executor.ErrCycle) || errors.As(err, &nodeErr) {
					return invalid("run failed after %d steps: %v", rep.Steps, err)
				}
				return err
			}
			subtle.Fprintf(r.errOut, "%d steps, %d lines of output\n", rep.Steps, len(rep.Output))
			return nil
		},
	}
	cmd.Flags().Int("max-steps", 0, "Stop after this many node executions. Defaults to exec.max_steps.")
	return cmd
}

// loadGraph decodes the document at path and loads it into a fresh store,
// applying the same checks an editor session would.
func loadGraph(ctx context.Context, r *runner, reg *registry.Registry, path string) (*graph.Manager, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := document.Decode(f, document.FormatForPath(path))
	if err != nil {
		return nil, invalid("%s: %v", path, err)
	}
	g, err := document.Deserialize(doc, reg)
	if err != nil {
		return nil, invalid("%s: %v", path, err)
	}
	store := graph.New(
		graph.WithPolicy(graph.Policy{
			AllowSelfLoops:       r.cfg.Graph.AllowSelfLoops,
			RejectDuplicateEdges: r.cfg.Graph.RejectDuplicateEdges,
		}),
		graph.WithSchema(reg),
	)
	if err := store.Load(ctx, g); err != nil {
		return nil, invalid("%s: %v", path, err)
	}
	return store, nil
}
