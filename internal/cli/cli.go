package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vk/nodegrid/internal/app"
	"github.com/vk/nodegrid/internal/ctxlog"
)

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
	// ExitInvalid reports a document or catalog that failed validation.
	ExitInvalid = 3
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ExitError{Code: ExitInvalid, Message: fmt.Sprintf(format, args...)}
}

// runner carries what every subcommand needs once the root has parsed the
// persistent flags.
type runner struct {
	out, errOut io.Writer

	configPath string

	cfg    app.Config
	logger *slog.Logger
}

// ctx returns cmd's context with the configured logger attached.
func (r *runner) ctx(cmd *cobra.Command) context.Context {
	return ctxlog.WithLogger(cmd.Context(), r.logger)
}

// NewRootCommand builds the nodegrid command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	r := &runner{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "nodegrid",
		Short: "Node graph editor server and tooling",
		Long: `nodegrid serves node graph editing sessions over HTTP and websockets
and works with saved graph documents from the command line.

Node kinds come from the built-in set (variable, number, print, loop) plus
any *.hcl catalog files found in the catalog directory.

Configuration is read from --config (.yaml, .yml or .toml), then .env and
NODEGRID_* environment variables, then flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.loadConfig,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&r.configPath, "config", "c", "", "Path to a .yaml, .yml or .toml config file.")
	flags.String("log-level", "", "Logging level: debug, info, warn or error.")
	flags.String("log-format", "", "Log format: auto, text or json.")
	flags.String("catalog", "", "Directory of *.hcl node kind files.")

	root.AddCommand(
		newServeCommand(r),
		newKindsCommand(r),
		newValidateCommand(r),
		newRenderCommand(r),
		newRunCommand(r),
	)
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCommand(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Cobra reports unknown commands and wrong argument counts as plain errors.
	if strings.HasPrefix(err.Error(), "unknown command") || strings.Contains(err.Error(), "arg(s)") {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return err
}

// flagKeys maps command-line flags onto the config keys they override.
// Subcommand flags are bound only when the running command defines them.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"catalog":      "catalog.dir",
	"listen":       "listen",
	"watch":        "catalog.watch",
	"storage":      "storage.driver",
	"storage-path": "storage.path",
	"max-steps":    "exec.max_steps",
}

func (r *runner) loadConfig(cmd *cobra.Command, _ []string) error {
	bound := make(map[string]*pflag.Flag, len(flagKeys))
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			bound[key] = f
		}
	}
	cfg, err := app.LoadConfig(r.configPath, bound)
	if err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	r.cfg = cfg
	r.logger = app.NewLogger(cfg.Log.Level, cfg.Log.Format, r.errOut)
	r.logger.Debug("Configuration loaded.", "config_file", r.configPath)
	return nil
}

// openFile is os.Open with the error worded for the terminal.
func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExitError{Code: ExitFailure, Message: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	return f, nil
}
