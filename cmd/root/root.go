package root

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chix/chix/pkg/config"
	"github.com/chix/chix/pkg/telemetry"
)

// Version is set at build time.
var Version = "dev"

type rootFlags struct {
	configPath string
	debug      bool
	otel       bool

	store         *config.Store
	shutdownTrace telemetry.ShutdownFunc
}

// NewRootCmd builds the chix command tree. Running chix without a
// subcommand starts the MCP server.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "chix",
		Short: "Nix language server tools for MCP clients",
		Long: `chix runs a language server for Nix files on demand and exposes diagnostics,
completions, hover and go-to-definition as tools over the Model Context Protocol.`,
		SilenceUsage:      true,
		PersistentPreRunE: flags.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return flags.teardown(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, &flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the configuration file (default $XDG_CONFIG_HOME/chix/config.yaml)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&flags.otel, "otel", false, "Export traces over OTLP/HTTP (configured with OTEL_EXPORTER_OTLP_* variables)")

	cmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "tools", Title: "Tool Commands:"},
	)
	cmd.AddCommand(
		newServeCmd(&flags),
		newToolServerCmd(&flags),
		newLSPCmd(&flags),
		newConfigCmd(&flags),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, red("Error: %s", err))
		return 1
	}
	return 0
}

func (f *rootFlags) setup(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd.ErrOrStderr(), f.debug)

	if f.configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			slog.Warn("Using default configuration", "error", err)
		}
		f.configPath = path
	}
	if f.configPath == "" {
		f.store = config.NewStaticStore(config.Default())
	} else {
		f.store = config.NewStore(f.configPath)
	}

	if f.otel {
		shutdown, err := telemetry.Setup(cmd.Context(), Version)
		if err != nil {
			return err
		}
		f.shutdownTrace = shutdown
	}
	return nil
}

func (f *rootFlags) teardown(ctx context.Context) error {
	if f.shutdownTrace == nil {
		return nil
	}
	return f.shutdownTrace(context.WithoutCancel(ctx))
}

// setupLogging installs the default logger on w. Logs are text on a
// terminal and JSON otherwise. stdout is never used: it carries the MCP
// stream.
func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
