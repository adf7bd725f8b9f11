package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/chix/chix/pkg/mcpserver"
	"github.com/chix/chix/pkg/tools"
	"github.com/chix/chix/pkg/tools/builtin"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout. This is what MCP clients
should run. The configuration file is watched and reloaded while serving.`,
		GroupID: "server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags)
		},
	}
}

func runServe(cmd *cobra.Command, flags *rootFlags) error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Warn("chix serve speaks MCP on stdin, it is meant to be started by an MCP client")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	toolsets := []tools.ToolSet{builtin.NewLSPTool(flags.store)}
	server, err := mcpserver.New(ctx, Version, flags.store, toolsets...)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The client closing stdin ends the session and everything else.
		defer cancel()
		err := server.Run(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := flags.store.Watch(ctx); err != nil {
			slog.Warn("Configuration changes will not be picked up", "error", err)
		}
		return nil
	})
	return g.Wait()
}
