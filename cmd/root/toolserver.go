package root

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chix/chix/pkg/tools/builtin"
	"github.com/chix/chix/pkg/toolserver"
)

type toolserverFlags struct {
	*rootFlags
	listenAddr string
}

func newToolServerCmd(root *rootFlags) *cobra.Command {
	flags := toolserverFlags{rootFlags: root}

	cmd := &cobra.Command{
		Use:   "tool-server",
		Short: "Start a lightweight HTTP server exposing the tools",
		Long:  `Start a minimal HTTP server that exposes the LSP tools for remote invocation without MCP.`,
		Example: `  # Start tool server on default port
  chix tool-server

  # Start on a specific port
  chix tool-server --listen :9000

  # Listen on a Unix socket
  chix tool-server --listen unix:///var/run/chix.sock

  # Call a tool using curl
  curl -X POST http://localhost:8080/tools/lsp_diagnostics \
    -H "Content-Type: application/json" \
    -d '{"arguments": "{\"file_path\": \"/src/flake.nix\"}"}'`,
		GroupID: "server",
		Args:    cobra.NoArgs,
		RunE:    flags.runToolServerCommand,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", ":8080", "Address to listen on (host:port or unix:///path/to/socket)")

	return cmd
}

func (f *toolserverFlags) runToolServerCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ln, err := listen(ctx, f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}

	s := toolserver.New(builtin.NewLSPTool(f.store))
	fmt.Fprintln(out, "Listening on "+ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(ctx, ln)
	})
	g.Go(func() error {
		_ = f.store.Watch(ctx)
		return nil
	})
	return g.Wait()
}

// listen accepts host:port or unix:///path addresses. A stale socket file
// is removed first.
func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		return lc.Listen(ctx, "unix", path)
	}
	return lc.Listen(ctx, "tcp", addr)
}
