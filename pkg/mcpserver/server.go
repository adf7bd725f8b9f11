// Package mcpserver exposes toolsets as a Model Context Protocol server.
package mcpserver

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chix/chix/pkg/config"
	"github.com/chix/chix/pkg/output"
	"github.com/chix/chix/pkg/tools"
)

const serverName = "chix"

// Server serves the tools of its toolsets to one MCP client.
type Server struct {
	server   *mcp.Server
	store    *config.Store
	toolsets []*tools.StartableToolSet
}

// New registers every tool of toolsets on a new MCP server. Toolsets that
// implement tools.Startable are started first; a toolset that fails to
// start is logged and skipped.
func New(ctx context.Context, version string, store *config.Store, toolsets ...tools.ToolSet) (*Server, error) {
	s := &Server{store: store}

	var instructions []string
	var all []tools.Tool
	for _, ts := range toolsets {
		startable := tools.NewStartable(ts)
		if err := startable.Start(ctx); err != nil {
			slog.Warn("Toolset failed to start, its tools are not served", "error", err)
			continue
		}
		s.toolsets = append(s.toolsets, startable)

		toolList, err := startable.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		all = append(all, toolList...)

		if in, ok := tools.As[tools.Instructable](startable); ok {
			instructions = append(instructions, in.Instructions())
		}
	}

	s.server = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, &mcp.ServerOptions{
		Instructions: strings.Join(instructions, "\n\n"),
	})

	for _, tool := range all {
		schema, err := tools.SchemaToMap(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("converting schema of %s: %w", tool.Name, err)
		}
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Title:       tool.Annotations.Title,
			Description: tool.Description,
			InputSchema: schema,
			Annotations: &mcp.ToolAnnotations{
				Title:          tool.Annotations.Title,
				ReadOnlyHint:   tool.Annotations.ReadOnlyHint,
				IdempotentHint: tool.Annotations.IdempotentHint,
				OpenWorldHint:  &tool.Annotations.OpenWorldHint,
			},
		}, s.handler(tool))
		slog.Debug("Registered MCP tool", "tool", tool.Name)
	}

	return s, nil
}

// Run serves over t until the client disconnects or ctx is done, then stops
// the toolsets.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	slog.Info("MCP server started")
	defer s.Stop(context.WithoutCancel(ctx))
	return s.server.Run(ctx, t)
}

// Stop stops every started toolset.
func (s *Server) Stop(ctx context.Context) {
	for _, ts := range s.toolsets {
		if err := ts.Stop(ctx); err != nil {
			slog.Warn("Failed to stop toolset", "error", err)
		}
	}
}

// Connect starts a session over t without blocking.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) handler(tool tools.Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		arguments := string(req.Params.Arguments)
		slog.Debug("Calling tool", "tool", tool.Name, "arguments", arguments)

		if err := tools.ValidateArguments(&tool, arguments); err != nil {
			return errorResult(err.Error()), nil
		}

		result, err := tool.Handler(ctx, tools.ToolCall{
			Type: "function",
			Function: tools.FunctionCall{
				Name:      tool.Name,
				Arguments: arguments,
			},
		})
		if err != nil {
			slog.Error("Tool call failed", "tool", tool.Name, "error", err)
			return errorResult(fmt.Sprintf("tool execution failed: %s", err)), nil
		}

		text, truncated := limitOutput(cmp.Or(result.Output, "no output"), s.maxResponseBytes())
		if truncated {
			slog.Debug("Tool output truncated", "tool", tool.Name, "size", len(result.Output))
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: result.IsError,
		}, nil
	}
}

func (s *Server) maxResponseBytes() int {
	return int(s.store.Get().OutputLimits.MaxResponseBytes)
}

// limitOutput keeps oversized JSON results parseable.
func limitOutput(text string, maxBytes int) (string, bool) {
	if json.Valid([]byte(text)) {
		return output.LimitJSON(text, maxBytes)
	}
	return output.LimitBytes(text, maxBytes)
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
