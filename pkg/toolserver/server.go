// Package toolserver provides a lightweight HTTP server that exposes the chix
// tools to callers that do not speak MCP.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/chix/chix/pkg/tools"
)

// Server is a lightweight HTTP server that exposes tools for remote invocation.
type Server struct {
	toolsets []*tools.StartableToolSet
}

// CallToolRequest is the request body for calling a tool.
type CallToolRequest struct {
	Arguments string `json:"arguments"` // JSON-encoded arguments
}

// CallToolResponse is the response from calling a tool.
type CallToolResponse struct {
	Output  string `json:"output"`
	IsError bool   `json:"isError,omitempty"`
}

// ToolInfo describes one tool in the GET /tools listing.
type ToolInfo struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Parameters  map[string]any        `json:"parameters"`
	Annotations tools.ToolAnnotations `json:"annotations"`
}

// ErrorResponse represents an error response from the server.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates a tool server over toolsets. Toolsets implementing
// tools.Startable are started on first use.
func New(toolsets ...tools.ToolSet) *Server {
	s := &Server{}
	for _, ts := range toolsets {
		s.toolsets = append(s.toolsets, tools.NewStartable(ts))
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /tools/{tool}", s.handleCallTool)

	return mux
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	slog.Info("Tool server listening", "addr", ln.Addr().String())
	defer s.stop(context.WithoutCancel(ctx))
	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) stop(ctx context.Context) {
	for _, ts := range s.toolsets {
		if err := ts.Stop(ctx); err != nil {
			slog.Warn("Failed to stop toolset", "error", err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	all, err := s.tools(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing tools: %v", err))
		return
	}

	infos := make([]ToolInfo, 0, len(all))
	for _, tool := range all {
		schema, err := tools.SchemaToMap(tool.Parameters)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("converting schema of %s: %v", tool.Name, err))
			return
		}
		infos = append(infos, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
			Annotations: tool.Annotations,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(infos)
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	toolName := r.PathValue("tool")

	var req CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	all, err := s.tools(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing tools: %v", err))
		return
	}
	tool := tools.Find(all, toolName)
	if tool == nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("tool %q not found", toolName))
		return
	}

	if err := tools.ValidateArguments(tool, req.Arguments); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.callTool(ctx, tool, req.Arguments)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("tool execution failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(CallToolResponse{
		Output:  result.Output,
		IsError: result.IsError,
	})
}

// tools lists the tools of every toolset that starts. A toolset that fails
// to start is skipped and retried on the next request.
func (s *Server) tools(ctx context.Context) ([]tools.Tool, error) {
	var all []tools.Tool
	for _, ts := range s.toolsets {
		if err := ts.Start(ctx); err != nil {
			slog.Warn("Toolset failed to start", "error", err)
			continue
		}
		toolList, err := ts.Tools(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, toolList...)
	}
	return all, nil
}

func (s *Server) callTool(ctx context.Context, tool *tools.Tool, arguments string) (*tools.ToolCallResult, error) {
	if tool.Handler == nil {
		return nil, fmt.Errorf("tool %q has no handler", tool.Name)
	}

	return tool.Handler(ctx, tools.ToolCall{
		ID:   "toolserver-call",
		Type: "function",
		Function: tools.FunctionCall{
			Name:      tool.Name,
			Arguments: arguments,
		},
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
