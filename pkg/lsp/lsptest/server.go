// Package lsptest provides an in-memory language server for testing LSP clients.
package lsptest

import (
	"encoding/json"
	"io"
	"slices"
	"sync"
	"testing"

	"github.com/chix/chix/pkg/lsp"
)

// Message is a frame the server received from the client.
type Message struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *lsp.RPCError   `json:"error,omitempty"`
}

// IsRequest reports whether the client expects a reply.
func (m Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// Handler answers one request or notification. It runs on the server
// goroutine, so frames it sends are ordered before anything read later.
type Handler func(s *Server, msg Message)

// Server is a scripted language server on the far end of a pipe pair.
type Server struct {
	transport *lsp.Transport
	in        io.ReadCloser
	out       io.WriteCloser

	mu       sync.Mutex
	handlers map[string]Handler
	received []Message

	done chan struct{}
}

// New starts a server and returns it with a client connection to it. Both
// are torn down when the test ends. The server answers initialize with {}
// and shutdown with null until those handlers are replaced.
func New(t testing.TB, opts ...lsp.Option) (*Server, *lsp.Conn) {
	t.Helper()

	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	s := &Server{
		transport: lsp.NewTransport(serverIn, serverOut),
		in:        serverIn,
		out:       serverOut,
		handlers:  make(map[string]Handler),
		done:      make(chan struct{}),
	}
	s.Handle("initialize", Result(map[string]any{}))
	s.Handle("shutdown", Result(nil))

	conn := lsp.NewConn(clientIn, clientOut, opts...)
	go s.serve()

	t.Cleanup(func() {
		_ = conn.Close()
		s.Close()
	})
	return s, conn
}

// Handle replaces the handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Result returns a handler replying with result.
func Result(result any) Handler {
	return func(s *Server, msg Message) {
		_ = s.Reply(msg.ID, result)
	}
}

// NoReply returns a handler that never answers.
func NoReply() Handler {
	return func(*Server, Message) {}
}

func (s *Server) serve() {
	defer close(s.done)
	defer s.out.Close()

	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, msg)
		h := s.handlers[msg.Method]
		s.mu.Unlock()

		switch {
		case h != nil:
			h(s, msg)
		case msg.IsRequest():
			_ = s.ReplyError(msg.ID, lsp.CodeMethodNotFound, "method not found: "+msg.Method)
		}
	}
}

func (s *Server) Reply(id json.RawMessage, result any) error {
	return s.Send(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *Server) ReplyError(id json.RawMessage, code int, message string) error {
	return s.Send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
}

func (s *Server) Notify(method string, params any) error {
	return s.Send(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

// PublishDiagnostics sends a textDocument/publishDiagnostics notification.
func (s *Server) PublishDiagnostics(uri string, diagnostics ...map[string]any) error {
	if diagnostics == nil {
		diagnostics = []map[string]any{}
	}
	return s.Notify("textDocument/publishDiagnostics", map[string]any{
		"uri":         uri,
		"diagnostics": diagnostics,
	})
}

// Send writes any JSON value as a frame.
func (s *Server) Send(v any) error {
	return s.transport.WriteMessage(v)
}

// Received returns the frames read so far.
func (s *Server) Received() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// Methods returns the methods of the frames read so far, in order.
func (s *Server) Methods() []string {
	var methods []string
	for _, m := range s.Received() {
		methods = append(methods, m.Method)
	}
	return methods
}

// Close stops the server and waits for it to exit.
func (s *Server) Close() {
	_ = s.in.Close()
	_ = s.out.Close()
	<-s.done
}

// Diagnostic builds a wire diagnostic on a single line.
func Diagnostic(line, startChar, endChar int, severity int, message string) map[string]any {
	d := map[string]any{
		"range": map[string]any{
			"start": map[string]any{"line": line, "character": startChar},
			"end":   map[string]any{"line": line, "character": endChar},
		},
		"message": message,
	}
	if severity > 0 {
		d["severity"] = severity
	}
	return d
}
