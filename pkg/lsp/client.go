package lsp

import (
	"context"
	"encoding/json"
	"os"
)

// Session is an initialized connection. It can open one document.
type Session struct {
	conn *Conn
	// opened guards the one document a session may carry.
	opened chan struct{}
}

// Document is an open text document. Its methods may be called any number
// of times until the connection is shut down.
type Document struct {
	conn *Conn
	uri  string
}

// Initialize performs the initialize handshake. An empty rootURI is sent as
// null. It may be called once per connection.
func (c *Conn) Initialize(ctx context.Context, rootURI string) (*Session, error) {
	if !c.initialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	var root any
	if rootURI != "" {
		root = rootURI
	}
	formats := []string{"plaintext", "markdown"}
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   root,
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"completion": map[string]any{
					"completionItem": map[string]any{
						"documentationFormat": formats,
					},
				},
				"hover": map[string]any{
					"contentFormat": formats,
				},
				"publishDiagnostics": map[string]any{},
			},
		},
	}

	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}

	var initResult struct {
		ServerInfo *struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.logger.Debug("Failed to parse initialize result", "error", err)
	} else if initResult.ServerInfo != nil {
		c.logger.Debug("LSP server initialized", "server", initResult.ServerInfo.Name, "version", initResult.ServerInfo.Version, "rootUri", rootURI)
	}

	if err := c.notify("initialized", map[string]any{}); err != nil {
		return nil, err
	}

	s := &Session{conn: c, opened: make(chan struct{}, 1)}
	s.opened <- struct{}{}
	return s, nil
}

// DidOpen sends the full text of the document at uri as version 1.
func (s *Session) DidOpen(_ context.Context, uri, text string) (*Document, error) {
	select {
	case <-s.opened:
	default:
		return nil, ErrDocumentAlreadyOpen
	}

	err := s.conn.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": s.conn.opts.languageID,
			"version":    1,
			"text":       text,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Document{conn: s.conn, uri: uri}, nil
}

func (d *Document) URI() string {
	return d.uri
}

// Diagnostics returns the latest diagnostics published for the document,
// after giving the server a short window to publish them.
func (d *Document) Diagnostics(ctx context.Context) ([]Diagnostic, error) {
	if err := d.conn.err(); err != nil {
		return nil, err
	}
	d.conn.drainNotifications(ctx)
	return d.conn.diagnostics.get(d.uri), nil
}

func (d *Document) Completion(ctx context.Context, pos Position) ([]CompletionItem, error) {
	result, err := d.conn.call(ctx, "textDocument/completion", d.positionParams(pos))
	if err != nil {
		return nil, err
	}
	return decodeCompletion(result), nil
}

// Hover returns nil when the server has no hover information at pos.
func (d *Document) Hover(ctx context.Context, pos Position) (*HoverResult, error) {
	result, err := d.conn.call(ctx, "textDocument/hover", d.positionParams(pos))
	if err != nil {
		return nil, err
	}
	return decodeHover(result), nil
}

func (d *Document) Definition(ctx context.Context, pos Position) ([]Location, error) {
	result, err := d.conn.call(ctx, "textDocument/definition", d.positionParams(pos))
	if err != nil {
		return nil, err
	}
	return decodeDefinition(result), nil
}

func (d *Document) positionParams(pos Position) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": d.uri},
		"position":     pos,
	}
}

// Shutdown ends the connection: shutdown request, exit notification, then
// waits for the server to exit, killing it after the shutdown timeout.
// Failures are logged and otherwise ignored.
func (c *Conn) Shutdown(ctx context.Context) {
	if c.err() == nil {
		if _, err := c.callTimeout(ctx, "shutdown", nil, c.opts.shutdownTimeout); err != nil {
			c.logger.Debug("LSP shutdown request failed", "error", err)
		}
	}
	// A server that rejected shutdown is still told to exit.
	if c.err() == nil {
		if err := c.notify("exit", nil); err != nil {
			c.logger.Debug("LSP exit notification failed", "error", err)
		}
	}

	c.closeStdin()
	if c.proc != nil {
		if err := c.proc.wait(ctx, c.opts.shutdownTimeout); err != nil {
			c.logger.Debug("LSP server exited with error", "error", err)
		}
	}
	_ = c.Close()
	c.logger.Debug("LSP server stopped")
}
