package lsp

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

const methodPublishDiagnostics = "textDocument/publishDiagnostics"

// diagnosticsCache holds the latest diagnostics published for each URI.
type diagnosticsCache struct {
	mu      sync.RWMutex
	entries map[string][]Diagnostic
}

func newDiagnosticsCache() *diagnosticsCache {
	return &diagnosticsCache{entries: make(map[string][]Diagnostic)}
}

// set replaces the entry for uri.
func (d *diagnosticsCache) set(uri string, diags []Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[uri] = diags
}

func (d *diagnosticsCache) get(uri string) []Diagnostic {
	d.mu.RLock()
	defer d.mu.RUnlock()
	diags := slices.Clone(d.entries[uri])
	if diags == nil {
		return []Diagnostic{}
	}
	return diags
}

func (c *Conn) handleNotification(method string, params json.RawMessage) {
	switch method {
	case methodPublishDiagnostics:
		c.applyDiagnostics(params)
	default:
		c.logger.Debug("Ignoring LSP notification", "method", method)
	}
}

func (c *Conn) applyDiagnostics(params json.RawMessage) {
	var payload struct {
		URI         string            `json:"uri"`
		Diagnostics []json.RawMessage `json:"diagnostics"`
	}
	if err := json.Unmarshal(params, &payload); err != nil || payload.URI == "" {
		c.logger.Debug("Failed to parse diagnostics notification", "error", err)
		return
	}

	diags := make([]Diagnostic, 0, len(payload.Diagnostics))
	for _, raw := range payload.Diagnostics {
		d, ok := decodeDiagnostic(raw)
		if !ok {
			c.logger.Debug("Skipping malformed diagnostic", "uri", payload.URI, "diagnostic", string(raw))
			continue
		}
		diags = append(diags, d)
	}

	c.diagnostics.set(payload.URI, diags)
	c.logger.Debug("Received diagnostics", "uri", payload.URI, "count", len(diags))
}

// drainNotifications gives the server a chance to publish diagnostics it
// computes after didOpen. It settles, then polls until a poll comes back
// empty or the window closes. Seeing nothing is a valid outcome.
func (c *Conn) drainNotifications(ctx context.Context) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	cfg := c.opts.drain
	if c.err() != nil || cfg.Window <= 0 {
		return
	}

	deadline := time.Now().Add(cfg.Window)
	if cfg.Settle > 0 {
		if !sleepCtx(ctx, min(cfg.Settle, cfg.Window)) {
			return
		}
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		wait := remaining
		if cfg.Poll > 0 {
			wait = min(cfg.Poll, remaining)
		}
		got, err := c.poll(ctx, wait)
		if err != nil {
			c.logger.Debug("Stopped draining notifications", "error", err)
			return
		}
		if !got {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
