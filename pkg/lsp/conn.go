package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/chix/chix/pkg/lsp"

// Conn is a connection to a language server that has not been initialized
// yet. Call Initialize to get a Session.
//
// A Conn carries one outstanding request at a time. Once a request times
// out or the stream fails, the connection is broken and every later call
// returns the error that broke it.
type Conn struct {
	id        string
	transport *Transport
	stdin     io.Closer
	proc      *process
	opts      options
	logger    *slog.Logger
	tracer    trace.Tracer

	nextID      atomic.Int64
	initialized atomic.Bool

	// callMu serializes exchanges so only one goroutine consumes frames.
	callMu sync.Mutex

	queue    frameQueue
	readDone chan struct{}
	readErr  error

	diagnostics *diagnosticsCache

	stdinOnce sync.Once
	closeOnce sync.Once
	brokenMu  sync.Mutex
	broken    error
}

// NewConn returns a connection speaking LSP over r and w. Closing the
// connection closes w. Use Spawn to start a server process instead.
func NewConn(r io.Reader, w io.WriteCloser, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	c := &Conn{
		id:          id,
		transport:   NewTransport(r, w),
		stdin:       w,
		opts:        o,
		logger:      o.logger.With("conn", id),
		tracer:      o.tracerProvider.Tracer(tracerName),
		readDone:    make(chan struct{}),
		diagnostics: newDiagnosticsCache(),
	}
	c.queue.ready = make(chan struct{}, 1)

	go c.pump()
	return c
}

// ID identifies the connection in logs and traces.
func (c *Conn) ID() string {
	return c.id
}

// pump reads frames until the stream fails and queues them for the
// goroutine currently waiting on the connection.
func (c *Conn) pump() {
	defer close(c.readDone)
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		c.logger.Debug("LSP message received", "message", string(data))
		c.queue.push(data)
	}
}

// frameQueue is unbounded so the reader never blocks on a slow consumer.
type frameQueue struct {
	mu     sync.Mutex
	frames []json.RawMessage
	ready  chan struct{}
}

func (q *frameQueue) push(frame json.RawMessage) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *frameQueue) pop() (json.RawMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

// call sends a request and waits for its response under the request timeout.
func (c *Conn) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.callTimeout(ctx, method, params, c.opts.requestTimeout)
}

func (c *Conn) callTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	id := c.nextID.Add(1)

	ctx, span := c.tracer.Start(ctx, "lsp."+method, trace.WithAttributes(
		attribute.String("lsp.method", method),
		attribute.Int64("lsp.request_id", id),
		attribute.String("lsp.conn", c.id),
	))
	defer span.End()

	result, err := c.exchange(ctx, id, method, params, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (c *Conn) exchange(ctx context.Context, id int64, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if err := c.err(); err != nil {
		return nil, err
	}

	if err := c.transport.WriteMessage(request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		return nil, c.fail(err)
	}
	c.logger.Debug("LSP request sent", "method", method, "id", id)

	return c.await(ctx, id, method, timeout)
}

// await consumes frames until the response for id arrives. Notifications
// seen on the way are applied before waiting continues.
func (c *Conn) await(ctx context.Context, id int64, method string, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if frame, ok := c.queue.pop(); ok {
			msg, err := decodeInbound(frame)
			if err != nil {
				return nil, c.fail(err)
			}
			if msg.isNotification() {
				c.handleInbound(msg)
				continue
			}
			got, ok := msg.numericID()
			if !ok || got != id {
				c.logger.Debug("Ignoring response for another request", "expected", id, "id", string(msg.ID))
				continue
			}
			if msg.Error != nil {
				return nil, newError(KindProtocol, method, msg.Error)
			}
			return msg.result(), nil
		}

		select {
		case <-c.queue.ready:
		case <-c.readDone:
			if c.queue.empty() {
				return nil, c.fail(c.readErr)
			}
		case <-timer.C:
			return nil, c.abandon(newError(KindTimeout, method, fmt.Errorf("no response after %s", timeout)))
		case <-ctx.Done():
			return nil, c.abandon(newError(KindTimeout, method, ctx.Err()))
		}
	}
}

// poll waits up to d for one frame and applies it. It reports whether a
// frame arrived. Responses are dropped since no request is pending.
func (c *Conn) poll(ctx context.Context, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		if frame, ok := c.queue.pop(); ok {
			msg, err := decodeInbound(frame)
			if err != nil {
				return false, c.fail(err)
			}
			if msg.isNotification() {
				c.handleInbound(msg)
			}
			return true, nil
		}

		select {
		case <-c.queue.ready:
		case <-c.readDone:
			if c.queue.empty() {
				return false, c.fail(c.readErr)
			}
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (q *frameQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) == 0
}

func (c *Conn) notify(method string, params any) error {
	if err := c.err(); err != nil {
		return err
	}
	if err := c.transport.WriteMessage(notification{JSONRPC: jsonrpcVersion, Method: method, Params: params}); err != nil {
		return c.fail(err)
	}
	c.logger.Debug("LSP notification sent", "method", method)
	return nil
}

// handleInbound applies a notification, or rejects a request the server
// sent to us since the client implements no server-side methods.
func (c *Conn) handleInbound(msg *inboundMessage) {
	if msg.hasID() {
		c.logger.Debug("Rejecting server request", "method", msg.Method)
		err := c.transport.WriteMessage(response{
			JSONRPC: jsonrpcVersion,
			ID:      msg.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method},
		})
		if err != nil {
			c.logger.Debug("Failed to reject server request", "method", msg.Method, "error", err)
		}
		return
	}
	c.handleNotification(msg.Method, msg.Params)
}

// err returns the error that broke the connection, if any.
func (c *Conn) err() error {
	c.brokenMu.Lock()
	defer c.brokenMu.Unlock()
	return c.broken
}

// fail marks the connection broken with err, keeping the first failure.
func (c *Conn) fail(err error) error {
	if err == nil {
		err = newError(KindCommunication, "read", io.EOF)
	}
	c.brokenMu.Lock()
	defer c.brokenMu.Unlock()
	if c.broken == nil {
		c.broken = err
	}
	return err
}

// abandon breaks the connection and tears it down. A request that timed out
// may still be answered later, so the stream cannot be trusted again.
func (c *Conn) abandon(err error) error {
	err = c.fail(err)
	c.logger.Debug("Abandoning LSP connection", "error", err)
	c.teardown()
	return err
}

func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		c.closeStdin()
		if c.proc != nil {
			c.proc.kill()
		}
	})
}

func (c *Conn) closeStdin() {
	c.stdinOnce.Do(func() {
		if err := c.stdin.Close(); err != nil {
			c.logger.Debug("Failed to close LSP stdin", "error", err)
		}
	})
}

// Close abandons the connection without the shutdown handshake, killing the
// server process if there is one. Use Shutdown for an orderly exit.
func (c *Conn) Close() error {
	_ = c.fail(newError(KindCommunication, "close", errors.New("connection closed")))
	c.teardown()
	return nil
}
