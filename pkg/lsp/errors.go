package lsp

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the client can report.
type Kind int

const (
	KindSpawnFailed Kind = iota + 1
	KindCommunication
	KindProtocol
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindSpawnFailed:
		return "spawn failed"
	case KindCommunication:
		return "communication"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrSpawnFailed   = errors.New("failed to spawn LSP process")
	ErrCommunication = errors.New("LSP communication error")
	ErrProtocol      = errors.New("LSP protocol error")
	ErrTimeout       = errors.New("LSP request timeout")
)

var (
	// ErrAlreadyInitialized is returned when Initialize is called twice on a connection.
	ErrAlreadyInitialized = errors.New("LSP connection already initialized")

	// ErrDocumentAlreadyOpen is returned when a session tries to open a second document.
	ErrDocumentAlreadyOpen = errors.New("a document is already open on this session")
)

func (k Kind) sentinel() error {
	switch k {
	case KindSpawnFailed:
		return ErrSpawnFailed
	case KindCommunication:
		return ErrCommunication
	case KindProtocol:
		return ErrProtocol
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// Error is the single error type returned by the client.
type Error struct {
	Kind Kind
	// Op is what was being done: a frame operation ("read header") or an LSP method.
	Op  string
	Err error
}

func (e *Error) Error() string {
	prefix := "LSP error"
	if s := e.Kind.sentinel(); s != nil {
		prefix = s.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d", e.Code)
	}
	return e.Message
}

// JSON-RPC error codes used by the client.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)
