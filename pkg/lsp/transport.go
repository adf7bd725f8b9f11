package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const (
	headerContentLength = "Content-Length"

	// maxContentLength guards against allocating for a corrupt header.
	maxContentLength = 64 << 20
)

// Transport frames JSON-RPC messages with Content-Length headers.
// Writes are serialized; reads must come from a single goroutine.
type Transport struct {
	sendMu sync.Mutex
	w      *bufio.Writer
	r      *bufio.Reader
}

func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		w: bufio.NewWriter(w),
		r: bufio.NewReader(r),
	}
}

// WriteMessage marshals msg and writes it as one frame.
func (t *Transport) WriteMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return newError(KindProtocol, "marshal message", err)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if _, err := fmt.Fprintf(t.w, "%s: %d\r\n\r\n", headerContentLength, len(data)); err != nil {
		return newError(KindCommunication, "write header", err)
	}
	if _, err := t.w.Write(data); err != nil {
		return newError(KindCommunication, "write body", err)
	}
	if err := t.w.Flush(); err != nil {
		return newError(KindCommunication, "flush", err)
	}
	return nil
}

// ReadMessage reads one frame and returns its JSON body.
func (t *Transport) ReadMessage() (json.RawMessage, error) {
	contentLength := -1
	for {
		line, err := t.r.ReadString('\n')
		if err != nil {
			return nil, newError(KindCommunication, "read header", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), headerContentLength) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, newError(KindProtocol, "read header", fmt.Errorf("invalid Content-Length: %w", err))
		}
		if n < 0 || n > maxContentLength {
			return nil, newError(KindProtocol, "read header", fmt.Errorf("invalid Content-Length: %d", n))
		}
		contentLength = n
	}

	if contentLength < 0 {
		return nil, newError(KindProtocol, "read header", errors.New("missing Content-Length header"))
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.r, body); err != nil {
		return nil, newError(KindCommunication, "read body", err)
	}
	if !json.Valid(body) {
		return nil, newError(KindProtocol, "read body", errors.New("invalid JSON"))
	}
	return body, nil
}
