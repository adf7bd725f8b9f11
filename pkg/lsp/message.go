package lsp

import (
	"encoding/json"
	"errors"
)

const jsonrpcVersion = "2.0"

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is only ever sent to reject server-initiated requests.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *RPCError       `json:"error"`
}

// inboundMessage is any frame read from the server: a response,
// a notification, or a server-to-client request.
type inboundMessage struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

func decodeInbound(data json.RawMessage) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, newError(KindProtocol, "decode message", err)
	}
	if msg.Method == "" && !msg.hasID() {
		return nil, newError(KindProtocol, "decode message", errors.New("message has neither id nor method"))
	}
	return &msg, nil
}

func (m *inboundMessage) hasID() bool {
	return len(m.ID) > 0 && !isNull(m.ID)
}

// isNotification reports whether the frame carries a method. Server requests
// count too: they never resolve one of our requests.
func (m *inboundMessage) isNotification() bool {
	return m.Method != ""
}

// numericID returns the id when it is a JSON integer.
func (m *inboundMessage) numericID() (int64, bool) {
	if !m.hasID() {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return 0, false
	}
	return id, true
}

// result returns the response result, defaulting to JSON null.
func (m *inboundMessage) result() json.RawMessage {
	if len(m.Result) == 0 {
		return json.RawMessage("null")
	}
	return m.Result
}

func isNull(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}
