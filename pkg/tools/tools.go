package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolHandler runs a tool call. A returned error means the call could not be
// run at all; failures the caller should see belong in the result.
type ToolHandler func(ctx context.Context, toolCall ToolCall) (*ToolCallResult, error)

type Tool struct {
	Name        string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  any             `json:"parameters"`
	Annotations ToolAnnotations `json:"annotations"`
	Handler     ToolHandler     `json:"-"`
}

type ToolAnnotations struct {
	Title          string `json:"title,omitempty"`
	ReadOnlyHint   bool   `json:"readOnlyHint,omitempty"`
	IdempotentHint bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint  bool   `json:"openWorldHint,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name string `json:"name,omitempty"`
	// Arguments is the JSON-encoded argument object.
	Arguments string `json:"arguments,omitempty"`
}

type ToolCallResult struct {
	Output  string `json:"output"`
	IsError bool   `json:"isError,omitempty"`
}

func ResultSuccess(output string) *ToolCallResult {
	return &ToolCallResult{Output: output}
}

func ResultError(output string) *ToolCallResult {
	return &ToolCallResult{Output: output, IsError: true}
}

// ResultJSON returns v encoded as indented JSON.
func ResultJSON(v any) (*ToolCallResult, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return ResultSuccess(string(buf)), nil
}

// NewHandler adapts a typed function into a ToolHandler. Arguments are
// decoded into T; malformed arguments are reported as an error result.
func NewHandler[T any](fn func(context.Context, T) (*ToolCallResult, error)) ToolHandler {
	return func(ctx context.Context, toolCall ToolCall) (*ToolCallResult, error) {
		var args T
		if toolCall.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
				return ResultError(fmt.Sprintf("invalid arguments: %s", err)), nil
			}
		}
		return fn(ctx, args)
	}
}

type ToolSet interface {
	Tools(ctx context.Context) ([]Tool, error)
}

// Startable is implemented by toolsets that hold resources or must be
// checked before their tools are served.
type Startable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Instructable interface {
	Instructions() string
}

// Find returns the tool named name, or nil.
func Find(tools []Tool, name string) *Tool {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}
