// Package discovery enumerates a target server's callable surface and
// provides the RPC client the rest of the engine uses to exercise it.
package discovery

import (
	"context"
	"encoding/json"
)

const (
	KindTool     = "tool"
	KindPrompt   = "prompt"
	KindResource = "resource"
)

// TargetRef addresses one discovered capability on the target.
type TargetRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

func (r TargetRef) String() string {
	return r.Kind + ":" + r.Name
}

// ToolInfo describes one callable tool exposed by the target.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// PromptInfo describes one templated prompt exposed by the target.
type PromptInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Arguments   []string `json:"arguments,omitempty"`
}

// ResourceInfo describes one addressable resource exposed by the target.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type,omitempty"`
}

// CallOutcome carries the raw result of one tool invocation.
type CallOutcome struct {
	IsError bool            `json:"is_error"`
	Text    string          `json:"text"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// TargetClient is the black-box RPC surface of the server under test.
// Implementations must apply a transport-level timeout per call.
type TargetClient interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	ListPrompts(ctx context.Context) ([]PromptInfo, error)
	ListResources(ctx context.Context) ([]ResourceInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error)
	ReadResource(ctx context.Context, uri string) (*CallOutcome, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*CallOutcome, error)
	Close() error
}
