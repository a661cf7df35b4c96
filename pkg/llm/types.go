// Package llm provides the language-model abstraction used by planning,
// agent turns, and job interpretation.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Assistant messages that requested tools carry the calls; tool
	// messages carry the call id they answer.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema
}

// Request is a single completion call.
type Request struct {
	Messages    []Message
	Tools       []ToolDef
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// Response is the full, non-streamed result of a completion.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// StreamChunk is one increment of a streamed completion. Exactly one of the
// fields is meaningful per chunk.
type StreamChunk struct {
	Delta     string
	ToolCalls []ToolCall // delivered once, before Done
	Done      bool
	Err       error
}

// Provider is the model backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Complete runs a blocking completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream runs a streaming completion. The channel is closed after the
	// final chunk; a chunk with Err set terminates the stream.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Embed returns one embedding vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
