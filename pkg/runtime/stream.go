// Package runtime executes agent turns: it assembles the turn context from
// the loaded module instances, runs the agent loop against the model with
// MCP tools, persists the resulting event, and fires post-hooks.
package runtime

import (
	"strings"

	"github.com/protagolabs/agentcore/pkg/models"
)

// StreamType tags a streamed turn update.
type StreamType string

// Stream message types, in the order a client typically sees them.
const (
	StreamStatus     StreamType = "status"
	StreamAgentDelta StreamType = "agent_delta"
	StreamToolCall   StreamType = "tool_call"
	StreamToolResult StreamType = "tool_result"
	StreamComplete   StreamType = "complete"
	StreamError      StreamType = "error"
)

// StreamMessage is one update pushed to a connected client during a turn.
type StreamMessage struct {
	Type       StreamType `json:"type"`
	Step       string     `json:"step,omitempty"`
	Content    string     `json:"content,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolInput  string     `json:"tool_input,omitempty"`
	ToolOutput string     `json:"tool_output,omitempty"`
	EventID    string     `json:"event_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StreamFunc receives turn updates. May be nil when nobody is watching.
type StreamFunc func(StreamMessage)

func (f StreamFunc) emit(msg StreamMessage) {
	if f != nil {
		f(msg)
	}
}

// RenderTrace flattens an event log into readable markdown. The job engine
// feeds this to the run interpreter.
func RenderTrace(log []models.EventLogEntry) string {
	var b strings.Builder
	for _, entry := range log {
		switch entry.Kind {
		case models.EventLogToolCall:
			b.WriteString("- tool `" + entry.ToolName + "`")
			if entry.ToolInput != "" {
				b.WriteString(" input: " + truncate(entry.ToolInput, 300))
			}
			if entry.ToolOutput != "" {
				b.WriteString("\n  output: " + truncate(entry.ToolOutput, 500))
			}
			b.WriteString("\n")
		case models.EventLogThinking:
			b.WriteString("- thinking: " + truncate(entry.Content, 300) + "\n")
		case models.EventLogProgress:
			b.WriteString("- " + entry.Step + ": " + truncate(entry.Content, 200) + "\n")
		case models.EventLogError:
			b.WriteString("- error: " + entry.Content + "\n")
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
