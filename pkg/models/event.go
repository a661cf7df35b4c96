package models

import "time"

// EventLogKind discriminates entries in an event's execution log.
type EventLogKind string

// Event log entry kinds.
const (
	EventLogToolCall EventLogKind = "tool_call"
	EventLogThinking EventLogKind = "thinking"
	EventLogProgress EventLogKind = "progress"
	EventLogDelta    EventLogKind = "agent_delta"
	EventLogError    EventLogKind = "error"
	EventLogComplete EventLogKind = "complete"
)

// EventLogEntry is one ordered record in an agent turn's trace. Only the
// fields for the entry's kind are populated.
type EventLogEntry struct {
	Kind      EventLogKind `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`

	// tool_call
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`

	// thinking / agent_delta / progress / error / complete
	Content string `json:"content,omitempty"`

	// progress
	Step string `json:"step,omitempty"`
}

// Event records one turn of agent execution.
type Event struct {
	EventID       string          `json:"event_id"`
	NarrativeID   string          `json:"narrative_id"`
	AgentID       string          `json:"agent_id"`
	UserID        string          `json:"user_id"`
	Trigger       string          `json:"trigger"`
	TriggerSource WorkingSource   `json:"trigger_source"`
	FinalOutput   string          `json:"final_output"`
	EventLog      []EventLogEntry `json:"event_log"`
	CreatedAt     time.Time       `json:"created_at"`
}
