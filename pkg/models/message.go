package models

import "time"

// InboxMessage is an append-only notification to a user. is_read flips
// one-way false→true.
type InboxMessage struct {
	MessageID   string      `json:"message_id"`
	UserID      string      `json:"user_id"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	SourceType  SourceType  `json:"source_type"`
	SourceID    string      `json:"source_id"`
	EventID     string      `json:"event_id,omitempty"`
	IsRead      bool        `json:"is_read"`
	CreatedAt   time.Time   `json:"created_at"`
}

// AgentMessage is an inbox-shaped message addressed agent-to-agent.
type AgentMessage struct {
	MessageID   string      `json:"message_id"`
	AgentID     string      `json:"agent_id"` // target agent
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	SourceType  SourceType  `json:"source_type"`
	SourceID    string      `json:"source_id"`
	EventID     string      `json:"event_id,omitempty"`
	IfResponse  bool        `json:"if_response"`
	CreatedAt   time.Time   `json:"created_at"`
}
