package models

import (
	"fmt"
	"time"
)

// RAGKeyword is one scored keyword extracted from an agent's document store.
type RAGKeyword struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// RAGStore tracks the remote file-search store of an agent. One per agent;
// display_name is "agent_{agent_id}".
type RAGStore struct {
	DisplayName   string       `json:"display_name"`
	StoreName     string       `json:"store_name"`
	Keywords      []RAGKeyword `json:"keywords"`
	FileCount     int          `json:"file_count"`
	UploadedFiles []string     `json:"uploaded_files"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// RAGDisplayName returns the canonical display name for an agent's store.
func RAGDisplayName(agentID string) string {
	return fmt.Sprintf("agent_%s", agentID)
}
