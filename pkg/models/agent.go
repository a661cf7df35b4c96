package models

import "time"

// Agent is the logical autonomous actor. Owned by its creator; visible to all
// users when public.
type Agent struct {
	AgentID     string    `json:"agent_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VisibleTo reports whether the user may see this agent.
func (a *Agent) VisibleTo(userID string) bool {
	return a.IsPublic || a.CreatedBy == userID
}
