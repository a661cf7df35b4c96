package models

import "time"

// MCPUrl is a named remote tool endpoint registered per (agent, user).
type MCPUrl struct {
	MCPID            string           `json:"mcp_id"`
	AgentID          string           `json:"agent_id"`
	UserID           string           `json:"user_id"`
	Name             string           `json:"name"`
	URL              string           `json:"url"`
	Description      string           `json:"description"`
	IsEnabled        bool             `json:"is_enabled"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	LastCheckTime    *time.Time       `json:"last_check_time,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
