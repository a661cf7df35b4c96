package models

import "time"

// ModuleInstance is the unit of scheduling, dependency, and memory: one
// concrete instantiation of a module within an agent, optionally scoped to a
// narrative or a job.
type ModuleInstance struct {
	InstanceID  string         `json:"instance_id"`
	ModuleClass ModuleClass    `json:"module_class"`
	AgentID     string         `json:"agent_id"`
	UserID      *string        `json:"user_id,omitempty"` // nil for public (agent-level) instances
	IsPublic    bool           `json:"is_public"`
	Status      InstanceStatus `json:"status"`
	Description string         `json:"description"`

	// Dependencies may only reference JobModule instances; capability modules
	// ignore declared deps.
	Dependencies []string `json:"dependencies"`

	Config map[string]any `json:"config"`
	State  map[string]any `json:"state"`

	Keywords         []string  `json:"keywords"`
	TopicHint        string    `json:"topic_hint"`
	RoutingEmbedding []float32 `json:"routing_embedding,omitempty"`

	// Poller bookkeeping. The work predicate is
	// status != last_polled_status && !callback_processed.
	LastPolledStatus  InstanceStatus `json:"last_polled_status"`
	CallbackProcessed bool           `json:"callback_processed"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// InstanceLink materializes the many-to-many between non-public instances
// and narratives. Public instances are linked implicitly.
type InstanceLink struct {
	InstanceID  string    `json:"instance_id"`
	NarrativeID string    `json:"narrative_id"`
	LinkType    LinkType  `json:"link_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// DependsOn reports whether the instance declares a dependency on id.
func (m *ModuleInstance) DependsOn(id string) bool {
	for _, dep := range m.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// OwnedBy reports whether the instance belongs to the given user. Public
// instances belong to every user of the agent.
func (m *ModuleInstance) OwnedBy(userID string) bool {
	if m.IsPublic || m.UserID == nil {
		return true
	}
	return *m.UserID == userID
}
