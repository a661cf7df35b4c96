package models

import "time"

// SocialEntity is a person or organization tracked by a SocialNetworkModule
// instance. Unique on (instance_id, entity_id).
type SocialEntity struct {
	EntityID            string         `json:"entity_id"`
	InstanceID          string         `json:"instance_id"`
	EntityName          string         `json:"entity_name"`
	EntityDescription   string         `json:"entity_description"`
	EntityType          string         `json:"entity_type"`
	IdentityInfo        map[string]any `json:"identity_info"`
	ContactInfo         map[string]any `json:"contact_info"`
	Tags                []string       `json:"tags"`
	RelationshipStrength float64       `json:"relationship_strength"`
	InteractionCount    int            `json:"interaction_count"`
	LastInteractionTime *time.Time     `json:"last_interaction_time,omitempty"`
	Persona             string         `json:"persona,omitempty"`
	RelatedJobIDs       []string       `json:"related_job_ids"`
	ExpertiseDomains    []string       `json:"expertise_domains"`
	Embedding           []float32      `json:"embedding,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
