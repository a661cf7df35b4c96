package models

import "time"

// Actor is a participant entry in a narrative's actor list.
type Actor struct {
	ID   string    `json:"id"`
	Type ActorType `json:"type"`
}

// NarrativeInfo is the JSON document stored on a narrative row.
type NarrativeInfo struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	CurrentSummary string  `json:"current_summary"`
	Actors         []Actor `json:"actors"`
}

// Narrative is the long-lived conversational container scoping actors and
// events between an agent and one or more users. Never implicitly deleted.
type Narrative struct {
	NarrativeID string        `json:"narrative_id"`
	AgentID     string        `json:"agent_id"`
	Info        NarrativeInfo `json:"narrative_info"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// HasActor reports whether id appears in the actor list with the given type.
func (n *Narrative) HasActor(id string, typ ActorType) bool {
	for _, a := range n.Info.Actors {
		if a.ID == id && a.Type == typ {
			return true
		}
	}
	return false
}

// ActorIDs returns the ids of actors with the given type.
func (n *Narrative) ActorIDs(typ ActorType) []string {
	var ids []string
	for _, a := range n.Info.Actors {
		if a.Type == typ {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// AddActor appends an actor if not already present. Returns true when the
// list changed.
func (n *Narrative) AddActor(id string, typ ActorType) bool {
	if n.HasActor(id, typ) {
		return false
	}
	n.Info.Actors = append(n.Info.Actors, Actor{ID: id, Type: typ})
	return true
}

// CanModifyJobs reports whether the user holds modification rights over the
// narrative's jobs. Participants can route messages in but cannot modify.
func (n *Narrative) CanModifyJobs(userID string) bool {
	return n.HasActor(userID, ActorTypeUser)
}
