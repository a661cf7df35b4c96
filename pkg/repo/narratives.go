package repo

import (
	"context"
	"fmt"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// NarrativeRepo manages narratives and their actor lists.
type NarrativeRepo struct {
	store *database.Store
}

// NewNarrativeRepo creates a NarrativeRepo.
func NewNarrativeRepo(store *database.Store) *NarrativeRepo {
	return &NarrativeRepo{store: store}
}

// Create inserts a narrative with the given initial actors. The agent is
// always an actor.
func (r *NarrativeRepo) Create(ctx context.Context, agentID, name, description string, userIDs []string) (*models.Narrative, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	info := models.NarrativeInfo{Name: name, Description: description}
	info.Actors = append(info.Actors, models.Actor{ID: agentID, Type: models.ActorTypeAgent})
	for _, uid := range userIDs {
		if uid != "" {
			info.Actors = append(info.Actors, models.Actor{ID: uid, Type: models.ActorTypeUser})
		}
	}
	nar := &models.Narrative{
		NarrativeID: models.NewID(models.PrefixNarrative),
		AgentID:     agentID,
		Info:        info,
	}
	err := r.store.Insert(ctx, "narratives", map[string]any{
		"narrative_id":   nar.NarrativeID,
		"agent_id":       nar.AgentID,
		"narrative_info": mustJSON(nar.Info),
	})
	if err != nil {
		return nil, err
	}
	return nar, nil
}

// Get loads one narrative.
func (r *NarrativeRepo) Get(ctx context.Context, narrativeID string) (*models.Narrative, error) {
	row, err := r.store.GetOne(ctx, "narratives", map[string]any{"narrative_id": narrativeID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("narrative %s: %w", narrativeID, ErrNotFound)
	}
	return narrativeFromRow(row), nil
}

// ListForAgent returns the agent's narratives, oldest first.
func (r *NarrativeRepo) ListForAgent(ctx context.Context, agentID string) ([]*models.Narrative, error) {
	rows, err := r.store.Get(ctx, "narratives",
		map[string]any{"agent_id": agentID},
		&database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Narrative, 0, len(rows))
	for _, row := range rows {
		out = append(out, narrativeFromRow(row))
	}
	return out, nil
}

// FindForActors returns the agent's narratives whose actor list contains all
// of the given users. Actor lists live inside JSON, so membership is checked
// after load.
func (r *NarrativeRepo) FindForActors(ctx context.Context, agentID string, userIDs []string) ([]*models.Narrative, error) {
	all, err := r.ListForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var out []*models.Narrative
	for _, nar := range all {
		ok := true
		for _, uid := range userIDs {
			if !nar.HasActor(uid, models.ActorTypeUser) && !nar.HasActor(uid, models.ActorTypeParticipant) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, nar)
		}
	}
	return out, nil
}

// GetOrCreate resolves the narrative for (agent, users): the most recent
// narrative containing all users as actors, or a fresh one.
func (r *NarrativeRepo) GetOrCreate(ctx context.Context, agentID string, userIDs []string) (*models.Narrative, bool, error) {
	found, err := r.FindForActors(ctx, agentID, userIDs)
	if err != nil {
		return nil, false, err
	}
	if len(found) > 0 {
		return found[len(found)-1], false, nil
	}
	nar, err := r.Create(ctx, agentID, "", "", userIDs)
	if err != nil {
		return nil, false, err
	}
	return nar, true, nil
}

// AddParticipant appends an actor to the narrative. Re-adding an existing
// actor is a no-op. Participants route messages in but hold no modification
// rights over the narrative's jobs.
func (r *NarrativeRepo) AddParticipant(ctx context.Context, narrativeID, actorID string, typ models.ActorType) error {
	nar, err := r.Get(ctx, narrativeID)
	if err != nil {
		return err
	}
	if !nar.AddActor(actorID, typ) {
		return nil
	}
	return r.SaveInfo(ctx, nar)
}

// SaveInfo persists the narrative_info document.
func (r *NarrativeRepo) SaveInfo(ctx context.Context, nar *models.Narrative) error {
	n, err := r.store.Update(ctx, "narratives",
		map[string]any{"narrative_id": nar.NarrativeID},
		map[string]any{"narrative_info": mustJSON(nar.Info)})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("narrative %s: %w", nar.NarrativeID, ErrNotFound)
	}
	return nil
}

// UpdateSummary replaces the rolling summary inside narrative_info.
func (r *NarrativeRepo) UpdateSummary(ctx context.Context, narrativeID, summary string) error {
	nar, err := r.Get(ctx, narrativeID)
	if err != nil {
		return err
	}
	nar.Info.CurrentSummary = summary
	return r.SaveInfo(ctx, nar)
}

func narrativeFromRow(row database.Row) *models.Narrative {
	nar := &models.Narrative{
		NarrativeID: rowString(row, "narrative_id"),
		AgentID:     rowString(row, "agent_id"),
		CreatedAt:   rowTime(row, "created_at"),
		UpdatedAt:   rowTime(row, "updated_at"),
	}
	decodeJSON(row, "narrative_info", &nar.Info)
	return nar
}
