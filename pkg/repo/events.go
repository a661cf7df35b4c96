package repo

import (
	"context"
	"fmt"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// EventRepo manages the append-only event log of agent turns.
type EventRepo struct {
	store *database.Store
}

// NewEventRepo creates an EventRepo.
func NewEventRepo(store *database.Store) *EventRepo {
	return &EventRepo{store: store}
}

// Create persists a completed turn.
func (r *EventRepo) Create(ctx context.Context, ev *models.Event) error {
	if ev.NarrativeID == "" {
		return NewValidationError("narrative_id", "required")
	}
	if ev.EventID == "" {
		ev.EventID = models.NewID(models.PrefixEvent)
	}
	if ev.TriggerSource == "" {
		ev.TriggerSource = models.WorkingSourceChat
	}
	return r.store.Insert(ctx, "events", map[string]any{
		"event_id":       ev.EventID,
		"narrative_id":   ev.NarrativeID,
		"agent_id":       ev.AgentID,
		"user_id":        ev.UserID,
		"trigger":        ev.Trigger,
		"trigger_source": string(ev.TriggerSource),
		"final_output":   ev.FinalOutput,
		"event_log":      mustJSON(ev.EventLog),
	})
}

// Get loads one event.
func (r *EventRepo) Get(ctx context.Context, eventID string) (*models.Event, error) {
	row, err := r.store.GetOne(ctx, "events", map[string]any{"event_id": eventID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return eventFromRow(row), nil
}

// Recent returns the narrative's latest events, newest first, capped at limit.
func (r *EventRepo) Recent(ctx context.Context, narrativeID string, limit int) ([]*models.Event, error) {
	rows, err := r.store.Get(ctx, "events",
		map[string]any{"narrative_id": narrativeID},
		&database.QueryOpts{OrderBy: "created_at", Desc: true, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventFromRow(row))
	}
	return out, nil
}

// RecentForUser returns the latest events across all of the agent's
// narratives for one user, newest first. Feeds cross-narrative short-term
// memory.
func (r *EventRepo) RecentForUser(ctx context.Context, agentID, userID string, limit int) ([]*models.Event, error) {
	rows, err := r.store.Get(ctx, "events",
		map[string]any{"agent_id": agentID, "user_id": userID},
		&database.QueryOpts{OrderBy: "created_at", Desc: true, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventFromRow(row))
	}
	return out, nil
}

func eventFromRow(row database.Row) *models.Event {
	ev := &models.Event{
		EventID:       rowString(row, "event_id"),
		NarrativeID:   rowString(row, "narrative_id"),
		AgentID:       rowString(row, "agent_id"),
		UserID:        rowString(row, "user_id"),
		Trigger:       rowString(row, "trigger"),
		TriggerSource: models.WorkingSource(rowString(row, "trigger_source")),
		FinalOutput:   rowString(row, "final_output"),
		CreatedAt:     rowTime(row, "created_at"),
	}
	decodeJSON(row, "event_log", &ev.EventLog)
	return ev
}
