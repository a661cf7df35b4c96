package repo

import (
	"context"

	"github.com/protagolabs/agentcore/pkg/database"
)

// AwarenessRepo stores the free-text self-model of an AwarenessModule
// instance.
type AwarenessRepo struct {
	store *database.Store
}

// NewAwarenessRepo creates an AwarenessRepo.
func NewAwarenessRepo(store *database.Store) *AwarenessRepo {
	return &AwarenessRepo{store: store}
}

// Get returns the awareness text, empty when never written.
func (r *AwarenessRepo) Get(ctx context.Context, instanceID string) (string, error) {
	row, err := r.store.GetOne(ctx, "instance_awareness", map[string]any{"instance_id": instanceID})
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return rowString(row, "awareness"), nil
}

// Save upserts the awareness text.
func (r *AwarenessRepo) Save(ctx context.Context, instanceID, agentID, awareness string) error {
	_, err := r.store.Upsert(ctx, "instance_awareness", map[string]any{
		"instance_id": instanceID,
		"agent_id":    agentID,
		"awareness":   awareness,
	}, "instance_id")
	return err
}
