package repo

import (
	"context"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// LinkRepo manages the instance↔narrative link table. Public instances are
// never linked; they attach to every narrative implicitly.
type LinkRepo struct {
	store *database.Store
}

// NewLinkRepo creates a LinkRepo.
func NewLinkRepo(store *database.Store) *LinkRepo {
	return &LinkRepo{store: store}
}

// Link attaches an instance to a narrative, idempotently, refreshing the
// link type when the row already exists.
func (r *LinkRepo) Link(ctx context.Context, instanceID, narrativeID string, typ models.LinkType) error {
	return r.LinkTx(ctx, r.store, instanceID, narrativeID, typ)
}

// LinkTx is Link against an explicit store scope.
func (r *LinkRepo) LinkTx(ctx context.Context, tx *database.Store, instanceID, narrativeID string, typ models.LinkType) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO instance_narrative_links (instance_id, narrative_id, link_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_id, narrative_id)
		DO UPDATE SET link_type = EXCLUDED.link_type, updated_at = now()`,
		instanceID, narrativeID, string(typ))
	return err
}

// Demote marks the link historical. The edge is kept for provenance.
func (r *LinkRepo) Demote(ctx context.Context, instanceID, narrativeID string) error {
	_, err := r.store.Update(ctx, "instance_narrative_links",
		map[string]any{"instance_id": instanceID, "narrative_id": narrativeID},
		map[string]any{"link_type": string(models.LinkTypeHistorical)})
	return err
}

// InstanceIDs returns the ids of instances linked to the narrative,
// optionally restricted to one link type.
func (r *LinkRepo) InstanceIDs(ctx context.Context, narrativeID string, typ models.LinkType) ([]string, error) {
	filters := map[string]any{"narrative_id": narrativeID}
	if typ != "" {
		filters["link_type"] = string(typ)
	}
	rows, err := r.store.Get(ctx, "instance_narrative_links", filters,
		&database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, rowString(row, "instance_id"))
	}
	return ids, nil
}

// NarrativeIDs returns the ids of narratives an instance is linked to.
func (r *LinkRepo) NarrativeIDs(ctx context.Context, instanceID string) ([]string, error) {
	rows, err := r.store.Get(ctx, "instance_narrative_links",
		map[string]any{"instance_id": instanceID}, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, rowString(row, "narrative_id"))
	}
	return ids, nil
}
