package repo

import (
	"context"
	"time"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// SocialRepo manages the social entities tracked by SocialNetworkModule
// instances. Rows are unique on (instance_id, entity_id).
type SocialRepo struct {
	store *database.Store
}

// NewSocialRepo creates a SocialRepo.
func NewSocialRepo(store *database.Store) *SocialRepo {
	return &SocialRepo{store: store}
}

// Get loads one entity of an instance.
func (r *SocialRepo) Get(ctx context.Context, instanceID, entityID string) (*models.SocialEntity, error) {
	row, err := r.store.GetOne(ctx, "instance_social_entities",
		map[string]any{"instance_id": instanceID, "entity_id": entityID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return socialFromRow(row), nil
}

// List returns the instance's entities, strongest relationship first.
func (r *SocialRepo) List(ctx context.Context, instanceID string, limit int) ([]*models.SocialEntity, error) {
	rows, err := r.store.Get(ctx, "instance_social_entities",
		map[string]any{"instance_id": instanceID},
		&database.QueryOpts{OrderBy: "relationship_strength", Desc: true, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]*models.SocialEntity, 0, len(rows))
	for _, row := range rows {
		out = append(out, socialFromRow(row))
	}
	return out, nil
}

// Save upserts an entity row.
func (r *SocialRepo) Save(ctx context.Context, ent *models.SocialEntity) error {
	if ent.InstanceID == "" {
		return NewValidationError("instance_id", "required")
	}
	if ent.EntityID == "" {
		ent.EntityID = models.NewID(models.PrefixEntity)
	}
	data := map[string]any{
		"instance_id":           ent.InstanceID,
		"entity_id":             ent.EntityID,
		"entity_name":           ent.EntityName,
		"entity_description":    ent.EntityDescription,
		"entity_type":           ent.EntityType,
		"identity_info":         mustJSON(orEmptyMap(ent.IdentityInfo)),
		"contact_info":          mustJSON(orEmptyMap(ent.ContactInfo)),
		"tags":                  mustJSON(orEmptyList(ent.Tags)),
		"relationship_strength": ent.RelationshipStrength,
		"interaction_count":     ent.InteractionCount,
		"persona":               ent.Persona,
		"related_job_ids":       mustJSON(orEmptyList(ent.RelatedJobIDs)),
		"expertise_domains":     mustJSON(orEmptyList(ent.ExpertiseDomains)),
	}
	if ent.LastInteractionTime != nil {
		data["last_interaction_time"] = *ent.LastInteractionTime
	}
	if len(ent.Embedding) > 0 {
		data["embedding"] = database.EncodeVector(ent.Embedding)
	}
	_, err := r.store.Exec(ctx, `
		INSERT INTO instance_social_entities
		  (instance_id, entity_id, entity_name, entity_description, entity_type,
		   identity_info, contact_info, tags, relationship_strength,
		   interaction_count, last_interaction_time, persona, related_job_ids,
		   expertise_domains, embedding)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (instance_id, entity_id) DO UPDATE SET
		  entity_name = EXCLUDED.entity_name,
		  entity_description = EXCLUDED.entity_description,
		  entity_type = EXCLUDED.entity_type,
		  identity_info = EXCLUDED.identity_info,
		  contact_info = EXCLUDED.contact_info,
		  tags = EXCLUDED.tags,
		  relationship_strength = EXCLUDED.relationship_strength,
		  interaction_count = EXCLUDED.interaction_count,
		  last_interaction_time = EXCLUDED.last_interaction_time,
		  persona = EXCLUDED.persona,
		  related_job_ids = EXCLUDED.related_job_ids,
		  expertise_domains = EXCLUDED.expertise_domains,
		  embedding = COALESCE(EXCLUDED.embedding, instance_social_entities.embedding),
		  updated_at = now()`,
		ent.InstanceID, ent.EntityID, ent.EntityName, ent.EntityDescription,
		ent.EntityType, data["identity_info"], data["contact_info"], data["tags"],
		ent.RelationshipStrength, ent.InteractionCount, data["last_interaction_time"],
		ent.Persona, data["related_job_ids"], data["expertise_domains"], data["embedding"])
	return err
}

// EnsureEntity guarantees an entity row exists for the id, auto-creating a
// minimal one when absent. Plans may reference people before anything is
// known about them.
func (r *SocialRepo) EnsureEntity(ctx context.Context, instanceID, entityID, name string) (*models.SocialEntity, error) {
	existing, err := r.Get(ctx, instanceID, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	ent := &models.SocialEntity{
		InstanceID: instanceID,
		EntityID:   entityID,
		EntityName: name,
		EntityType: "user",
	}
	if err := r.Save(ctx, ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// RecordInteraction bumps the interaction counter and stamps the time.
func (r *SocialRepo) RecordInteraction(ctx context.Context, instanceID, entityID string) error {
	_, err := r.store.Exec(ctx, `
		UPDATE instance_social_entities
		SET interaction_count = interaction_count + 1,
		    last_interaction_time = now(), updated_at = now()
		WHERE instance_id = $1 AND entity_id = $2`,
		instanceID, entityID)
	return err
}

// AppendRelatedJob links a job id to the entity, idempotently.
func (r *SocialRepo) AppendRelatedJob(ctx context.Context, instanceID, entityID, jobID string) error {
	ent, err := r.Get(ctx, instanceID, entityID)
	if err != nil {
		return err
	}
	if ent == nil {
		ent, err = r.EnsureEntity(ctx, instanceID, entityID, "")
		if err != nil {
			return err
		}
	}
	for _, id := range ent.RelatedJobIDs {
		if id == jobID {
			return nil
		}
	}
	ent.RelatedJobIDs = append(ent.RelatedJobIDs, jobID)
	now := time.Now().UTC()
	ent.LastInteractionTime = &now
	return r.Save(ctx, ent)
}

// Search returns the instance's entities nearest to the query embedding.
func (r *SocialRepo) Search(ctx context.Context, instanceID string, embedding []float32, limit int, minSimilarity float64) ([]*models.SocialEntity, []float64, error) {
	scored, err := r.store.SemanticSearch(ctx, "instance_social_entities", "embedding", embedding,
		map[string]any{"instance_id": instanceID}, limit, minSimilarity)
	if err != nil {
		return nil, nil, err
	}
	ents := make([]*models.SocialEntity, 0, len(scored))
	scores := make([]float64, 0, len(scored))
	for _, s := range scored {
		ents = append(ents, socialFromRow(s.Row))
		scores = append(scores, s.Score)
	}
	return ents, scores, nil
}

func socialFromRow(row database.Row) *models.SocialEntity {
	ent := &models.SocialEntity{
		EntityID:             rowString(row, "entity_id"),
		InstanceID:           rowString(row, "instance_id"),
		EntityName:           rowString(row, "entity_name"),
		EntityDescription:    rowString(row, "entity_description"),
		EntityType:           rowString(row, "entity_type"),
		IdentityInfo:         rowMap(row, "identity_info"),
		ContactInfo:          rowMap(row, "contact_info"),
		Tags:                 rowStringList(row, "tags"),
		RelationshipStrength: rowFloat(row, "relationship_strength"),
		InteractionCount:     rowInt(row, "interaction_count"),
		LastInteractionTime:  rowTimePtr(row, "last_interaction_time"),
		Persona:              rowString(row, "persona"),
		RelatedJobIDs:        rowStringList(row, "related_job_ids"),
		ExpertiseDomains:     rowStringList(row, "expertise_domains"),
		Embedding:            rowVector(row, "embedding"),
		CreatedAt:            rowTime(row, "created_at"),
		UpdatedAt:            rowTime(row, "updated_at"),
	}
	return ent
}
