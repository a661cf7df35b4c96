package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// AgentRepo manages agent rows and owns the agent cascade delete.
type AgentRepo struct {
	store *database.Store
}

// NewAgentRepo creates an AgentRepo.
func NewAgentRepo(store *database.Store) *AgentRepo {
	return &AgentRepo{store: store}
}

// Create inserts a new agent owned by createdBy.
func (r *AgentRepo) Create(ctx context.Context, name, description, createdBy string, isPublic bool) (*models.Agent, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if createdBy == "" {
		return nil, NewValidationError("created_by", "required")
	}

	agent := &models.Agent{
		AgentID:     models.NewID(models.PrefixAgent),
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		IsPublic:    isPublic,
	}
	err := r.store.Insert(ctx, "agents", map[string]any{
		"agent_id":    agent.AgentID,
		"name":        agent.Name,
		"description": agent.Description,
		"created_by":  agent.CreatedBy,
		"is_public":   agent.IsPublic,
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// Get loads one agent.
func (r *AgentRepo) Get(ctx context.Context, agentID string) (*models.Agent, error) {
	row, err := r.store.GetOne(ctx, "agents", map[string]any{"agent_id": agentID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	return agentFromRow(row), nil
}

// ListVisible returns agents the user created plus all public agents.
func (r *AgentRepo) ListVisible(ctx context.Context, userID string) ([]*models.Agent, error) {
	rows, err := r.store.Query(ctx,
		"SELECT * FROM agents WHERE created_by = $1 OR is_public = TRUE ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}
	agents := make([]*models.Agent, 0, len(rows))
	for _, row := range rows {
		agents = append(agents, agentFromRow(row))
	}
	return agents, nil
}

// Update modifies name/description/is_public. Only the creator may write.
func (r *AgentRepo) Update(ctx context.Context, agentID, userID string, data map[string]any) error {
	agent, err := r.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.CreatedBy != userID {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotAuthorized)
	}
	allowed := map[string]any{}
	for _, field := range []string{"name", "description", "is_public"} {
		if v, ok := data[field]; ok {
			allowed[field] = v
		}
	}
	if len(allowed) == 0 {
		return NewValidationError("data", "no updatable fields")
	}
	_, err = r.store.Update(ctx, "agents", map[string]any{"agent_id": agentID}, allowed)
	return err
}

// Delete removes the agent and everything it owns, leaf-first, in one
// transactional scope.
func (r *AgentRepo) Delete(ctx context.Context, agentID, userID string) error {
	agent, err := r.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if agent.CreatedBy != userID {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotAuthorized)
	}

	return r.store.Transaction(ctx, func(tx *database.Store) error {
		instRows, err := tx.Get(ctx, "module_instances", map[string]any{"agent_id": agentID}, nil)
		if err != nil {
			return err
		}
		instanceIDs := make([]string, 0, len(instRows))
		for _, row := range instRows {
			instanceIDs = append(instanceIDs, rowString(row, "instance_id"))
		}

		narRows, err := tx.Get(ctx, "narratives", map[string]any{"agent_id": agentID}, nil)
		if err != nil {
			return err
		}
		narrativeIDs := make([]string, 0, len(narRows))
		for _, row := range narRows {
			narrativeIDs = append(narrativeIDs, rowString(row, "narrative_id"))
		}

		// Dynamic per-module memory tables first (leaf-most). A table that
		// was never created is simply skipped.
		if err := deleteDynamicMemory(ctx, tx, instanceIDs, narrativeIDs); err != nil {
			return err
		}

		if len(instanceIDs) > 0 {
			steps := []struct {
				table string
				field string
			}{
				{"instance_jobs", "instance_id"},
				{"instance_narrative_links", "instance_id"},
				{"instance_social_entities", "instance_id"},
				{"instance_awareness", "instance_id"},
				{"instance_module_report_memory", "instance_id"},
				{"instance_json_format_memory", "instance_id"},
			}
			for _, step := range steps {
				if _, err := tx.Delete(ctx, step.table, map[string]any{step.field: instanceIDs}); err != nil {
					return fmt.Errorf("cascade %s: %w", step.table, err)
				}
			}
		}

		for _, step := range []struct {
			table   string
			filters map[string]any
		}{
			{"instance_rag_store", map[string]any{"display_name": models.RAGDisplayName(agentID)}},
			{"module_instances", map[string]any{"agent_id": agentID}},
			{"events", map[string]any{"agent_id": agentID}},
			{"narratives", map[string]any{"agent_id": agentID}},
			{"mcp_urls", map[string]any{"agent_id": agentID}},
			{"agent_messages", map[string]any{"agent_id": agentID}},
			{"agents", map[string]any{"agent_id": agentID}},
		} {
			if _, err := tx.Delete(ctx, step.table, step.filters); err != nil {
				return fmt.Errorf("cascade %s: %w", step.table, err)
			}
		}
		return nil
	})
}

// deleteDynamicMemory clears the on-demand memory tables for the given
// instances and narratives. Each table is probed in the catalog first: a
// DELETE against an absent table would abort the surrounding transaction,
// while to_regclass never errors.
func deleteDynamicMemory(ctx context.Context, tx *database.Store, instanceIDs, narrativeIDs []string) error {
	for _, key := range DynamicModuleKeys {
		if len(instanceIDs) > 0 {
			table := InstanceMemoryTable(key)
			if tableExists(ctx, tx, table) {
				if _, err := tx.Delete(ctx, table, map[string]any{"instance_id": instanceIDs}); err != nil {
					return fmt.Errorf("cascade %s: %w", table, err)
				}
			}
		}
		if len(narrativeIDs) > 0 {
			table := EventMemoryTable(key)
			if tableExists(ctx, tx, table) {
				if _, err := tx.Delete(ctx, table, map[string]any{"narrative_id": narrativeIDs}); err != nil {
					return fmt.Errorf("cascade %s: %w", table, err)
				}
			}
		}
	}
	return nil
}

// tableExists probes the catalog for the relation.
func tableExists(ctx context.Context, tx *database.Store, table string) bool {
	rows, err := tx.Query(ctx, "SELECT to_regclass($1) AS rel", table)
	if err != nil || len(rows) == 0 {
		slog.Debug("Dynamic table probe failed", "table", table, "error", err)
		return false
	}
	return rows[0]["rel"] != nil
}

func agentFromRow(row database.Row) *models.Agent {
	return &models.Agent{
		AgentID:     rowString(row, "agent_id"),
		Name:        rowString(row, "name"),
		Description: rowString(row, "description"),
		CreatedBy:   rowString(row, "created_by"),
		IsPublic:    rowBool(row, "is_public"),
		CreatedAt:   rowTime(row, "created_at"),
		UpdatedAt:   rowTime(row, "updated_at"),
	}
}
