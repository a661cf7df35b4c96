package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// InstanceFactory creates and loads module instances.
type InstanceFactory struct {
	instances *repo.InstanceRepo
	links     *repo.LinkRepo
	logger    *slog.Logger
}

// NewInstanceFactory creates an InstanceFactory.
func NewInstanceFactory(instances *repo.InstanceRepo, links *repo.LinkRepo) *InstanceFactory {
	return &InstanceFactory{
		instances: instances,
		links:     links,
		logger:    slog.Default(),
	}
}

// agentLevelClasses are the public singleton capabilities created on first
// use of an agent.
var agentLevelClasses = []models.ModuleClass{
	models.ModuleClassAwareness,
	models.ModuleClassSocialNetwork,
	models.ModuleClassBasicInfo,
	models.ModuleClassRAG,
}

// EnsureAgentLevelInstances idempotently creates the four agent-scoped
// public instances.
func (f *InstanceFactory) EnsureAgentLevelInstances(ctx context.Context, agentID string) ([]*models.ModuleInstance, error) {
	existing, err := f.instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	present := map[models.ModuleClass]*models.ModuleInstance{}
	for _, inst := range existing {
		present[inst.ModuleClass] = inst
	}

	out := make([]*models.ModuleInstance, 0, len(agentLevelClasses))
	for _, class := range agentLevelClasses {
		if inst, ok := present[class]; ok {
			out = append(out, inst)
			continue
		}
		inst := &models.ModuleInstance{
			ModuleClass: class,
			AgentID:     agentID,
			IsPublic:    true,
			Status:      models.InstanceStatusActive,
			Description: fmt.Sprintf("Agent-level %s", ModuleKey(class)),
		}
		if err := f.instances.Create(ctx, inst); err != nil {
			return nil, fmt.Errorf("create %s instance: %w", class, err)
		}
		f.logger.Info("Created agent-level instance",
			"agent_id", agentID, "module_class", class, "instance_id", inst.InstanceID)
		out = append(out, inst)
	}
	return out, nil
}

// LoadForNarrative returns the union of the agent's public instances and the
// instances actively linked to the narrative. Chat instances of other users
// are excluded from the turn.
func (f *InstanceFactory) LoadForNarrative(ctx context.Context, agentID, userID, narrativeID string) ([]*models.ModuleInstance, error) {
	public, err := f.instances.PublicForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	linkedIDs, err := f.links.InstanceIDs(ctx, narrativeID, models.LinkTypeActive)
	if err != nil {
		return nil, err
	}
	linked, err := f.instances.GetMany(ctx, linkedIDs)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	out := make([]*models.ModuleInstance, 0, len(public)+len(linked))
	for _, inst := range public {
		seen[inst.InstanceID] = true
		out = append(out, inst)
	}
	for _, inst := range linked {
		if inst == nil || seen[inst.InstanceID] {
			continue
		}
		if inst.ModuleClass == models.ModuleClassChat && !inst.OwnedBy(userID) {
			continue
		}
		seen[inst.InstanceID] = true
		out = append(out, inst)
	}
	return out, nil
}

// SyntheticInstance builds an in-memory instance with no DB row, used for
// always-load modules and the job-module fallback.
func SyntheticInstance(class models.ModuleClass, agentID string) *models.ModuleInstance {
	return &models.ModuleInstance{
		InstanceID:  models.NewID(models.InstancePrefix(class)),
		ModuleClass: class,
		AgentID:     agentID,
		IsPublic:    true,
		Status:      models.InstanceStatusActive,
		Description: fmt.Sprintf("Synthetic %s", ModuleKey(class)),
	}
}
