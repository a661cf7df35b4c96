package modules

import (
	"context"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/models"
)

const socialContextLimit = 10

// SocialNetworkModule tracks the people and organizations an agent works
// with, and surfaces the closest ones into each turn.
type SocialNetworkModule struct {
	deps   Deps
	logger *slog.Logger
}

// NewSocialNetworkModule creates the social-network module.
func NewSocialNetworkModule(deps Deps) *SocialNetworkModule {
	return &SocialNetworkModule{deps: deps, logger: slog.Default()}
}

func (m *SocialNetworkModule) Class() models.ModuleClass { return models.ModuleClassSocialNetwork }
func (m *SocialNetworkModule) Key() string               { return "social_network" }

func (m *SocialNetworkModule) Instructions(inst *models.ModuleInstance) string {
	return "You know the people listed in your social context. Use their names, personas " +
		"and expertise when relevant."
}

func (m *SocialNetworkModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	entities, err := m.deps.Social.List(ctx, inst.InstanceID, socialContextLimit)
	if err != nil {
		m.logger.Warn("Social entities load failed", "instance_id", inst.InstanceID, "error", err)
		return data, nil
	}
	if len(entities) == 0 {
		return data, nil
	}
	summaries := make([]map[string]any, 0, len(entities))
	for _, ent := range entities {
		summaries = append(summaries, map[string]any{
			"entity_id":   ent.EntityID,
			"name":        ent.EntityName,
			"type":        ent.EntityType,
			"description": truncateText(ent.EntityDescription, 500),
			"persona":     truncateText(ent.Persona, 300),
			"tags":        capList(ent.Tags, 10),
		})
	}
	if data.ExtraData == nil {
		data.ExtraData = map[string]any{}
	}
	data.ExtraData["social_entities"] = summaries
	return data, nil
}

// AfterEvent records the interaction with the current user's entity when one
// is tracked.
func (m *SocialNetworkModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	ent, err := m.deps.Social.Get(ctx, inst.InstanceID, turn.User.UserID)
	if err != nil || ent == nil {
		return nil, err
	}
	if err := m.deps.Social.RecordInteraction(ctx, inst.InstanceID, ent.EntityID); err != nil {
		m.logger.Warn("Recording interaction failed", "entity_id", ent.EntityID, "error", err)
	}
	return nil, nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func capList(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
