package modules

import (
	"context"

	"github.com/protagolabs/agentcore/pkg/models"
)

// SkillModule is an always-load capability with no persisted instance. It
// only contributes prompt instructions about the built-in tools.
type SkillModule struct{}

// NewSkillModule creates the skill module.
func NewSkillModule() *SkillModule {
	return &SkillModule{}
}

func (m *SkillModule) Class() models.ModuleClass { return models.ModuleClassSkill }
func (m *SkillModule) Key() string               { return "skill" }

func (m *SkillModule) Instructions(inst *models.ModuleInstance) string {
	return "Built-in tools are available: send_message_to_user_directly to answer the user, " +
		"plus any listed MCP tools. Prefer one decisive tool call over speculation."
}

func (m *SkillModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	return data, nil
}

func (m *SkillModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	return nil, nil
}
