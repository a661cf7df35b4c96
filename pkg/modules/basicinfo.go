package modules

import (
	"context"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/models"
)

// BasicInfoModule contributes agent identity and the user's profile.
type BasicInfoModule struct {
	deps   Deps
	logger *slog.Logger
}

// NewBasicInfoModule creates the basic-info module.
func NewBasicInfoModule(deps Deps) *BasicInfoModule {
	return &BasicInfoModule{deps: deps, logger: slog.Default()}
}

func (m *BasicInfoModule) Class() models.ModuleClass { return models.ModuleClassBasicInfo }
func (m *BasicInfoModule) Key() string               { return "basic_info" }

func (m *BasicInfoModule) Instructions(inst *models.ModuleInstance) string {
	return "Your identity and the user's profile are given in context. Address the user by " +
		"their display name and respect their timezone when mentioning times."
}

func (m *BasicInfoModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	if data.UserProfile == nil {
		data.UserProfile = map[string]any{}
	}
	data.UserProfile["user_id"] = turn.User.UserID
	data.UserProfile["display_name"] = turn.User.DisplayName
	data.UserProfile["timezone"] = turn.User.Timezone

	if data.ExtraData == nil {
		data.ExtraData = map[string]any{}
	}
	data.ExtraData["agent_info"] = map[string]any{
		"name":        turn.Agent.Name,
		"description": turn.Agent.Description,
	}
	return data, nil
}

func (m *BasicInfoModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	return nil, nil
}
