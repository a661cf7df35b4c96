package modules

import (
	"context"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/models"
)

// AwarenessModule surfaces the agent's free-text self-model into each turn.
type AwarenessModule struct {
	deps   Deps
	logger *slog.Logger
}

// NewAwarenessModule creates the awareness module.
func NewAwarenessModule(deps Deps) *AwarenessModule {
	return &AwarenessModule{deps: deps, logger: slog.Default()}
}

func (m *AwarenessModule) Class() models.ModuleClass { return models.ModuleClassAwareness }
func (m *AwarenessModule) Key() string               { return "awareness" }

func (m *AwarenessModule) Instructions(inst *models.ModuleInstance) string {
	return "Stay consistent with your self-description and established persona."
}

func (m *AwarenessModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	awareness, err := m.deps.Awareness.Get(ctx, inst.InstanceID)
	if err != nil {
		m.logger.Warn("Awareness load failed", "instance_id", inst.InstanceID, "error", err)
		return data, nil
	}
	if awareness != "" {
		if data.ExtraData == nil {
			data.ExtraData = map[string]any{}
		}
		data.ExtraData["awareness"] = awareness
	}
	return data, nil
}

func (m *AwarenessModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	return nil, nil
}
