package modules

import (
	"context"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/models"
)

const ragKeywordLimit = 20

// RAGModule surfaces the agent's document-store keywords so the model knows
// what the knowledge base covers.
type RAGModule struct {
	deps   Deps
	logger *slog.Logger
}

// NewRAGModule creates the RAG module.
func NewRAGModule(deps Deps) *RAGModule {
	return &RAGModule{deps: deps, logger: slog.Default()}
}

func (m *RAGModule) Class() models.ModuleClass { return models.ModuleClassRAG }
func (m *RAGModule) Key() string               { return "rag" }

func (m *RAGModule) Instructions(inst *models.ModuleInstance) string {
	return "A document store is attached; its topic keywords are listed in context. " +
		"Consult it for questions in those areas."
}

func (m *RAGModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	store, err := m.deps.RAGStores.Get(ctx, turn.Agent.AgentID)
	if err != nil {
		m.logger.Warn("RAG store load failed", "agent_id", turn.Agent.AgentID, "error", err)
		return data, nil
	}
	if store == nil || len(store.Keywords) == 0 {
		return data, nil
	}
	keywords := make([]string, 0, len(store.Keywords))
	for _, kw := range store.Keywords {
		keywords = append(keywords, kw.Keyword)
		if len(keywords) == ragKeywordLimit {
			break
		}
	}
	if data.ExtraData == nil {
		data.ExtraData = map[string]any{}
	}
	data.ExtraData["rag_keywords"] = keywords
	data.ExtraData["rag_file_count"] = store.FileCount
	return data, nil
}

func (m *RAGModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	return nil, nil
}
