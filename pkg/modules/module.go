package modules

import (
	"context"
	"fmt"
	"sort"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/memory"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// TurnContext is the per-turn envelope handed to every hook.
type TurnContext struct {
	Agent         *models.Agent
	User          *models.User
	Narrative     *models.Narrative
	WorkingSource models.WorkingSource
	Input         string

	// InstanceIDs lists every instance loaded into this turn. Hooks must
	// read it from here, never from module-held state.
	InstanceIDs []string
}

// HookCallbackResult lets a post-hook flip its controlling instance.
type HookCallbackResult struct {
	InstanceID          string
	TriggerCallback     bool
	InstanceStatus      models.InstanceStatus
	OutputData          map[string]any
	NotificationMessage string
}

// PostHookParams is the input to after-event hooks.
type PostHookParams struct {
	Event       *models.Event
	FinalOutput string
	Data        ContextData
}

// Module is one capability of an agent. Implementations are stateless;
// all per-turn inputs arrive through the hook parameters.
type Module interface {
	Class() models.ModuleClass

	// Key is the lowercase identifier used for dynamic memory tables.
	Key() string

	// Instructions contributes this module's section of the system prompt.
	Instructions(inst *models.ModuleInstance) string

	// GatherData enriches the context document before the model runs.
	// Implementations return the input with additions.
	GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error)

	// AfterEvent runs once the turn's event is persisted. A non-nil result
	// with TriggerCallback set flips the controlling instance.
	AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error)
}

// Deps bundles the resources modules draw on.
type Deps struct {
	Store     *database.Store
	Instances *repo.InstanceRepo
	Jobs      *repo.JobRepo
	Events    *repo.EventRepo
	Users     *repo.UserRepo
	Social    *repo.SocialRepo
	Awareness *repo.AwarenessRepo
	RAGStores *repo.RAGStoreRepo
	Memories  *repo.MemoryRepo
	Links     *repo.LinkRepo

	LLM       llm.Provider
	MemCache  *memory.ClientCache
	LLMConfig config.LLMConfig
}

// Registry maps module classes to their implementations.
type Registry struct {
	byClass map[models.ModuleClass]Module
}

// NewRegistry builds the registry with all seven modules.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{byClass: map[models.ModuleClass]Module{}}
	for _, m := range []Module{
		NewChatModule(deps),
		NewJobModule(deps),
		NewAwarenessModule(deps),
		NewSocialNetworkModule(deps),
		NewBasicInfoModule(deps),
		NewRAGModule(deps),
		NewSkillModule(),
	} {
		r.byClass[m.Class()] = m
	}
	return r
}

// Get returns the module for a class.
func (r *Registry) Get(class models.ModuleClass) (Module, error) {
	m, ok := r.byClass[class]
	if !ok {
		return nil, fmt.Errorf("no module registered for class %q", class)
	}
	return m, nil
}

// Classes returns the registered classes in stable order.
func (r *Registry) Classes() []models.ModuleClass {
	out := make([]models.ModuleClass, 0, len(r.byClass))
	for c := range r.byClass {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModuleKey returns the lowercase key for a class, used in memory table
// names and routing.
func ModuleKey(class models.ModuleClass) string {
	switch class {
	case models.ModuleClassChat:
		return "chat"
	case models.ModuleClassJob:
		return "job"
	case models.ModuleClassAwareness:
		return "awareness"
	case models.ModuleClassSocialNetwork:
		return "social_network"
	case models.ModuleClassBasicInfo:
		return "basic_info"
	case models.ModuleClassRAG:
		return "rag"
	case models.ModuleClassSkill:
		return "skill"
	default:
		return "unknown"
	}
}
