package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/mcp"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/modules"
	"github.com/protagolabs/agentcore/pkg/planner"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// historyLimit is the recent-event window fed to planning and prompts.
// A full window also triggers a rolling summary refresh.
const historyLimit = 20

// Runtime executes one agent turn end to end.
type Runtime struct {
	cfg      *config.Config
	provider llm.Provider
	registry *modules.Registry
	loader   *planner.ModuleService
	factory  *modules.InstanceFactory

	agents     *repo.AgentRepo
	users      *repo.UserRepo
	narratives *repo.NarrativeRepo
	events     *repo.EventRepo
	instances  *repo.InstanceRepo
	mcpURLs    *repo.MCPUrlRepo
	awareness  *repo.AwarenessRepo
	inbox      *repo.InboxRepo

	logger *slog.Logger
}

// Deps bundles the runtime's collaborators.
type Deps struct {
	Config   *config.Config
	Provider llm.Provider
	Registry *modules.Registry
	Loader   *planner.ModuleService
	Factory  *modules.InstanceFactory

	Agents     *repo.AgentRepo
	Users      *repo.UserRepo
	Narratives *repo.NarrativeRepo
	Events     *repo.EventRepo
	Instances  *repo.InstanceRepo
	MCPUrls    *repo.MCPUrlRepo
	Awareness  *repo.AwarenessRepo
	Inbox      *repo.InboxRepo
}

// New creates a Runtime.
func New(d Deps) *Runtime {
	return &Runtime{
		cfg:        d.Config,
		provider:   d.Provider,
		registry:   d.Registry,
		loader:     d.Loader,
		factory:    d.Factory,
		agents:     d.Agents,
		users:      d.Users,
		narratives: d.Narratives,
		events:     d.Events,
		instances:  d.Instances,
		mcpURLs:    d.MCPUrls,
		awareness:  d.Awareness,
		inbox:      d.Inbox,
		logger:     slog.Default(),
	}
}

// RunInput describes one turn request.
type RunInput struct {
	AgentID       string
	UserID        string
	Input         string
	WorkingSource models.WorkingSource

	// NarrativeID forces the turn into a specific narrative. Empty means
	// resolve-or-create from the (agent, user) pair.
	NarrativeID string

	Stream StreamFunc
}

// RunOutput is the result of one turn.
type RunOutput struct {
	Event       *models.Event
	FinalOutput string
	Trace       string
	Narrative   *models.Narrative

	ActiveInstances []*models.ModuleInstance
	HookResults     []*modules.HookCallbackResult
}

// Run executes a full agent turn: resolve the narrative, plan and load
// instances, gather context, run the model, persist the event, fire hooks.
func (r *Runtime) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	if in.WorkingSource == "" {
		in.WorkingSource = models.WorkingSourceChat
	}

	agent, err := r.agents.Get(ctx, in.AgentID)
	if err != nil {
		return nil, err
	}
	user := r.users.GetOrDefault(ctx, in.UserID)

	narrative, err := r.resolveNarrative(ctx, in)
	if err != nil {
		return nil, err
	}

	in.Stream.emit(StreamMessage{Type: StreamStatus, Step: "loading", Content: "loading modules"})

	ensured, err := r.factory.EnsureAgentLevelInstances(ctx, in.AgentID)
	if err != nil {
		return nil, err
	}

	recent, err := r.events.Recent(ctx, narrative.NarrativeID, historyLimit)
	if err != nil {
		return nil, err
	}

	load, err := r.loader.LoadModules(ctx, planner.LoadInput{
		AgentID:          in.AgentID,
		UserID:           in.UserID,
		NarrativeID:      narrative.NarrativeID,
		InputContent:     in.Input,
		NarrativeSummary: narrative.Info.CurrentSummary,
		HistoryMarkdown:  historyMarkdown(recent, user),
		Awareness:        r.awarenessText(ctx, ensured),
		WorkingSource:    in.WorkingSource,
	})
	if err != nil {
		return nil, err
	}

	turn := &modules.TurnContext{
		Agent:         agent,
		User:          user,
		Narrative:     narrative,
		WorkingSource: in.WorkingSource,
		Input:         in.Input,
		InstanceIDs:   instanceIDs(load.ActiveInstances),
	}

	in.Stream.emit(StreamMessage{Type: StreamStatus, Step: "gathering", Content: "gathering context"})
	data := r.gather(ctx, turn, load.ActiveInstances)

	mcpClient, executor := r.connectMCP(ctx, in.AgentID, in.UserID)
	defer mcpClient.Close()

	in.Stream.emit(StreamMessage{Type: StreamStatus, Step: "running", Content: "running agent"})
	var result *loopResult
	if load.ExecutionType == models.ExecutionPathDirectTrigger && load.DirectTrigger != nil {
		result = r.runDirectTrigger(ctx, load.DirectTrigger, executor, in.Stream)
	} else {
		result, err = r.runLoop(ctx, buildMessages(agent, turn, load.ActiveInstances, r.registry, data), executor, in.Stream)
		if err != nil {
			in.Stream.emit(StreamMessage{Type: StreamError, Error: err.Error()})
			return nil, err
		}
	}

	final := result.directReply
	if final == "" {
		final = result.finalOutput
	}

	event := &models.Event{
		NarrativeID:   narrative.NarrativeID,
		AgentID:       in.AgentID,
		UserID:        in.UserID,
		Trigger:       in.Input,
		TriggerSource: in.WorkingSource,
		FinalOutput:   final,
		EventLog: append(result.log, models.EventLogEntry{
			Kind:      models.EventLogComplete,
			Timestamp: time.Now().UTC(),
			Content:   final,
		}),
	}
	if err := r.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}

	hooks := r.runPostHooks(ctx, turn, load.ActiveInstances, event, final, data)
	r.touchInstances(ctx, load.ActiveInstances)
	r.maybeRefreshSummary(ctx, narrative, recent, user)
	if in.WorkingSource == models.WorkingSourceA2A {
		r.settleAgentMessages(ctx, in, event, final)
	}

	in.Stream.emit(StreamMessage{Type: StreamComplete, EventID: event.EventID, Content: final})

	return &RunOutput{
		Event:           event,
		FinalOutput:     final,
		Trace:           RenderTrace(event.EventLog),
		Narrative:       narrative,
		ActiveInstances: load.ActiveInstances,
		HookResults:     hooks,
	}, nil
}

func (r *Runtime) resolveNarrative(ctx context.Context, in RunInput) (*models.Narrative, error) {
	if in.NarrativeID != "" {
		return r.narratives.Get(ctx, in.NarrativeID)
	}
	narrative, created, err := r.narratives.GetOrCreate(ctx, in.AgentID, []string{in.UserID})
	if err != nil {
		return nil, err
	}
	if created {
		r.logger.Info("Created narrative", "narrative_id", narrative.NarrativeID, "agent_id", in.AgentID)
	}
	return narrative, nil
}

// gather runs every instance's data hook concurrently, each on its own clone
// of the base document, then merges the results in instance order. A failed
// hook degrades that module's contribution, never the turn.
func (r *Runtime) gather(ctx context.Context, turn *modules.TurnContext, instances []*models.ModuleInstance) modules.ContextData {
	base := modules.ContextData{
		AgentID:      turn.Agent.AgentID,
		UserID:       userIDOf(turn),
		InputContent: turn.Input,
	}

	results := make([]*modules.ContextData, len(instances))
	var wg sync.WaitGroup
	for i, inst := range instances {
		mod, err := r.registry.Get(inst.ModuleClass)
		if err != nil {
			r.logger.Warn("Unknown module class in active set", "class", inst.ModuleClass)
			continue
		}
		wg.Add(1)
		go func(i int, inst *models.ModuleInstance, mod modules.Module) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("Data hook panicked", "class", inst.ModuleClass, "panic", rec)
				}
			}()
			out, err := mod.GatherData(ctx, turn, inst, base.Clone())
			if err != nil {
				r.logger.Warn("Data hook failed",
					"class", inst.ModuleClass, "instance_id", inst.InstanceID, "error", err)
				return
			}
			results[i] = &out
		}(i, inst, mod)
	}
	wg.Wait()

	merged := make([]modules.ContextData, 0, len(results))
	for _, res := range results {
		if res != nil {
			merged = append(merged, *res)
		}
	}
	return modules.Merge(base, merged)
}

// connectMCP builds the per-turn tool surface from the agent's enabled MCP
// endpoints. Connection failures degrade to fewer tools.
func (r *Runtime) connectMCP(ctx context.Context, agentID, userID string) (*mcp.Client, *mcp.ToolExecutor) {
	urls, err := r.mcpURLs.ListEnabled(ctx, agentID, userID)
	if err != nil {
		r.logger.Warn("Listing MCP endpoints failed", "agent_id", agentID, "error", err)
	}
	client := mcp.NewClient(mcp.ServersFromURLs(urls))
	client.Initialize(ctx)
	return client, mcp.NewToolExecutor(client)
}

// runDirectTrigger skips the agent loop and executes the planned tool once.
func (r *Runtime) runDirectTrigger(ctx context.Context, trigger *planner.DirectTrigger, executor *mcp.ToolExecutor, stream StreamFunc) *loopResult {
	args, _ := json.Marshal(trigger.Arguments)
	call := llm.ToolCall{ID: "direct_trigger", Name: trigger.ToolName, Arguments: string(args)}

	res := &loopResult{}
	msg := r.dispatchTool(ctx, call, executor, res, stream)
	res.finalOutput = msg.Content
	return res
}

// runPostHooks fires AfterEvent on every active instance in order and
// applies any requested status flips. Hook failures are logged, not fatal.
func (r *Runtime) runPostHooks(ctx context.Context, turn *modules.TurnContext, instances []*models.ModuleInstance, event *models.Event, final string, data modules.ContextData) []*modules.HookCallbackResult {
	params := modules.PostHookParams{Event: event, FinalOutput: final, Data: data}

	var out []*modules.HookCallbackResult
	for _, inst := range instances {
		mod, err := r.registry.Get(inst.ModuleClass)
		if err != nil {
			continue
		}
		result, err := mod.AfterEvent(ctx, turn, inst, params)
		if err != nil {
			r.logger.Warn("Post hook failed",
				"class", inst.ModuleClass, "instance_id", inst.InstanceID, "error", err)
			continue
		}
		if result == nil {
			continue
		}
		if result.TriggerCallback && result.InstanceID != "" {
			if err := r.instances.SetStatus(ctx, result.InstanceID, result.InstanceStatus); err != nil {
				r.logger.Warn("Applying hook status failed",
					"instance_id", result.InstanceID, "status", result.InstanceStatus, "error", err)
			}
		}
		out = append(out, result)
	}
	return out
}

// touchInstances stamps last_used_at on the turn's persisted instances.
func (r *Runtime) touchInstances(ctx context.Context, instances []*models.ModuleInstance) {
	for _, inst := range instances {
		if inst.InstanceID == "" {
			continue // synthetic
		}
		if err := r.instances.Touch(ctx, inst.InstanceID); err != nil {
			r.logger.Debug("Touching instance failed", "instance_id", inst.InstanceID, "error", err)
		}
	}
}

// maybeRefreshSummary rolls the narrative summary forward once the recent
// window is full. Best effort.
func (r *Runtime) maybeRefreshSummary(ctx context.Context, narrative *models.Narrative, recent []*models.Event, user *models.User) {
	if len(recent) < historyLimit {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.LLM.CallTimeout)
	defer cancel()

	prompt := "Summarize this conversation in a few sentences, folding in the previous summary.\n\n" +
		"Previous summary:\n" + narrative.Info.CurrentSummary + "\n\nRecent exchanges:\n" +
		historyMarkdown(recent, user)
	resp, err := r.provider.Complete(callCtx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		r.logger.Warn("Summary refresh failed", "narrative_id", narrative.NarrativeID, "error", err)
		return
	}
	if err := r.narratives.UpdateSummary(ctx, narrative.NarrativeID, resp.Content); err != nil {
		r.logger.Warn("Saving summary failed", "narrative_id", narrative.NarrativeID, "error", err)
	}
}

// settleAgentMessages closes the loop on an agent-to-agent turn: pending
// messages from the peer are marked responded, and the reply lands in the
// peer's mailbox with a fresh if_response flag. Best effort.
func (r *Runtime) settleAgentMessages(ctx context.Context, in RunInput, event *models.Event, final string) {
	if r.inbox == nil {
		return
	}
	pending, err := r.inbox.PendingAgentMessages(ctx, in.AgentID, 50)
	if err != nil {
		r.logger.Warn("Loading pending agent messages failed", "agent_id", in.AgentID, "error", err)
		return
	}
	var answered []string
	for _, msg := range pending {
		if msg.SourceID == in.UserID {
			answered = append(answered, msg.MessageID)
		}
	}
	if len(answered) > 0 {
		if err := r.inbox.MarkAgentMessagesResponded(ctx, in.AgentID, answered); err != nil {
			r.logger.Warn("Marking agent messages responded failed", "agent_id", in.AgentID, "error", err)
		} else {
			r.logger.Debug("Agent messages answered",
				"agent_id", in.AgentID, "count", len(answered), "event_id", event.EventID)
		}
	}

	// Route the reply back only when the caller really is another agent.
	if final == "" || !strings.HasPrefix(in.UserID, models.PrefixAgent+"_") {
		return
	}
	err = r.inbox.DeliverAgentMessage(ctx, &models.AgentMessage{
		AgentID:    in.UserID,
		Title:      "Reply from " + in.AgentID,
		Content:    final,
		SourceType: models.SourceTypeAgent,
		SourceID:   in.AgentID,
		EventID:    event.EventID,
	})
	if err != nil {
		r.logger.Warn("Delivering agent reply failed", "target", in.UserID, "error", err)
	}
}

// awarenessText loads the agent's self-description from its awareness
// instance, empty when absent.
func (r *Runtime) awarenessText(ctx context.Context, ensured []*models.ModuleInstance) string {
	for _, inst := range ensured {
		if inst.ModuleClass != models.ModuleClassAwareness {
			continue
		}
		text, err := r.awareness.Get(ctx, inst.InstanceID)
		if err != nil {
			r.logger.Warn("Loading awareness failed", "instance_id", inst.InstanceID, "error", err)
			return ""
		}
		return text
	}
	return ""
}

// buildMessages assembles the model conversation: the layered system prompt
// followed by the user input.
func buildMessages(agent *models.Agent, turn *modules.TurnContext, instances []*models.ModuleInstance, registry *modules.Registry, data modules.ContextData) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", agent.Name, agent.Description)

	b.WriteString("\n## Capabilities\n")
	seen := map[models.ModuleClass]bool{}
	for _, inst := range instances {
		if seen[inst.ModuleClass] {
			continue
		}
		seen[inst.ModuleClass] = true
		mod, err := registry.Get(inst.ModuleClass)
		if err != nil {
			continue
		}
		if text := mod.Instructions(inst); text != "" {
			b.WriteString("- " + text + "\n")
		}
	}

	if doc, err := json.MarshalIndent(data, "", "  "); err == nil {
		b.WriteString("\n## Context\n```json\n")
		b.Write(doc)
		b.WriteString("\n```\n")
	}
	fmt.Fprintf(&b, "\nCurrent time: %s (user timezone %s)\n",
		turn.User.FormatTime(time.Now()), turn.User.Timezone)
	b.WriteString("Use " + DirectMessageTool + " for your final user-facing reply.\n")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.String()},
		{Role: llm.RoleUser, Content: turn.Input},
	}
}

// historyMarkdown renders recent events oldest-first for prompts.
func historyMarkdown(events []*models.Event, user *models.User) string {
	var b strings.Builder
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		fmt.Fprintf(&b, "**%s (%s, %s)**: %s\n",
			ev.UserID, ev.TriggerSource, user.FormatTime(ev.CreatedAt), truncate(ev.Trigger, 400))
		if ev.FinalOutput != "" {
			fmt.Fprintf(&b, "**agent**: %s\n", truncate(ev.FinalOutput, 400))
		}
	}
	return b.String()
}

func instanceIDs(instances []*models.ModuleInstance) []string {
	out := make([]string, 0, len(instances))
	for _, inst := range instances {
		if inst.InstanceID != "" {
			out = append(out, inst.InstanceID)
		}
	}
	return out
}

func userIDOf(turn *modules.TurnContext) string {
	if turn.User != nil {
		return turn.User.UserID
	}
	return ""
}
