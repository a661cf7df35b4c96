package modules

import (
	"context"
	"log/slog"
	"time"

	"github.com/protagolabs/agentcore/pkg/memory"
	"github.com/protagolabs/agentcore/pkg/models"
)

const (
	// longTermRoundPairs caps long-term history at 20 user/assistant pairs.
	longTermRoundPairs = 20

	// shortTermMessages caps cross-narrative history per sibling instance.
	shortTermMessages = 15
)

// ChatModule carries the conversational memory of one (agent, user,
// narrative) triple. Long-term history comes from the episodic memory
// service with a DB fallback; short-term history is pulled across the
// user's other chat instances.
type ChatModule struct {
	deps   Deps
	logger *slog.Logger
}

// NewChatModule creates the chat module.
func NewChatModule(deps Deps) *ChatModule {
	return &ChatModule{deps: deps, logger: slog.Default()}
}

func (m *ChatModule) Class() models.ModuleClass { return models.ModuleClassChat }
func (m *ChatModule) Key() string               { return "chat" }

func (m *ChatModule) Instructions(inst *models.ModuleInstance) string {
	return "You are in an ongoing conversation. Use the provided chat history for continuity. " +
		"Reply to the user with the send_message_to_user_directly tool."
}

// GatherData loads the dual-track memory.
func (m *ChatModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	longTerm := m.loadLongTerm(ctx, turn, inst)
	data.ChatHistory = append(data.ChatHistory, longTerm...)

	shortTerm, err := m.loadShortTerm(ctx, turn, inst)
	if err != nil {
		m.logger.Warn("Short-term memory load failed", "instance_id", inst.InstanceID, "error", err)
	} else {
		data.ChatHistory = append(data.ChatHistory, shortTerm...)
	}
	return data, nil
}

// loadLongTerm retrieves episodes for the current narrative, falling back
// to the instance's DB memory when the service is unreachable.
func (m *ChatModule) loadLongTerm(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance) []ChatMessage {
	if m.deps.MemCache != nil && turn.Narrative != nil {
		client := m.deps.MemCache.Get(turn.Agent.AgentID, turn.User.UserID)
		episodes, err := client.Search(ctx, turn.Narrative.NarrativeID, turn.Input, longTermRoundPairs*2)
		if err == nil {
			out := make([]ChatMessage, 0, len(episodes))
			for _, ep := range episodes {
				out = append(out, ChatMessage{
					Role:       ep.Role,
					Content:    ep.Content,
					MemoryType: MemoryLongTerm,
					InstanceID: inst.InstanceID,
					Timestamp:  ep.Timestamp,
				})
			}
			return capRoundPairs(out, longTermRoundPairs)
		}
		m.logger.Warn("Memory service unavailable, using DB fallback",
			"instance_id", inst.InstanceID, "error", err)
	}

	entries, err := m.deps.Memories.GetJSON(ctx, inst.InstanceID)
	if err != nil {
		m.logger.Warn("DB memory fallback failed", "instance_id", inst.InstanceID, "error", err)
		return nil
	}
	return capRoundPairs(entriesToMessages(entries, MemoryLongTerm, inst.InstanceID), longTermRoundPairs)
}

// loadShortTerm pulls the tail of the user's other chat instances. Messages
// from non-chat turns keep only the assistant side.
func (m *ChatModule) loadShortTerm(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance) ([]ChatMessage, error) {
	siblings, err := m.deps.Instances.ListForAgent(ctx, turn.Agent.AgentID, models.ModuleClassChat, nil)
	if err != nil {
		return nil, err
	}
	var out []ChatMessage
	for _, sib := range siblings {
		if sib.InstanceID == inst.InstanceID || !sib.OwnedBy(turn.User.UserID) {
			continue
		}
		entries, err := m.deps.Memories.GetJSON(ctx, sib.InstanceID)
		if err != nil {
			m.logger.Warn("Sibling memory load failed", "instance_id", sib.InstanceID, "error", err)
			continue
		}
		msgs := entriesToMessages(entries, MemoryShortTerm, sib.InstanceID)
		msgs = filterNonChatToAssistant(msgs)
		if len(msgs) > shortTermMessages {
			msgs = msgs[len(msgs)-shortTermMessages:]
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// AfterEvent appends the user turn and the user-visible assistant turn to
// the instance memory, and mirrors them to the memory service best-effort.
func (m *ChatModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	reply := params.FinalOutput
	if reply == "" {
		reply = "(no response)"
	}
	now := time.Now().UTC()

	entries, err := m.deps.Memories.GetJSON(ctx, inst.InstanceID)
	if err != nil {
		return nil, err
	}
	entries = append(entries,
		memoryEntry("user", turn.Input, turn.WorkingSource, now),
		memoryEntry("assistant", reply, turn.WorkingSource, now),
	)
	if err := m.deps.Memories.SaveJSON(ctx, inst.InstanceID, entries); err != nil {
		return nil, err
	}

	if m.deps.MemCache != nil && turn.Narrative != nil {
		client := m.deps.MemCache.Get(turn.Agent.AgentID, turn.User.UserID)
		err := client.Add(ctx, []memory.Episode{
			{Role: "user", Content: turn.Input, GroupID: turn.Narrative.NarrativeID, Timestamp: now},
			{Role: "assistant", Content: reply, GroupID: turn.Narrative.NarrativeID, Timestamp: now},
		})
		if err != nil {
			m.logger.Warn("Memory service add failed", "narrative_id", turn.Narrative.NarrativeID, "error", err)
		}
	}
	return nil, nil
}

func memoryEntry(role, content string, source models.WorkingSource, ts time.Time) map[string]any {
	return map[string]any{
		"role":           role,
		"content":        content,
		"working_source": string(source),
		"timestamp":      ts.Format(time.RFC3339),
	}
}

func entriesToMessages(entries []map[string]any, memType MemoryType, instanceID string) []ChatMessage {
	out := make([]ChatMessage, 0, len(entries))
	for _, e := range entries {
		msg := ChatMessage{MemoryType: memType, InstanceID: instanceID}
		if v, ok := e["role"].(string); ok {
			msg.Role = v
		}
		if v, ok := e["content"].(string); ok {
			msg.Content = v
		}
		if v, ok := e["working_source"].(string); ok {
			msg.WorkingSource = v
		}
		if v, ok := e["timestamp"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				msg.Timestamp = ts
			}
		}
		out = append(out, msg)
	}
	return out
}

// filterNonChatToAssistant drops the user side of messages recorded outside
// chat turns.
func filterNonChatToAssistant(msgs []ChatMessage) []ChatMessage {
	out := msgs[:0]
	for _, msg := range msgs {
		if msg.WorkingSource != "" && msg.WorkingSource != string(models.WorkingSourceChat) && msg.Role != "assistant" {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// capRoundPairs keeps the most recent n user/assistant pairs.
func capRoundPairs(msgs []ChatMessage, pairs int) []ChatMessage {
	max := pairs * 2
	if len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}
