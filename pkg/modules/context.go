// Package modules defines the module capability contract: the per-turn
// hooks, the shared ContextData document they enrich, and the seven module
// implementations.
package modules

import "time"

// MemoryType tags where a chat-history message came from.
type MemoryType string

// Memory types.
const (
	MemoryLongTerm  MemoryType = "long_term"
	MemoryShortTerm MemoryType = "short_term"
	MemoryCurrent   MemoryType = "current"
)

// ChatMessage is one entry of the gathered chat history.
type ChatMessage struct {
	Role          string     `json:"role"`
	Content       string     `json:"content"`
	MemoryType    MemoryType `json:"memory_type,omitempty"`
	InstanceID    string     `json:"instance_id,omitempty"`
	WorkingSource string     `json:"working_source,omitempty"`
	Timestamp     time.Time  `json:"timestamp,omitempty"`
}

// JobInfo is the job summary surfaced into a turn's context.
type JobInfo struct {
	JobID       string `json:"job_id"`
	InstanceID  string `json:"instance_id"`
	Title       string `json:"title"`
	JobType     string `json:"job_type"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// ContextData is the shared document passed through data-gathering hooks.
// AgentID, UserID and InputContent are immutable once set; every other field
// follows the merge policy in Merge.
type ContextData struct {
	AgentID      string `json:"agent_id"`
	UserID       string `json:"user_id"`
	InputContent string `json:"input_content"`

	ChatHistory     []ChatMessage  `json:"chat_history"`
	JobsInformation []JobInfo      `json:"jobs_information"`
	UserProfile     map[string]any `json:"user_profile"`
	ExtraData       map[string]any `json:"extra_data"`
}

// Clone deep-copies the document so a hook cannot mutate shared state.
func (c ContextData) Clone() ContextData {
	out := c
	out.ChatHistory = append([]ChatMessage(nil), c.ChatHistory...)
	out.JobsInformation = append([]JobInfo(nil), c.JobsInformation...)
	out.UserProfile = deepCopyMap(c.UserProfile)
	out.ExtraData = deepCopyMap(c.ExtraData)
	return out
}

// Merge collapses hook results onto the base document in module order.
// Immutable identity fields always come from the base; list fields append
// the elements each result added beyond the base; dict fields deep-merge
// with per-key override for scalars.
func Merge(base ContextData, results []ContextData) ContextData {
	out := base.Clone()
	for _, res := range results {
		out.ChatHistory = appendNew(out.ChatHistory, res.ChatHistory, len(base.ChatHistory))
		out.JobsInformation = appendNewJobs(out.JobsInformation, res.JobsInformation, len(base.JobsInformation))
		out.UserProfile = deepMerge(out.UserProfile, diffMap(base.UserProfile, res.UserProfile))
		out.ExtraData = deepMerge(out.ExtraData, diffMap(base.ExtraData, res.ExtraData))
	}
	out.AgentID = base.AgentID
	out.UserID = base.UserID
	out.InputContent = base.InputContent
	return out
}

// appendNew appends the elements a result added past the shared base prefix.
func appendNew(dst, src []ChatMessage, baseLen int) []ChatMessage {
	if len(src) <= baseLen {
		return dst
	}
	return append(dst, src[baseLen:]...)
}

func appendNewJobs(dst, src []JobInfo, baseLen int) []JobInfo {
	if len(src) <= baseLen {
		return dst
	}
	return append(dst, src[baseLen:]...)
}

// diffMap returns the keys of m that differ from base, recursing into
// nested maps.
func diffMap(base, m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := map[string]any{}
	for k, v := range m {
		bv, inBase := base[k]
		if !inBase {
			out[k] = v
			continue
		}
		if vm, ok := v.(map[string]any); ok {
			if bvm, ok := bv.(map[string]any); ok {
				if nested := diffMap(bvm, vm); len(nested) > 0 {
					out[k] = nested
				}
				continue
			}
		}
		out[k] = v
	}
	return out
}

// deepMerge folds src into dst: nested maps merge recursively, everything
// else overrides per key.
func deepMerge(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		if vm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = deepMerge(deepCopyMap(dm), vm)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if vm, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(vm)
			continue
		}
		out[k] = v
	}
	return out
}
