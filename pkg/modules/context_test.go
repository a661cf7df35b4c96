package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/protagolabs/agentcore/pkg/models"
)

func TestContextDataClone(t *testing.T) {
	base := ContextData{
		AgentID:     "agent_0a1b2c3d",
		ChatHistory: []ChatMessage{{Role: "user", Content: "hi"}},
		UserProfile: map[string]any{
			"name":  "Ada",
			"prefs": map[string]any{"lang": "en"},
		},
	}

	clone := base.Clone()
	clone.ChatHistory[0].Content = "changed"
	clone.UserProfile["name"] = "Eve"
	clone.UserProfile["prefs"].(map[string]any)["lang"] = "fr"

	assert.Equal(t, "hi", base.ChatHistory[0].Content)
	assert.Equal(t, "Ada", base.UserProfile["name"])
	assert.Equal(t, "en", base.UserProfile["prefs"].(map[string]any)["lang"])
}

func TestMergeAppendsListAdditions(t *testing.T) {
	base := ContextData{
		ChatHistory: []ChatMessage{{Role: "user", Content: "hi"}},
	}

	// Two hooks each return base plus their own additions.
	resA := base.Clone()
	resA.ChatHistory = append(resA.ChatHistory, ChatMessage{Role: "system", Content: "from A"})
	resB := base.Clone()
	resB.ChatHistory = append(resB.ChatHistory, ChatMessage{Role: "system", Content: "from B"})
	resB.JobsInformation = append(resB.JobsInformation, JobInfo{JobID: "job_00000001"})

	out := Merge(base, []ContextData{resA, resB})

	assert.Len(t, out.ChatHistory, 3)
	assert.Equal(t, "hi", out.ChatHistory[0].Content)
	assert.Equal(t, "from A", out.ChatHistory[1].Content)
	assert.Equal(t, "from B", out.ChatHistory[2].Content)
	assert.Len(t, out.JobsInformation, 1)
}

func TestMergeDeepMergesDicts(t *testing.T) {
	base := ContextData{
		UserProfile: map[string]any{
			"name":  "Ada",
			"prefs": map[string]any{"lang": "en", "tz": "UTC"},
		},
	}

	resA := base.Clone()
	resA.UserProfile["prefs"].(map[string]any)["lang"] = "fr"
	resB := base.Clone()
	resB.UserProfile["title"] = "Dr"
	resB.ExtraData = map[string]any{"social": map[string]any{"entities": 3}}

	out := Merge(base, []ContextData{resA, resB})

	prefs := out.UserProfile["prefs"].(map[string]any)
	assert.Equal(t, "fr", prefs["lang"])
	assert.Equal(t, "UTC", prefs["tz"])
	assert.Equal(t, "Dr", out.UserProfile["title"])
	assert.Equal(t, 3, out.ExtraData["social"].(map[string]any)["entities"])
}

func TestMergeIdentityFieldsAreImmutable(t *testing.T) {
	base := ContextData{AgentID: "agent_0a1b2c3d", UserID: "user_0a1b2c3d", InputContent: "hello"}

	res := base.Clone()
	res.AgentID = "agent_ffffffff"
	res.UserID = "user_ffffffff"
	res.InputContent = "tampered"

	out := Merge(base, []ContextData{res})

	assert.Equal(t, "agent_0a1b2c3d", out.AgentID)
	assert.Equal(t, "user_0a1b2c3d", out.UserID)
	assert.Equal(t, "hello", out.InputContent)
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := ContextData{
		ChatHistory: []ChatMessage{{Role: "user", Content: "hi"}},
		UserProfile: map[string]any{"name": "Ada"},
	}
	res := base.Clone()
	res.ChatHistory = append(res.ChatHistory, ChatMessage{Role: "system", Content: "x"})
	res.UserProfile["name"] = "Eve"

	_ = Merge(base, []ContextData{res})

	assert.Len(t, base.ChatHistory, 1)
	assert.Equal(t, "Ada", base.UserProfile["name"])
}

func TestModuleKey(t *testing.T) {
	assert.Equal(t, "chat", ModuleKey(models.ModuleClassChat))
	assert.Equal(t, "social_network", ModuleKey(models.ModuleClassSocialNetwork))
	assert.Equal(t, "rag", ModuleKey(models.ModuleClassRAG))
	assert.Equal(t, "unknown", ModuleKey(models.ModuleClass("bogus")))
}
