package runtime

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/models"
)

func TestRenderTrace(t *testing.T) {
	log := []models.EventLogEntry{
		{Kind: models.EventLogProgress, Step: "loading", Content: "loading modules"},
		{Kind: models.EventLogThinking, Content: "I should check the weather"},
		{Kind: models.EventLogToolCall, ToolName: "weather__current",
			ToolInput: `{"city":"Berlin"}`, ToolOutput: "12C, cloudy"},
		{Kind: models.EventLogError, Content: "tool timed out"},
	}

	trace := RenderTrace(log)

	assert.Contains(t, trace, "- loading: loading modules")
	assert.Contains(t, trace, "- thinking: I should check the weather")
	assert.Contains(t, trace, "- tool `weather__current`")
	assert.Contains(t, trace, `input: {"city":"Berlin"}`)
	assert.Contains(t, trace, "output: 12C, cloudy")
	assert.Contains(t, trace, "- error: tool timed out")
}

func TestRenderTraceTruncatesLongPayloads(t *testing.T) {
	log := []models.EventLogEntry{
		{Kind: models.EventLogToolCall, ToolName: "t",
			ToolInput:  strings.Repeat("a", 1000),
			ToolOutput: strings.Repeat("b", 1000)},
	}

	trace := RenderTrace(log)

	assert.Contains(t, trace, strings.Repeat("a", 300)+"...")
	assert.Contains(t, trace, strings.Repeat("b", 500)+"...")
	assert.NotContains(t, trace, strings.Repeat("a", 301))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}

func TestStreamFuncEmitNilSafe(t *testing.T) {
	var f StreamFunc
	assert.NotPanics(t, func() { f.emit(StreamMessage{Type: StreamStatus}) })

	var got []StreamMessage
	f = func(m StreamMessage) { got = append(got, m) }
	f.emit(StreamMessage{Type: StreamComplete, Content: "done"})
	assert.Len(t, got, 1)
	assert.Equal(t, StreamComplete, got[0].Type)
}

func TestHandleDirectMessage(t *testing.T) {
	r := &Runtime{}

	t.Run("well formed", func(t *testing.T) {
		res := &loopResult{}
		out := r.handleDirectMessage(toolCall(`{"message": "hello there"}`), res)
		assert.Equal(t, "message delivered", out)
		assert.Equal(t, "hello there", res.directReply)
	})

	t.Run("malformed json", func(t *testing.T) {
		res := &loopResult{}
		out := r.handleDirectMessage(toolCall(`not json`), res)
		assert.Contains(t, out, "error")
		assert.Empty(t, res.directReply)
	})

	t.Run("missing message", func(t *testing.T) {
		res := &loopResult{}
		out := r.handleDirectMessage(toolCall(`{}`), res)
		assert.Contains(t, out, "error")
		assert.Empty(t, res.directReply)
	})
}

func TestHistoryMarkdown(t *testing.T) {
	user := &models.User{Timezone: "UTC"}
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	// Recent returns newest first; rendering is oldest first.
	events := []*models.Event{
		{UserID: "user_0a1b2c3d", TriggerSource: models.WorkingSourceChat,
			Trigger: "second question", FinalOutput: "second answer", CreatedAt: ts.Add(time.Minute)},
		{UserID: "user_0a1b2c3d", TriggerSource: models.WorkingSourceChat,
			Trigger: "first question", FinalOutput: "first answer", CreatedAt: ts},
	}

	md := historyMarkdown(events, user)

	first := strings.Index(md, "first question")
	second := strings.Index(md, "second question")
	assert.Greater(t, second, first)
	assert.Contains(t, md, "**user_0a1b2c3d (chat, 2026-02-01 10:00)**: first question")
	assert.Contains(t, md, "**agent**: first answer")
}

func TestHistoryMarkdownSkipsEmptyOutput(t *testing.T) {
	events := []*models.Event{
		{UserID: "u", TriggerSource: models.WorkingSourceJob, Trigger: "run the report"},
	}
	md := historyMarkdown(events, &models.User{})
	assert.Contains(t, md, "run the report")
	assert.NotContains(t, md, "**agent**")
}

func TestInstanceIDsSkipsSynthetic(t *testing.T) {
	ids := instanceIDs([]*models.ModuleInstance{
		{InstanceID: "chat_0a1b2c3d"},
		{}, // synthetic
		{InstanceID: "job_0a1b2c3d"},
	})
	assert.Equal(t, []string{"chat_0a1b2c3d", "job_0a1b2c3d"}, ids)
}

func toolCall(args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_1", Name: DirectMessageTool, Arguments: args}
}
