package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/mcp"
	"github.com/protagolabs/agentcore/pkg/models"
)

// DirectMessageTool is the built-in tool that marks its argument as the
// user-visible reply of the turn.
const DirectMessageTool = "send_message_to_user_directly"

// maxLoopIterations bounds the tool-call loop of a single turn.
const maxLoopIterations = 10

func directMessageToolDef() llm.ToolDef {
	return llm.ToolDef{
		Name:        DirectMessageTool,
		Description: "Send a message directly to the user. Use this for the final user-facing reply.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The message to show the user.",
				},
			},
			"required": []string{"message"},
		},
	}
}

// loopResult is what one agent loop produced.
type loopResult struct {
	// finalOutput is the assistant's last free-text content.
	finalOutput string

	// directReply is the last message sent through DirectMessageTool, empty
	// when the model never called it.
	directReply string

	log []models.EventLogEntry
}

// runLoop drives the streaming tool-call loop until the model stops
// requesting tools or the iteration cap is hit.
func (r *Runtime) runLoop(ctx context.Context, messages []llm.Message, executor *mcp.ToolExecutor, stream StreamFunc) (*loopResult, error) {
	tools := append(executor.ListTools(ctx), directMessageToolDef())
	res := &loopResult{}

	for iter := 0; iter < maxLoopIterations; iter++ {
		chunks, err := r.provider.Stream(ctx, llm.Request{Messages: messages, Tools: tools})
		if err != nil {
			return nil, fmt.Errorf("agent loop stream: %w", err)
		}

		var content string
		var calls []llm.ToolCall
		for chunk := range chunks {
			switch {
			case chunk.Err != nil:
				return nil, fmt.Errorf("agent loop stream: %w", chunk.Err)
			case chunk.Delta != "":
				content += chunk.Delta
				stream.emit(StreamMessage{Type: StreamAgentDelta, Content: chunk.Delta})
			case len(chunk.ToolCalls) > 0:
				calls = append(calls, chunk.ToolCalls...)
			}
		}

		if content != "" {
			res.finalOutput = content
			res.log = append(res.log, models.EventLogEntry{
				Kind:      models.EventLogThinking,
				Timestamp: time.Now().UTC(),
				Content:   content,
			})
		}
		if len(calls) == 0 {
			return res, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		for _, call := range calls {
			messages = append(messages, r.dispatchTool(ctx, call, executor, res, stream))
		}
	}

	r.logger.Warn("Agent loop hit iteration cap", "iterations", maxLoopIterations)
	return res, nil
}

// dispatchTool executes one tool call and returns the tool message to feed
// back into the conversation.
func (r *Runtime) dispatchTool(ctx context.Context, call llm.ToolCall, executor *mcp.ToolExecutor, res *loopResult, stream StreamFunc) llm.Message {
	stream.emit(StreamMessage{Type: StreamToolCall, ToolName: call.Name, ToolInput: call.Arguments})

	var output string
	if call.Name == DirectMessageTool {
		output = r.handleDirectMessage(call, res)
	} else {
		result := executor.Execute(ctx, call)
		output = result.Content
		if result.IsError {
			output = "tool error: " + result.Content
		}
	}

	res.log = append(res.log, models.EventLogEntry{
		Kind:       models.EventLogToolCall,
		Timestamp:  time.Now().UTC(),
		ToolName:   call.Name,
		ToolInput:  call.Arguments,
		ToolOutput: output,
	})
	stream.emit(StreamMessage{Type: StreamToolResult, ToolName: call.Name, ToolOutput: output})

	return llm.Message{
		Role:       llm.RoleTool,
		Content:    output,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

func (r *Runtime) handleDirectMessage(call llm.ToolCall, res *loopResult) string {
	var args struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.Message == "" {
		slog.Default().Warn("Malformed direct message arguments", "arguments", call.Arguments)
		return "error: expected {\"message\": \"...\"}"
	}
	res.directReply = args.Message
	return "message delivered"
}
