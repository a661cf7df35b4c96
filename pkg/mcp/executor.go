package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/protagolabs/agentcore/pkg/llm"
)

// toolSeparator joins server id and tool name in the model-facing tool name.
const toolSeparator = "__"

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// ToolExecutor routes model tool calls of the form "server__tool" to the
// connected MCP servers. Created per agent turn.
type ToolExecutor struct {
	client *Client
	logger *slog.Logger
}

// NewToolExecutor creates an executor over an initialized Client.
func NewToolExecutor(client *Client) *ToolExecutor {
	return &ToolExecutor{client: client, logger: slog.Default()}
}

// ListTools returns every connected server's tools as model tool defs, with
// server-prefixed names. Servers that fail to list are skipped; partial
// tools are better than none.
func (e *ToolExecutor) ListTools(ctx context.Context) []llm.ToolDef {
	var out []llm.ToolDef
	for serverID := range e.client.servers {
		tools, err := e.client.ListTools(ctx, serverID)
		if err != nil {
			e.logger.Warn("Failed to list tools from MCP server", "server", serverID, "error", err)
			continue
		}
		for _, tool := range tools {
			out = append(out, llm.ToolDef{
				Name:        serverID + toolSeparator + tool.Name,
				Description: tool.Description,
				Parameters:  schemaToMap(tool.InputSchema),
			})
		}
	}
	return out
}

// Execute runs one tool call. Routing and execution failures come back as
// error-flagged results, not Go errors, so the model can react to them.
func (e *ToolExecutor) Execute(ctx context.Context, call llm.ToolCall) *ToolResult {
	serverID, toolName, err := SplitToolName(call.Name)
	if err != nil {
		return &ToolResult{CallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true}
	}

	args, err := ParseArguments(call.Arguments)
	if err != nil {
		return &ToolResult{
			CallID: call.ID, Name: call.Name,
			Content: fmt.Sprintf("failed to parse tool arguments: %s", err),
			IsError: true,
		}
	}

	result, err := e.client.CallTool(ctx, serverID, toolName, args)
	if err != nil {
		return &ToolResult{
			CallID: call.ID, Name: call.Name,
			Content: fmt.Sprintf("MCP tool execution failed: %s", err),
			IsError: true,
		}
	}

	return &ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: extractTextContent(result),
		IsError: result.IsError,
	}
}

// SplitToolName splits "server__tool" into its parts.
func SplitToolName(name string) (serverID, toolName string, err error) {
	idx := strings.Index(name, toolSeparator)
	if idx <= 0 || idx+len(toolSeparator) >= len(name) {
		return "", "", fmt.Errorf("tool name %q is not of the form server%stool", name, toolSeparator)
	}
	return name[:idx], name[idx+len(toolSeparator):], nil
}

// ParseArguments parses a raw arguments string. JSON objects pass through;
// other JSON values and raw strings are wrapped as {"input": value}. Empty
// input means a no-parameter tool.
func ParseArguments(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(input), &obj); err == nil {
		return obj, nil
	}
	var val any
	if err := json.Unmarshal([]byte(input), &val); err == nil {
		return map[string]any{"input": val}, nil
	}
	return map[string]any{"input": input}, nil
}

// extractTextContent concatenates text content items of a tool result.
// Non-text content is skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// schemaToMap converts a tool's input schema into the generic JSON-schema
// map the model API expects.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || len(out) == 0 {
		return map[string]any{"type": "object"}
	}
	return out
}
