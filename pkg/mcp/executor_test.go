package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/models"
)

func TestSplitToolName(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		server, tool, err := SplitToolName("mcp_0a1b2c3d__get_weather")
		require.NoError(t, err)
		assert.Equal(t, "mcp_0a1b2c3d", server)
		assert.Equal(t, "get_weather", tool)
	})

	t.Run("tool name containing the separator", func(t *testing.T) {
		// Split at the first separator only.
		server, tool, err := SplitToolName("srv__ns__tool")
		require.NoError(t, err)
		assert.Equal(t, "srv", server)
		assert.Equal(t, "ns__tool", tool)
	})

	for _, bad := range []string{"no_separator", "__tool", "server__", "__", ""} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, _, err := SplitToolName(bad)
			assert.Error(t, err)
		})
	}
}

func TestParseArguments(t *testing.T) {
	t.Run("empty means no parameters", func(t *testing.T) {
		args, err := ParseArguments("  ")
		require.NoError(t, err)
		assert.Empty(t, args)
	})

	t.Run("json object passes through", func(t *testing.T) {
		args, err := ParseArguments(`{"city": "Berlin", "days": 3}`)
		require.NoError(t, err)
		assert.Equal(t, "Berlin", args["city"])
		assert.Equal(t, float64(3), args["days"])
	})

	t.Run("json scalar is wrapped", func(t *testing.T) {
		args, err := ParseArguments(`"Berlin"`)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"input": "Berlin"}, args)
	})

	t.Run("json array is wrapped", func(t *testing.T) {
		args, err := ParseArguments(`[1, 2]`)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"input": []any{float64(1), float64(2)}}, args)
	})

	t.Run("raw string is wrapped", func(t *testing.T) {
		args, err := ParseArguments("just text")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"input": "just text"}, args)
	})
}

func TestSchemaToMap(t *testing.T) {
	t.Run("nil schema", func(t *testing.T) {
		assert.Equal(t, map[string]any{"type": "object"}, schemaToMap(nil))
	})

	t.Run("structured schema", func(t *testing.T) {
		schema := map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
		}
		out := schemaToMap(schema)
		assert.Equal(t, "object", out["type"])
		assert.Contains(t, out, "properties")
	})

	t.Run("unmarshalable schema falls back", func(t *testing.T) {
		assert.Equal(t, map[string]any{"type": "object"}, schemaToMap(func() {}))
	})
}

func TestServersFromURLsAndFailedServers(t *testing.T) {
	servers := ServersFromURLs([]*models.MCPUrl{
		{MCPID: "mcp_0a1b2c3d", Name: "weather", URL: "http://localhost:1"},
	})
	require.Len(t, servers, 1)
	assert.Equal(t, "mcp_0a1b2c3d", servers[0].ID)

	client := NewClient(servers)

	// Nothing connected yet: routing to the server reports it plainly.
	_, err := client.session("mcp_0a1b2c3d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	_, err = client.session("mcp_unknown1")
	assert.Error(t, err)

	assert.Empty(t, client.FailedServers())
}
