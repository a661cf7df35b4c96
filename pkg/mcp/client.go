// Package mcp provides MCP (Model Context Protocol) client infrastructure
// for connecting to registered remote endpoints and executing their tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/version"
)

// InitTimeout bounds one endpoint handshake.
const InitTimeout = 15 * time.Second

// Server is one connectable endpoint: a registered mcp_urls row.
type Server struct {
	ID   string // registration id, used as the routing prefix
	Name string
	URL  string
}

// Client manages MCP SDK sessions for a set of servers. One Client is scoped
// to a single agent turn; sessions may be touched from parallel tool calls.
type Client struct {
	servers map[string]Server

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession
	failedServers map[string]string

	toolCache   map[string][]*mcpsdk.Tool
	toolCacheMu sync.RWMutex

	logger *slog.Logger
}

// NewClient creates a Client over the given servers.
func NewClient(servers []Server) *Client {
	byID := make(map[string]Server, len(servers))
	for _, s := range servers {
		byID[s.ID] = s
	}
	return &Client{
		servers:       byID,
		sessions:      make(map[string]*mcpsdk.ClientSession),
		failedServers: make(map[string]string),
		toolCache:     make(map[string][]*mcpsdk.Tool),
		logger:        slog.Default(),
	}
}

// ServersFromURLs adapts registration rows into connectable servers.
func ServersFromURLs(urls []*models.MCPUrl) []Server {
	out := make([]Server, 0, len(urls))
	for _, u := range urls {
		out = append(out, Server{ID: u.MCPID, Name: u.Name, URL: u.URL})
	}
	return out
}

// Initialize connects to every server. Failures are recorded, not fatal; a
// turn proceeds with the servers that answered.
func (c *Client) Initialize(ctx context.Context) {
	for id := range c.servers {
		if err := c.initServer(ctx, id); err != nil {
			c.mu.Lock()
			c.failedServers[id] = err.Error()
			c.mu.Unlock()
			c.logger.Warn("MCP server failed to initialize", "server", id, "error", err)
		}
	}
}

func (c *Client) initServer(ctx context.Context, serverID string) error {
	c.mu.RLock()
	_, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if exists {
		return nil
	}

	server, ok := c.servers[serverID]
	if !ok {
		return fmt.Errorf("unknown MCP server %q", serverID)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := connectWithFallback(initCtx, client, server.URL)
	if err != nil {
		return fmt.Errorf("connect to %q: %w", server.Name, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	delete(c.failedServers, serverID)
	c.mu.Unlock()
	return nil
}

// connectWithFallback tries the streamable HTTP transport first and falls
// back to SSE for older servers.
func connectWithFallback(ctx context.Context, client *mcpsdk.Client, url string) (*mcpsdk.ClientSession, error) {
	session, httpErr := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: url}, nil)
	if httpErr == nil {
		return session, nil
	}
	session, sseErr := client.Connect(ctx, &mcpsdk.SSEClientTransport{Endpoint: url}, nil)
	if sseErr == nil {
		return session, nil
	}
	return nil, fmt.Errorf("streamable: %v; sse: %w", httpErr, sseErr)
}

// ListTools returns the tools of one server, cached for the Client's
// lifetime.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	c.toolCacheMu.RLock()
	if tools, ok := c.toolCache[serverID]; ok {
		c.toolCacheMu.RUnlock()
		return tools, nil
	}
	c.toolCacheMu.RUnlock()

	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools on %q: %w", serverID, err)
	}

	c.toolCacheMu.Lock()
	c.toolCache[serverID] = result.Tools
	c.toolCacheMu.Unlock()
	return result.Tools, nil
}

// CallTool invokes one tool on one server.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call %s on %q: %w", toolName, serverID, err)
	}
	return result, nil
}

// FailedServers returns serverID → error for servers that did not connect.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failedServers))
	for k, v := range c.failedServers {
		out[k] = v
	}
	return out
}

// Close tears down every session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, session := range c.sessions {
		if err := session.Close(); err != nil {
			c.logger.Debug("MCP session close", "server", id, "error", err)
		}
		delete(c.sessions, id)
	}
}

func (c *Client) session(serverID string) (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[serverID]
	if !ok {
		if msg, failed := c.failedServers[serverID]; failed {
			return nil, fmt.Errorf("MCP server %q unavailable: %s", serverID, msg)
		}
		return nil, fmt.Errorf("MCP server %q not connected", serverID)
	}
	return session, nil
}

// Validate performs a standalone handshake against a raw URL: connect, list
// tools, disconnect. Used by the registration API before persisting a probe
// result.
func Validate(ctx context.Context, url string) (int, error) {
	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := connectWithFallback(initCtx, client, url)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	result, err := session.ListTools(initCtx, nil)
	if err != nil {
		return 0, fmt.Errorf("list tools: %w", err)
	}
	return len(result.Tools), nil
}
