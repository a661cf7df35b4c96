// Package memory is the client for the external episodic memory service.
// Episodes are grouped by narrative; clients are cached per (agent, user).
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/protagolabs/agentcore/pkg/config"
)

// Episode is one stored memory item.
type Episode struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	GroupID   string    `json:"group_id"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score,omitempty"`
}

// Client talks to one (agent, user) scope of the memory service.
type Client struct {
	baseURL string
	agentID string
	userID  string
	http    *http.Client
}

// NewClient creates a memory client for an (agent, user) pair.
func NewClient(cfg config.MemoryConfig, agentID, userID string) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		agentID: agentID,
		userID:  userID,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type addRequest struct {
	AgentID  string    `json:"agent_id"`
	UserID   string    `json:"user_id"`
	Episodes []Episode `json:"episodes"`
}

type searchRequest struct {
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
}

type searchResponse struct {
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Episodes []Episode `json:"episodes"`
}

// Add appends episodes to the store.
func (c *Client) Add(ctx context.Context, episodes []Episode) error {
	if len(episodes) == 0 {
		return nil
	}
	var resp searchResponse
	err := c.post(ctx, "/api/v1/memories", addRequest{
		AgentID:  c.agentID,
		UserID:   c.userID,
		Episodes: episodes,
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("memory add: %s", resp.Error)
	}
	return nil
}

// Search retrieves episodes relevant to the query within a narrative group.
func (c *Client) Search(ctx context.Context, groupID, query string, limit int) ([]Episode, error) {
	var resp searchResponse
	err := c.post(ctx, "/api/v1/memories/search", searchRequest{
		AgentID: c.agentID,
		UserID:  c.userID,
		GroupID: groupID,
		Query:   query,
		Limit:   limit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("memory search: %s", resp.Error)
	}
	return resp.Episodes, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("memory request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("memory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("memory service: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memory service: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("memory service: bad response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
