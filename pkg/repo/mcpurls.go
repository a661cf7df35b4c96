package repo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// MCPUrlRepo manages remote MCP endpoint registrations.
type MCPUrlRepo struct {
	store *database.Store
}

// NewMCPUrlRepo creates an MCPUrlRepo.
func NewMCPUrlRepo(store *database.Store) *MCPUrlRepo {
	return &MCPUrlRepo{store: store}
}

// Create registers an endpoint for (agent, user). The URL must be absolute
// http(s); reachability is probed separately.
func (r *MCPUrlRepo) Create(ctx context.Context, agentID, userID, name, rawURL, description string) (*models.MCPUrl, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if err := validateMCPURL(rawURL); err != nil {
		return nil, err
	}
	m := &models.MCPUrl{
		MCPID:            models.NewID(models.PrefixMCP),
		AgentID:          agentID,
		UserID:           userID,
		Name:             name,
		URL:              rawURL,
		Description:      description,
		IsEnabled:        true,
		ConnectionStatus: models.ConnectionStatusUnknown,
	}
	err := r.store.Insert(ctx, "mcp_urls", map[string]any{
		"mcp_id":            m.MCPID,
		"agent_id":          m.AgentID,
		"user_id":           m.UserID,
		"name":              m.Name,
		"url":               m.URL,
		"description":       m.Description,
		"is_enabled":        m.IsEnabled,
		"connection_status": string(m.ConnectionStatus),
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Get loads one registration.
func (r *MCPUrlRepo) Get(ctx context.Context, mcpID string) (*models.MCPUrl, error) {
	row, err := r.store.GetOne(ctx, "mcp_urls", map[string]any{"mcp_id": mcpID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("mcp url %s: %w", mcpID, ErrNotFound)
	}
	return mcpURLFromRow(row), nil
}

// ListEnabled returns the enabled endpoints for (agent, user).
func (r *MCPUrlRepo) ListEnabled(ctx context.Context, agentID, userID string) ([]*models.MCPUrl, error) {
	rows, err := r.store.Get(ctx, "mcp_urls",
		map[string]any{"agent_id": agentID, "user_id": userID, "is_enabled": true},
		&database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	return mcpURLsFromRows(rows), nil
}

// List returns all endpoints for (agent, user).
func (r *MCPUrlRepo) List(ctx context.Context, agentID, userID string) ([]*models.MCPUrl, error) {
	rows, err := r.store.Get(ctx, "mcp_urls",
		map[string]any{"agent_id": agentID, "user_id": userID},
		&database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	return mcpURLsFromRows(rows), nil
}

// Update edits name/url/description/is_enabled with owner authority.
func (r *MCPUrlRepo) Update(ctx context.Context, mcpID, userID string, data map[string]any) error {
	m, err := r.Get(ctx, mcpID)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return fmt.Errorf("mcp url %s: %w", mcpID, ErrNotAuthorized)
	}
	allowed := map[string]any{}
	for _, field := range []string{"name", "description", "is_enabled"} {
		if v, ok := data[field]; ok {
			allowed[field] = v
		}
	}
	if raw, ok := data["url"].(string); ok {
		if err := validateMCPURL(raw); err != nil {
			return err
		}
		allowed["url"] = raw
		allowed["connection_status"] = string(models.ConnectionStatusUnknown)
	}
	if len(allowed) == 0 {
		return NewValidationError("data", "no updatable fields")
	}
	_, err = r.store.Update(ctx, "mcp_urls", map[string]any{"mcp_id": mcpID}, allowed)
	return err
}

// Delete removes a registration with owner authority.
func (r *MCPUrlRepo) Delete(ctx context.Context, mcpID, userID string) error {
	m, err := r.Get(ctx, mcpID)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return fmt.Errorf("mcp url %s: %w", mcpID, ErrNotAuthorized)
	}
	_, err = r.store.Delete(ctx, "mcp_urls", map[string]any{"mcp_id": mcpID})
	return err
}

// RecordProbe persists the outcome of a connection check.
func (r *MCPUrlRepo) RecordProbe(ctx context.Context, mcpID string, status models.ConnectionStatus, probeErr string) error {
	_, err := r.store.Update(ctx, "mcp_urls",
		map[string]any{"mcp_id": mcpID},
		map[string]any{
			"connection_status": string(status),
			"last_check_time":   time.Now().UTC(),
			"last_error":        probeErr,
		})
	return err
}

func validateMCPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("url", "must be an absolute http(s) URL")
	}
	return nil
}

func mcpURLsFromRows(rows []database.Row) []*models.MCPUrl {
	out := make([]*models.MCPUrl, 0, len(rows))
	for _, row := range rows {
		out = append(out, mcpURLFromRow(row))
	}
	return out
}

func mcpURLFromRow(row database.Row) *models.MCPUrl {
	return &models.MCPUrl{
		MCPID:            rowString(row, "mcp_id"),
		AgentID:          rowString(row, "agent_id"),
		UserID:           rowString(row, "user_id"),
		Name:             rowString(row, "name"),
		URL:              rowString(row, "url"),
		Description:      rowString(row, "description"),
		IsEnabled:        rowBool(row, "is_enabled"),
		ConnectionStatus: models.ConnectionStatus(rowString(row, "connection_status")),
		LastCheckTime:    rowTimePtr(row, "last_check_time"),
		LastError:        rowString(row, "last_error"),
		CreatedAt:        rowTime(row, "created_at"),
		UpdatedAt:        rowTime(row, "updated_at"),
	}
}
