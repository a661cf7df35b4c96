package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/mcp"
	"github.com/protagolabs/agentcore/pkg/models"
)

// listMCPsHandler handles GET /api/agents/:agent_id/mcps?user_id=.
func (s *Server) listMCPsHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	urls, err := s.deps.MCPUrls.List(c.Request().Context(), c.Param("agent_id"), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, urls)
}

// createMCPHandler handles POST /api/agents/:agent_id/mcps.
func (s *Server) createMCPHandler(c *echo.Context) error {
	var req struct {
		UserID      string `json:"user_id"`
		Name        string `json:"name"`
		URL         string `json:"url"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" || req.Name == "" || req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id, name and url are required")
	}
	url, err := s.deps.MCPUrls.Create(c.Request().Context(),
		c.Param("agent_id"), req.UserID, req.Name, req.URL, req.Description)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, url)
}

// updateMCPHandler handles PUT /api/agents/:agent_id/mcps/:mcp_id.
func (s *Server) updateMCPHandler(c *echo.Context) error {
	var req struct {
		UserID      string  `json:"user_id"`
		Name        *string `json:"name"`
		URL         *string `json:"url"`
		Description *string `json:"description"`
		IsEnabled   *bool   `json:"is_enabled"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	data := map[string]any{}
	if req.Name != nil {
		data["name"] = *req.Name
	}
	if req.URL != nil {
		data["url"] = *req.URL
	}
	if req.Description != nil {
		data["description"] = *req.Description
	}
	if req.IsEnabled != nil {
		data["is_enabled"] = *req.IsEnabled
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	if err := s.deps.MCPUrls.Update(c.Request().Context(), c.Param("mcp_id"), req.UserID, data); err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"updated": true})
}

// deleteMCPHandler handles DELETE /api/agents/:agent_id/mcps/:mcp_id?user_id=.
func (s *Server) deleteMCPHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if err := s.deps.MCPUrls.Delete(c.Request().Context(), c.Param("mcp_id"), userID); err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"deleted": true})
}

// validateMCPHandler handles POST /api/agents/:agent_id/mcps/:mcp_id/validate.
// Performs a live handshake and records the result.
func (s *Server) validateMCPHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	url, err := s.deps.MCPUrls.Get(ctx, c.Param("mcp_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, s.probeMCP(c, url))
}

// validateAllMCPsHandler handles POST /api/agents/:agent_id/mcps/validate-all?user_id=.
func (s *Server) validateAllMCPsHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	urls, err := s.deps.MCPUrls.List(c.Request().Context(), c.Param("agent_id"), userID)
	if err != nil {
		return mapServiceError(err)
	}

	results := make([]map[string]any, 0, len(urls))
	for _, url := range urls {
		results = append(results, s.probeMCP(c, url))
	}
	return ok(c, results)
}

func (s *Server) probeMCP(c *echo.Context, url *models.MCPUrl) map[string]any {
	ctx := c.Request().Context()

	toolCount, probeErr := mcp.Validate(ctx, url.URL)
	status := models.ConnectionStatusConnected
	errMsg := ""
	if probeErr != nil {
		status = models.ConnectionStatusFailed
		errMsg = probeErr.Error()
	}
	if err := s.deps.MCPUrls.RecordProbe(ctx, url.MCPID, status, errMsg); err != nil {
		s.logger.Warn("Recording probe failed", "mcp_id", url.MCPID, "error", err)
	}

	return map[string]any{
		"mcp_id":            url.MCPID,
		"name":              url.Name,
		"connection_status": status,
		"tool_count":        toolCount,
		"error":             errMsg,
	}
}
