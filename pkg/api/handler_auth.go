package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// loginHandler handles POST /api/auth/login. Login is an existence check
// plus a last-login stamp; there are no credentials at this layer.
func (s *Server) loginHandler(c *echo.Context) error {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	ctx := c.Request().Context()
	user, err := s.deps.Users.Get(ctx, req.UserID)
	if err != nil {
		return mapServiceError(err)
	}
	if err := s.deps.Users.TouchLogin(ctx, user.UserID); err != nil {
		s.logger.Warn("Stamping login failed", "user_id", user.UserID, "error", err)
	}
	return ok(c, user)
}

// createUserHandler handles POST /api/auth/create-user. Admin-gated.
func (s *Server) createUserHandler(c *echo.Context) error {
	var req struct {
		UserID      string `json:"user_id"`
		Type        string `json:"type"`
		DisplayName string `json:"display_name"`
		Timezone    string `json:"timezone"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	user, err := s.deps.Users.Create(c.Request().Context(), req.UserID, req.Type, req.DisplayName, req.Timezone)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, user)
}

// createAgentHandler handles POST /api/auth/agents.
func (s *Server) createAgentHandler(c *echo.Context) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		UserID      string `json:"user_id"`
		IsPublic    bool   `json:"is_public"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and user_id are required")
	}

	ctx := c.Request().Context()
	agent, err := s.deps.Agents.Create(ctx, req.Name, req.Description, req.UserID, req.IsPublic)
	if err != nil {
		return mapServiceError(err)
	}

	// Agent-level capability instances exist from birth.
	if _, err := s.deps.Factory.EnsureAgentLevelInstances(ctx, agent.AgentID); err != nil {
		s.logger.Warn("Seeding agent-level instances failed", "agent_id", agent.AgentID, "error", err)
	}
	return ok(c, agent)
}

// listAgentsHandler handles GET /api/auth/agents?user_id=.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	agents, err := s.deps.Agents.ListVisible(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, agents)
}

// getAgentHandler handles GET /api/auth/agents/:agent_id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agent, err := s.deps.Agents.Get(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, agent)
}

// updateAgentHandler handles PUT /api/auth/agents/:agent_id.
func (s *Server) updateAgentHandler(c *echo.Context) error {
	var req struct {
		UserID      string  `json:"user_id"`
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	data := map[string]any{}
	if req.Name != nil {
		data["name"] = *req.Name
	}
	if req.Description != nil {
		data["description"] = *req.Description
	}
	if req.IsPublic != nil {
		data["is_public"] = *req.IsPublic
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	if err := s.deps.Agents.Update(c.Request().Context(), c.Param("agent_id"), req.UserID, data); err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"updated": true})
}

// deleteAgentHandler handles DELETE /api/auth/agents/:agent_id. Runs the
// full cascade.
func (s *Server) deleteAgentHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if err := s.deps.Agents.Delete(c.Request().Context(), c.Param("agent_id"), userID); err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"deleted": true})
}
