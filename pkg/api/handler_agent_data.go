package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/models"
)

// agentInstanceID resolves the agent-level instance of a class, creating
// the agent-level set on first touch.
func (s *Server) agentInstanceID(c *echo.Context, class models.ModuleClass) (string, error) {
	ensured, err := s.deps.Factory.EnsureAgentLevelInstances(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return "", err
	}
	for _, inst := range ensured {
		if inst.ModuleClass == class {
			return inst.InstanceID, nil
		}
	}
	return "", echo.NewHTTPError(http.StatusNotFound, "agent has no "+string(class)+" instance")
}

// getAwarenessHandler handles GET /api/agents/:agent_id/awareness.
func (s *Server) getAwarenessHandler(c *echo.Context) error {
	instanceID, err := s.agentInstanceID(c, models.ModuleClassAwareness)
	if err != nil {
		return mapServiceError(err)
	}
	text, err := s.deps.Awareness.Get(c.Request().Context(), instanceID)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"awareness": text})
}

// putAwarenessHandler handles PUT /api/agents/:agent_id/awareness.
func (s *Server) putAwarenessHandler(c *echo.Context) error {
	var req struct {
		Awareness string `json:"awareness"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	instanceID, err := s.agentInstanceID(c, models.ModuleClassAwareness)
	if err != nil {
		return mapServiceError(err)
	}
	if err := s.deps.Awareness.Save(c.Request().Context(), instanceID, c.Param("agent_id"), req.Awareness); err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"saved": true})
}

// listSocialHandler handles GET /api/agents/:agent_id/social-network.
func (s *Server) listSocialHandler(c *echo.Context) error {
	instanceID, err := s.agentInstanceID(c, models.ModuleClassSocialNetwork)
	if err != nil {
		return mapServiceError(err)
	}
	limit := queryInt(c, "limit", 50)
	entities, err := s.deps.Social.List(c.Request().Context(), instanceID, limit)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, entities)
}

// getSocialHandler handles GET /api/agents/:agent_id/social-network/:user_id.
func (s *Server) getSocialHandler(c *echo.Context) error {
	instanceID, err := s.agentInstanceID(c, models.ModuleClassSocialNetwork)
	if err != nil {
		return mapServiceError(err)
	}
	ent, err := s.deps.Social.Get(c.Request().Context(), instanceID, c.Param("user_id"))
	if err != nil {
		return mapServiceError(err)
	}
	if ent == nil {
		return echo.NewHTTPError(http.StatusNotFound, "social entity not found")
	}
	return ok(c, ent)
}

// searchSocialHandler handles GET /api/agents/:agent_id/social-network/search?q=.
func (s *Server) searchSocialHandler(c *echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	instanceID, err := s.agentInstanceID(c, models.ModuleClassSocialNetwork)
	if err != nil {
		return mapServiceError(err)
	}

	ctx := c.Request().Context()
	vecs, err := s.deps.LLM.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "embedding unavailable")
	}
	entities, scores, err := s.deps.Social.Search(ctx, instanceID, vecs[0], queryInt(c, "limit", 10), 0.3)
	if err != nil {
		return mapServiceError(err)
	}

	results := make([]map[string]any, len(entities))
	for i, ent := range entities {
		results[i] = map[string]any{"entity": ent, "similarity": scores[i]}
	}
	return ok(c, results)
}

// chatHistoryHandler handles GET /api/agents/:agent_id/chat-history?user_id=.
// Returns recent events grouped by narrative.
func (s *Server) chatHistoryHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	ctx := c.Request().Context()

	narratives, err := s.deps.Narratives.FindForActors(ctx, c.Param("agent_id"), []string{userID})
	if err != nil {
		return mapServiceError(err)
	}
	limit := queryInt(c, "limit", 50)

	out := make([]map[string]any, 0, len(narratives))
	for _, nar := range narratives {
		events, err := s.deps.Events.Recent(ctx, nar.NarrativeID, limit)
		if err != nil {
			return mapServiceError(err)
		}
		out = append(out, map[string]any{
			"narrative": nar,
			"events":    events,
		})
	}
	return ok(c, out)
}

// simpleChatHistoryHandler handles GET /api/agents/:agent_id/simple-chat-history?user_id=.
// The flat cross-narrative feed short-term memory reads from.
func (s *Server) simpleChatHistoryHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	events, err := s.deps.Events.RecentForUser(c.Request().Context(),
		c.Param("agent_id"), userID, queryInt(c, "limit", 30))
	if err != nil {
		return mapServiceError(err)
	}

	messages := make([]map[string]any, 0, len(events)*2)
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		messages = append(messages, map[string]any{
			"role": "user", "content": ev.Trigger,
			"working_source": ev.TriggerSource, "timestamp": ev.CreatedAt,
		})
		if ev.FinalOutput != "" {
			messages = append(messages, map[string]any{
				"role": "assistant", "content": ev.FinalOutput,
				"working_source": ev.TriggerSource, "timestamp": ev.CreatedAt,
			})
		}
	}
	return ok(c, messages)
}

func queryInt(c *echo.Context, name string, defaultVal int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}
