package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listInboxHandler handles GET /api/inbox?user_id=&unread_only=&limit=&offset=.
func (s *Server) listInboxHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	ctx := c.Request().Context()

	unreadOnly := c.QueryParam("unread_only") == "true"
	limit := queryInt(c, "limit", 50)
	offset := 0
	if v := queryInt(c, "offset", 0); v > 0 {
		offset = v
	}

	messages, err := s.deps.Inbox.List(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return mapServiceError(err)
	}
	unread, err := s.deps.Inbox.UnreadCount(ctx, userID)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"messages": messages, "unread_count": unread})
}

// readInboxHandler handles PUT /api/inbox/:message_id/read?user_id=.
func (s *Server) readInboxHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	updated, err := s.deps.Inbox.MarkRead(c.Request().Context(), userID, []string{c.Param("message_id")})
	if err != nil {
		return mapServiceError(err)
	}
	if updated == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	}
	return ok(c, map[string]any{"read": true})
}

// readAllInboxHandler handles PUT /api/inbox/read-all?user_id=.
func (s *Server) readAllInboxHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	updated, err := s.deps.Inbox.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"marked_read": updated})
}
