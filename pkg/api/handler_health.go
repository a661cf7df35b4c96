package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/version"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{}
	if s.deps.Engine != nil {
		checks["worker_pool"] = s.deps.Engine.Status()
	}
	if s.deps.Poller != nil {
		checks["instance_poller"] = s.deps.Poller.Status()
	}

	dbHealth, err := database.Health(ctx, s.deps.DB.DB())
	checks["database"] = dbHealth
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, envelope{
			Success: false,
			Data:    map[string]any{"status": "unhealthy", "checks": checks},
			Error:   err.Error(),
		})
	}
	return ok(c, map[string]any{
		"status":  "healthy",
		"checks":  checks,
		"version": version.GitCommit,
	})
}
