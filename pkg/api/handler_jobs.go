package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/planner"
)

// listJobsHandler handles GET /api/jobs?agent_id=&user_id=&status=.
func (s *Server) listJobsHandler(c *echo.Context) error {
	agentID := c.QueryParam("agent_id")
	userID := c.QueryParam("user_id")
	if agentID == "" || userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id and user_id are required")
	}

	var statuses []models.JobStatus
	if v := c.QueryParam("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			statuses = append(statuses, models.JobStatus(raw))
		}
	}

	jobs, err := s.deps.Jobs.ListForAgentUser(c.Request().Context(), agentID, userID, statuses)
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, jobs)
}

// getJobHandler handles GET /api/jobs/:job_id.
func (s *Server) getJobHandler(c *echo.Context) error {
	job, err := s.deps.Jobs.Get(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return ok(c, job)
}

// cancelJobHandler handles PUT /api/jobs/:job_id/cancel.
func (s *Server) cancelJobHandler(c *echo.Context) error {
	return s.setJobStatus(c, models.JobStatusCancelled)
}

// pauseJobHandler handles PUT /api/jobs/:job_id/pause.
func (s *Server) pauseJobHandler(c *echo.Context) error {
	return s.setJobStatus(c, models.JobStatusPaused)
}

// resumeJobHandler handles PUT /api/jobs/:job_id/resume.
func (s *Server) resumeJobHandler(c *echo.Context) error {
	return s.setJobStatus(c, models.JobStatusActive)
}

func (s *Server) setJobStatus(c *echo.Context, status models.JobStatus) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	jobID := c.Param("job_id")
	if err := s.deps.Jobs.SetStatus(c.Request().Context(), jobID, userID, status); err != nil {
		return mapServiceError(err)
	}
	// A cancelled job releases its dependents through the instance poller.
	if status.IsTerminal() {
		if job, err := s.deps.Jobs.Get(c.Request().Context(), jobID); err == nil {
			if err := s.deps.Instances.SetStatus(c.Request().Context(), job.InstanceID, models.InstanceStatusCancelled); err != nil {
				s.logger.Warn("Cancelling job instance failed", "instance_id", job.InstanceID, "error", err)
			}
		}
	}
	return ok(c, map[string]any{"status": status})
}

// runNowJobHandler handles POST /api/jobs/:job_id/run-now.
func (s *Server) runNowJobHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if err := s.deps.Jobs.SetNextRunNow(c.Request().Context(), c.Param("job_id"), userID); err != nil {
		return mapServiceError(err)
	}
	return ok(c, map[string]any{"scheduled": true})
}

// complexJobRequest is the batch creation payload: a dependency graph of
// jobs materialized through the same path the planner uses.
type complexJobRequest struct {
	AgentID     string `json:"agent_id"`
	UserID      string `json:"user_id"`
	NarrativeID string `json:"narrative_id"`
	Jobs        []struct {
		TaskKey     string             `json:"task_key"`
		Description string             `json:"description"`
		DependsOn   []string           `json:"depends_on"`
		JobConfig   *planner.JobConfig `json:"job_config"`
	} `json:"jobs"`
}

// createComplexJobsHandler handles POST /api/jobs/complex.
func (s *Server) createComplexJobsHandler(c *echo.Context) error {
	var req complexJobRequest
	if err := c.Bind(&req); err != nil || req.AgentID == "" || req.UserID == "" || len(req.Jobs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id, user_id and jobs are required")
	}

	ctx := c.Request().Context()
	narrativeID := req.NarrativeID
	if narrativeID == "" {
		narrative, _, err := s.deps.Narratives.GetOrCreate(ctx, req.AgentID, []string{req.UserID})
		if err != nil {
			return mapServiceError(err)
		}
		narrativeID = narrative.NarrativeID
	}

	planned := make([]*planner.PlanInstance, 0, len(req.Jobs))
	for _, j := range req.Jobs {
		if j.TaskKey == "" || j.JobConfig == nil || j.JobConfig.Title == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "every job needs task_key and job_config.title")
		}
		planned = append(planned, &planner.PlanInstance{
			TaskKey:     j.TaskKey,
			ModuleClass: models.ModuleClassJob,
			Description: j.Description,
			Status:      models.InstanceStatusActive,
			DependsOn:   j.DependsOn,
			JobConfig:   j.JobConfig,
		})
	}

	socialInstanceID := ""
	if id, err := s.agentInstanceID(c, models.ModuleClassSocialNetwork); err == nil {
		socialInstanceID = id
	}

	synced, err := s.deps.Sync.Process(ctx, req.AgentID, req.UserID, narrativeID, planned, socialInstanceID)
	if err != nil {
		return mapServiceError(err)
	}

	created := make([]map[string]any, 0, len(synced.Raw))
	for _, p := range synced.Raw {
		created = append(created, map[string]any{
			"task_key":    p.TaskKey,
			"instance_id": p.InstanceID,
			"is_existing": p.IsExisting || p.SimilarMatch,
		})
	}
	return ok(c, map[string]any{"narrative_id": narrativeID, "jobs": created})
}
