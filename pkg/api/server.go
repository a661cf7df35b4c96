// Package api exposes the HTTP and WebSocket surface: auth and agent
// lifecycle, per-agent data endpoints, job and inbox management, and the
// streaming run protocol.
package api

import (
	"context"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/modules"
	"github.com/protagolabs/agentcore/pkg/planner"
	"github.com/protagolabs/agentcore/pkg/repo"
	"github.com/protagolabs/agentcore/pkg/runtime"
)

// PoolStatus reports worker-pool occupancy. Implemented by the job engine
// and the instance poller.
type PoolStatus interface {
	Status() map[string]any
}

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Config  *config.Config
	DB      *database.Client
	Runtime *runtime.Runtime
	Sync    *planner.InstanceSync
	Factory *modules.InstanceFactory
	LLM     llm.Provider
	Engine  PoolStatus
	Poller  PoolStatus

	Users      *repo.UserRepo
	Agents     *repo.AgentRepo
	Narratives *repo.NarrativeRepo
	Events     *repo.EventRepo
	Instances  *repo.InstanceRepo
	Jobs       *repo.JobRepo
	Inbox      *repo.InboxRepo
	MCPUrls    *repo.MCPUrlRepo
	Social     *repo.SocialRepo
	Awareness  *repo.AwarenessRepo
	RAGStores  *repo.RAGStoreRepo
	Links      *repo.LinkRepo
}

// Server is the HTTP server.
type Server struct {
	deps   Deps
	echo   *echo.Echo
	http   *http.Server
	logger *slog.Logger
}

// NewServer creates the server and registers all routes.
func NewServer(deps Deps) *Server {
	e := echo.New()
	s := &Server{deps: deps, echo: e, logger: slog.Default()}

	e.HTTPErrorHandler = s.errorHandler
	e.Use(securityHeaders())
	e.Use(requestLogger())

	e.GET("/health", s.healthHandler)

	auth := e.Group("/api/auth")
	auth.POST("/login", s.loginHandler)
	auth.POST("/create-user", s.createUserHandler, s.requireAdmin)
	auth.POST("/agents", s.createAgentHandler)
	auth.GET("/agents", s.listAgentsHandler)
	auth.GET("/agents/:agent_id", s.getAgentHandler)
	auth.PUT("/agents/:agent_id", s.updateAgentHandler)
	auth.DELETE("/agents/:agent_id", s.deleteAgentHandler)

	agents := e.Group("/api/agents/:agent_id")
	agents.GET("/awareness", s.getAwarenessHandler)
	agents.PUT("/awareness", s.putAwarenessHandler)
	agents.GET("/social-network", s.listSocialHandler)
	agents.GET("/social-network/search", s.searchSocialHandler)
	agents.GET("/social-network/:user_id", s.getSocialHandler)
	agents.GET("/chat-history", s.chatHistoryHandler)
	agents.GET("/simple-chat-history", s.simpleChatHistoryHandler)
	agents.GET("/files", s.listFilesHandler)
	agents.POST("/files", s.uploadFileHandler)
	agents.DELETE("/files", s.deleteFileHandler)
	agents.GET("/mcps", s.listMCPsHandler)
	agents.POST("/mcps", s.createMCPHandler)
	agents.PUT("/mcps/:mcp_id", s.updateMCPHandler)
	agents.DELETE("/mcps/:mcp_id", s.deleteMCPHandler)
	agents.POST("/mcps/:mcp_id/validate", s.validateMCPHandler)
	agents.POST("/mcps/validate-all", s.validateAllMCPsHandler)
	agents.GET("/rag-files", s.listRAGFilesHandler)
	agents.POST("/rag-files", s.uploadRAGFileHandler)
	agents.DELETE("/rag-files", s.deleteRAGFileHandler)

	jobs := e.Group("/api/jobs")
	jobs.GET("", s.listJobsHandler)
	jobs.POST("/complex", s.createComplexJobsHandler)
	jobs.GET("/:job_id", s.getJobHandler)
	jobs.PUT("/:job_id/cancel", s.cancelJobHandler)
	jobs.PUT("/:job_id/pause", s.pauseJobHandler)
	jobs.PUT("/:job_id/resume", s.resumeJobHandler)
	jobs.POST("/:job_id/run-now", s.runNowJobHandler)

	inbox := e.Group("/api/inbox")
	inbox.GET("", s.listInboxHandler)
	inbox.PUT("/read-all", s.readAllInboxHandler)
	inbox.PUT("/:message_id/read", s.readInboxHandler)

	e.GET("/ws/agent/run", s.wsRunHandler)

	return s
}

// Start begins serving on addr. Blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	return s.http.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// envelope is the uniform response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// errorHandler renders every error through the envelope.
func (s *Server) errorHandler(c *echo.Context, err error) {
	he, isHTTP := err.(*echo.HTTPError)
	if !isHTTP {
		he = mapServiceError(err)
	}
	msg := he.Message
	if msg == "" {
		msg = http.StatusText(he.Code)
	}
	if writeErr := c.JSON(he.Code, envelope{Success: false, Error: msg}); writeErr != nil {
		s.logger.Debug("Writing error response failed", "error", writeErr)
	}
}
