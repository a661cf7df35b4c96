// Agentcore server: serves the HTTP/WebSocket API, runs the background
// job engine, and polls for instance completions.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/protagolabs/agentcore/pkg/api"
	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/jobs"
	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/memory"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/modules"
	"github.com/protagolabs/agentcore/pkg/notify"
	"github.com/protagolabs/agentcore/pkg/planner"
	"github.com/protagolabs/agentcore/pkg/poller"
	"github.com/protagolabs/agentcore/pkg/repo"
	"github.com/protagolabs/agentcore/pkg/runtime"
)

func main() {
	configDir := flag.String("config-dir", envOr("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting agentcore", "http_port", cfg.HTTPPort)

	// 2. Database (connect + migrate)
	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	store := dbClient.Store()

	// 3. Repositories
	users := repo.NewUserRepo(store)
	agents := repo.NewAgentRepo(store)
	narratives := repo.NewNarrativeRepo(store)
	events := repo.NewEventRepo(store)
	instances := repo.NewInstanceRepo(store)
	links := repo.NewLinkRepo(store)
	jobRepo := repo.NewJobRepo(store)
	inbox := repo.NewInboxRepo(store)
	social := repo.NewSocialRepo(store)
	awareness := repo.NewAwarenessRepo(store)
	ragStores := repo.NewRAGStoreRepo(store)
	memories := repo.NewMemoryRepo(store)
	mcpURLs := repo.NewMCPUrlRepo(store)

	// 4. LLM provider and memory service
	provider, err := llm.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	memCache := memory.NewClientCache(cfg.Memory, 256)

	// 5. Modules and planning
	registry := modules.NewRegistry(modules.Deps{
		Store:     store,
		Instances: instances,
		Jobs:      jobRepo,
		Events:    events,
		Users:     users,
		Social:    social,
		Awareness: awareness,
		RAGStores: ragStores,
		Memories:  memories,
		Links:     links,
		LLM:       provider,
		MemCache:  memCache,
		LLMConfig: cfg.LLM,
	})
	factory := modules.NewInstanceFactory(instances, links)
	decider := planner.NewInstanceDecider(provider, cfg.LLM)
	sync := planner.NewInstanceSync(store, instances, jobRepo, links, social, narratives, provider, cfg.Sync)
	loader := planner.NewModuleService(factory, decider, sync, jobRepo)
	resolver := planner.NewDependencyResolver(instances, jobRepo)

	// 6. Turn runtime
	rt := runtime.New(runtime.Deps{
		Config:     cfg,
		Provider:   provider,
		Registry:   registry,
		Loader:     loader,
		Factory:    factory,
		Agents:     agents,
		Users:      users,
		Narratives: narratives,
		Events:     events,
		Instances:  instances,
		MCPUrls:    mcpURLs,
		Awareness:  awareness,
		Inbox:      inbox,
	})

	// 7. Background engines
	notifier := notify.New(inbox, cfg.Slack)
	jobModuleIface, err := registry.Get(models.ModuleClassJob)
	if err != nil {
		slog.Error("Job module missing from registry", "error", err)
		os.Exit(1)
	}
	jobModule := jobModuleIface.(*modules.JobModule)

	engine := jobs.NewEngine(cfg.Engine, jobRepo, instances, users, social, rt, jobModule, notifier)
	if err := engine.Start(ctx); err != nil {
		slog.Error("Failed to start job engine", "error", err)
		os.Exit(1)
	}

	instancePoller := poller.New(cfg.Poller, instances, resolver)
	instancePoller.Start()

	// 8. HTTP server
	httpServer := api.NewServer(api.Deps{
		Config:     cfg,
		DB:         dbClient,
		Runtime:    rt,
		Sync:       sync,
		Factory:    factory,
		LLM:        provider,
		Engine:     engine,
		Poller:     instancePoller,
		Users:      users,
		Agents:     agents,
		Narratives: narratives,
		Events:     events,
		Instances:  instances,
		Jobs:       jobRepo,
		Inbox:      inbox,
		MCPUrls:    mcpURLs,
		Social:     social,
		Awareness:  awareness,
		RAGStores:  ragStores,
		Links:      links,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Agentcore started", "workers", cfg.Engine.MaxWorkers)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: poller first, then the engine drains, then HTTP.
	instancePoller.Stop()
	engine.Stop()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
