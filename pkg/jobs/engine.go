// Package jobs runs the background job engine: a polling dispatcher and a
// worker pool that claim due jobs atomically, execute them as agent turns,
// and interpret the outcome into the next schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/modules"
	"github.com/protagolabs/agentcore/pkg/notify"
	"github.com/protagolabs/agentcore/pkg/planner"
	"github.com/protagolabs/agentcore/pkg/repo"
	"github.com/protagolabs/agentcore/pkg/runtime"
)

// Engine polls for due jobs and executes them through the agent runtime.
type Engine struct {
	cfg       config.EngineConfig
	jobs      *repo.JobRepo
	instances *repo.InstanceRepo
	users     *repo.UserRepo
	social    *repo.SocialRepo
	runtime   *runtime.Runtime
	jobModule *modules.JobModule
	notifier  *notify.Notifier

	queue chan string

	mu        sync.Mutex
	inFlight  map[string]struct{}
	socialIDs map[string]string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewEngine creates a job engine.
func NewEngine(cfg config.EngineConfig, jobs *repo.JobRepo, instances *repo.InstanceRepo, users *repo.UserRepo, social *repo.SocialRepo, rt *runtime.Runtime, jobModule *modules.JobModule, notifier *notify.Notifier) *Engine {
	return &Engine{
		cfg:       cfg,
		jobs:      jobs,
		instances: instances,
		users:     users,
		social:    social,
		runtime:   rt,
		jobModule: jobModule,
		notifier:  notifier,
		queue:     make(chan string, cfg.QueueSize),
		inFlight:  map[string]struct{}{},
		socialIDs: map[string]string{},
		stopCh:    make(chan struct{}),
		logger:    slog.Default().With("component", "job_engine"),
	}
}

// Start recovers jobs stranded by a previous crash, then launches the
// dispatcher and workers.
func (e *Engine) Start(ctx context.Context) error {
	recovered, err := e.jobs.RecoverStartup(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	if recovered > 0 {
		e.logger.Info("Recovered stranded jobs", "count", recovered)
	}

	e.wg.Add(1)
	go e.dispatchLoop()
	for i := 0; i < e.cfg.MaxWorkers; i++ {
		e.wg.Add(1)
		go e.workerLoop(i)
	}
	e.logger.Info("Job engine started",
		"workers", e.cfg.MaxWorkers, "poll_interval", e.cfg.PollInterval)
	return nil
}

// Stop drains in-flight work, bounded by DrainTimeout.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			e.logger.Info("Job engine stopped")
		case <-time.After(e.cfg.DrainTimeout):
			e.logger.Warn("Job engine drain timed out", "timeout", e.cfg.DrainTimeout)
		}
	})
}

// dispatchLoop polls on a jittered interval, rescues orphans, and enqueues
// due jobs that are not already in flight.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-time.After(e.cfg.PollInterval + jitter(e.cfg.PollIntervalJitter)):
			e.pollOnce()
		}
	}
}

func (e *Engine) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PollInterval)
	defer cancel()

	rescued, err := e.jobs.ResetOrphans(ctx, time.Now().UTC().Add(-e.cfg.JobTimeout))
	if err != nil {
		e.logger.Warn("Orphan reset failed", "error", err)
	} else if rescued > 0 {
		e.logger.Info("Rescued orphaned jobs", "count", rescued)
	}

	due, err := e.jobs.Due(ctx, time.Now().UTC(), e.cfg.QueueSize)
	if err != nil {
		e.logger.Error("Polling due jobs failed", "error", err)
		return
	}
	for _, job := range due {
		if !e.markInFlight(job.JobID) {
			continue
		}
		select {
		case e.queue <- job.JobID:
		default:
			// Queue full, try again next tick.
			e.clearInFlight(job.JobID)
			return
		}
	}
}

func (e *Engine) workerLoop(id int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case jobID := <-e.queue:
			e.runOne(jobID)
			e.clearInFlight(jobID)
		}
	}
}

// runOne executes one claimed job end to end. A panic fails the single run,
// never the worker.
func (e *Engine) runOne(jobID string) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Job run panicked", "job_id", jobID, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.JobTimeout)
	defer cancel()

	if err := e.jobs.Claim(ctx, jobID); err != nil {
		if !errors.Is(err, repo.ErrNotClaimable) {
			e.logger.Error("Claiming job failed", "job_id", jobID, "error", err)
		}
		return
	}
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		e.logger.Error("Loading claimed job failed", "job_id", jobID, "error", err)
		return
	}

	inst, err := e.instances.Get(ctx, job.InstanceID)
	if err != nil {
		e.logger.Warn("Job instance missing", "job_id", jobID, "instance_id", job.InstanceID)
	} else {
		// The poller must stay quiet while the run is active: align
		// last_polled_status with in_progress before any work happens.
		if err := e.instances.SetStatus(ctx, inst.InstanceID, models.InstanceStatusInProgress); err != nil {
			e.logger.Warn("Marking instance in_progress failed", "instance_id", inst.InstanceID, "error", err)
		}
		if err := e.instances.MarkPolled(ctx, inst.InstanceID, models.InstanceStatusInProgress); err != nil {
			e.logger.Warn("Aligning polled status failed", "instance_id", inst.InstanceID, "error", err)
		}
	}

	user := e.users.GetOrDefault(ctx, job.EffectiveUserID())
	prompt := e.composePrompt(ctx, job, inst, user)

	e.logger.Info("Executing job", "job_id", jobID, "type", job.JobType, "title", job.Title)
	out, err := e.runtime.Run(ctx, runtime.RunInput{
		AgentID:       job.AgentID,
		UserID:        job.EffectiveUserID(),
		Input:         prompt,
		WorkingSource: models.WorkingSourceJob,
		NarrativeID:   job.NarrativeID,
	})
	if err != nil {
		e.finishFailedRun(ctx, job, err)
		return
	}

	e.finishRun(ctx, job, inst, out, user)
}

// finishRun interprets the completed turn, persists the job transition, and
// notifies the creator.
func (e *Engine) finishRun(ctx context.Context, job *models.Job, inst *models.ModuleInstance, out *runtime.RunOutput, user *models.User) {
	interp, err := e.jobModule.InterpretRun(ctx, job, out.Trace, out.FinalOutput)
	if err != nil {
		e.logger.Warn("Run interpretation failed, applying mechanical default",
			"job_id", job.JobID, "error", err)
		interp = mechanicalDefault(job)
	}

	status := interp.Status
	next := interp.NextRunTime
	if job.Trigger.MaxIterations > 0 && job.IterationCount+1 >= job.Trigger.MaxIterations && !status.IsTerminal() {
		status = models.JobStatusCompleted
		next = nil
	}
	if next == nil && !status.IsTerminal() {
		next, err = planner.NextRunAfter(job.Trigger, time.Now().UTC())
		if err != nil {
			e.logger.Warn("Schedule computation failed", "job_id", job.JobID, "error", err)
		}
		if next == nil {
			status = models.JobStatusCompleted
		}
	}

	if err := e.jobs.FinishRun(ctx, job.JobID, repo.RunResult{
		Status:      status,
		NextRunTime: next,
		LastError:   interp.LastError,
		ProcessNote: interp.ProcessNote,
		Iterated:    true,
	}); err != nil {
		e.logger.Error("Persisting run result failed", "job_id", job.JobID, "error", err)
		return
	}

	e.settleInstance(ctx, job, inst, out, status)

	content := interp.NotificationSummary
	if content == "" {
		content = out.FinalOutput
	}
	title := fmt.Sprintf("%s - %s", job.Title, user.FormatTime(time.Now()))
	if err := e.notifier.NotifyJobResult(ctx, notify.JobResult{
		Job:     job,
		EventID: out.Event.EventID,
		Title:   title,
		Content: content,
	}); err != nil {
		e.logger.Warn("Job notification failed", "job_id", job.JobID, "error", err)
	}
	e.logger.Info("Job run finished", "job_id", job.JobID, "status", status, "next_run", next)
}

// settleInstance records the run output on the instance and mirrors terminal
// job statuses onto it so the completion poller can fire dependents. A
// non-terminal outcome keeps the instance in_progress between runs.
func (e *Engine) settleInstance(ctx context.Context, job *models.Job, inst *models.ModuleInstance, out *runtime.RunOutput, status models.JobStatus) {
	if inst == nil {
		return
	}
	if err := e.instances.MergeState(ctx, inst.InstanceID, map[string]any{
		"last_final_output": out.FinalOutput,
		"last_event_id":     out.Event.EventID,
	}); err != nil {
		e.logger.Warn("Saving instance output failed", "instance_id", inst.InstanceID, "error", err)
	}

	if err := e.instances.SetStatus(ctx, inst.InstanceID, mirrorInstanceStatus(status)); err != nil {
		e.logger.Warn("Settling instance status failed", "instance_id", inst.InstanceID, "error", err)
	}
}

// mirrorInstanceStatus maps a job outcome onto its backing instance.
func mirrorInstanceStatus(status models.JobStatus) models.InstanceStatus {
	switch status {
	case models.JobStatusCompleted:
		return models.InstanceStatusCompleted
	case models.JobStatusFailed:
		return models.InstanceStatusFailed
	case models.JobStatusCancelled:
		return models.InstanceStatusCancelled
	default:
		return models.InstanceStatusInProgress
	}
}

// finishFailedRun records an execution failure. Recurring jobs keep their
// schedule; a one-off failure is terminal.
func (e *Engine) finishFailedRun(ctx context.Context, job *models.Job, runErr error) {
	e.logger.Error("Job execution failed", "job_id", job.JobID, "error", runErr)

	status := models.JobStatusActive
	next, _ := planner.NextRunAfter(job.Trigger, time.Now().UTC())
	if next == nil {
		status = models.JobStatusFailed
	}
	if err := e.jobs.FinishRun(ctx, job.JobID, repo.RunResult{
		Status:      status,
		NextRunTime: next,
		LastError:   runErr.Error(),
		ProcessNote: "run failed: " + runErr.Error(),
	}); err != nil {
		e.logger.Error("Persisting failed run failed", "job_id", job.JobID, "error", err)
		return
	}
	// A recurring job that failed transiently keeps its instance
	// in_progress; only a terminal failure settles it.
	if status == models.JobStatusFailed {
		if err := e.instances.SetStatus(ctx, job.InstanceID, models.InstanceStatusFailed); err != nil {
			e.logger.Warn("Failing instance failed", "instance_id", job.InstanceID, "error", err)
		}
	}
}

// mechanicalDefault is the no-interpreter fallback transition.
func mechanicalDefault(job *models.Job) *modules.RunInterpretation {
	switch job.JobType {
	case models.JobTypeOneOff:
		return &modules.RunInterpretation{Status: models.JobStatusCompleted}
	default:
		return &modules.RunInterpretation{Status: models.JobStatusActive}
	}
}

// Status reports pool occupancy for the health endpoint.
func (e *Engine) Status() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]any{
		"workers":   e.cfg.MaxWorkers,
		"queued":    len(e.queue),
		"in_flight": len(e.inFlight),
	}
}

func (e *Engine) markInFlight(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[jobID]; ok {
		return false
	}
	e.inFlight[jobID] = struct{}{}
	return true
}

func (e *Engine) clearInFlight(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, jobID)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
