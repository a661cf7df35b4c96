package planner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// DependencyResolver flips blocked instances to active once every
// dependency has reached a terminal status. A failed dependency still
// unblocks; the dependent's payload decides what to do with it.
type DependencyResolver struct {
	instances *repo.InstanceRepo
	jobs      *repo.JobRepo
	logger    *slog.Logger
}

// NewDependencyResolver creates a DependencyResolver.
func NewDependencyResolver(instances *repo.InstanceRepo, jobs *repo.JobRepo) *DependencyResolver {
	return &DependencyResolver{instances: instances, jobs: jobs, logger: slog.Default()}
}

// HandleCompletion scans the agent's blocked instances that depend on the
// completed one and activates those whose dependencies are all terminal.
// Returns the ids of the activated instances.
func (r *DependencyResolver) HandleCompletion(ctx context.Context, agentID, completedInstanceID string, newStatus models.InstanceStatus) ([]string, error) {
	blocked, err := r.instances.ListForAgent(ctx, agentID, "",
		[]models.InstanceStatus{models.InstanceStatusBlocked})
	if err != nil {
		return nil, err
	}

	var activated []string
	for _, inst := range blocked {
		if !inst.DependsOn(completedInstanceID) {
			continue
		}
		done, err := r.allDepsTerminal(ctx, inst)
		if err != nil {
			r.logger.Warn("Dependency check failed", "instance_id", inst.InstanceID, "error", err)
			continue
		}
		if !done {
			continue
		}

		flipped, err := r.instances.Unblock(ctx, inst.InstanceID)
		if err != nil {
			return nil, err
		}
		if !flipped {
			continue // someone else moved it first
		}
		r.logger.Info("Activated instance after dependency completion",
			"instance_id", inst.InstanceID, "completed_dep", completedInstanceID)

		if inst.ModuleClass == models.ModuleClassJob {
			if err := r.scheduleNow(ctx, inst.InstanceID); err != nil {
				r.logger.Warn("Scheduling unblocked job failed",
					"instance_id", inst.InstanceID, "error", err)
			}
		}
		activated = append(activated, inst.InstanceID)
	}
	return activated, nil
}

// allDepsTerminal reports whether every dependency of the instance is in a
// terminal status. Missing dependencies count as terminal; they were
// cascade-deleted history.
func (r *DependencyResolver) allDepsTerminal(ctx context.Context, inst *models.ModuleInstance) (bool, error) {
	deps, err := r.instances.GetMany(ctx, inst.Dependencies)
	if err != nil {
		return false, err
	}
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		if !dep.Status.IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}

// scheduleNow makes the instance's job due immediately so the engine picks
// it up on its next poll.
func (r *DependencyResolver) scheduleNow(ctx context.Context, instanceID string) error {
	job, err := r.jobs.GetByInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if !job.Status.IsClaimable() {
		return nil
	}
	return r.jobs.FinishRun(ctx, job.JobID, repo.RunResult{
		Status:      job.Status,
		NextRunTime: timePtr(time.Now().UTC()),
	})
}

func timePtr(t time.Time) *time.Time { return &t }
