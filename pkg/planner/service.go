package planner

import (
	"context"
	"log/slog"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/modules"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// LoadResult is everything the runtime needs to execute a turn.
type LoadResult struct {
	ActiveInstances   []*models.ModuleInstance
	ExecutionType     models.ExecutionPath
	DirectTrigger     *DirectTrigger
	RelationshipGraph string
	Changes           string
	KeyToID           map[string]string
	Raw               []*PlanInstance
}

// ModuleService is the front door of a user turn: it loads the narrative's
// instances, runs the decider, materializes the plan, and assembles the
// final instance set.
type ModuleService struct {
	factory *modules.InstanceFactory
	decider *InstanceDecider
	sync    *InstanceSync
	jobs    *repo.JobRepo
	logger  *slog.Logger
}

// NewModuleService creates a ModuleService.
func NewModuleService(factory *modules.InstanceFactory, decider *InstanceDecider, sync *InstanceSync, jobs *repo.JobRepo) *ModuleService {
	return &ModuleService{
		factory: factory,
		decider: decider,
		sync:    sync,
		jobs:    jobs,
		logger:  slog.Default(),
	}
}

// LoadInput carries the turn's planning context.
type LoadInput struct {
	AgentID          string
	UserID           string
	NarrativeID      string
	InputContent     string
	NarrativeSummary string
	HistoryMarkdown  string
	Awareness        string
	WorkingSource    models.WorkingSource
}

// LoadModules runs the plan-and-materialize pipeline for one turn.
func (s *ModuleService) LoadModules(ctx context.Context, in LoadInput) (*LoadResult, error) {
	current, err := s.factory.LoadForNarrative(ctx, in.AgentID, in.UserID, in.NarrativeID)
	if err != nil {
		return nil, err
	}

	var capability, task []*models.ModuleInstance
	var socialInstanceID string
	for _, inst := range current {
		if inst.ModuleClass.IsTaskModule() {
			task = append(task, inst)
		} else {
			capability = append(capability, inst)
			if inst.ModuleClass == models.ModuleClassSocialNetwork {
				socialInstanceID = inst.InstanceID
			}
		}
	}

	jobInfo, err := s.activeJobInfo(ctx, in.NarrativeID)
	if err != nil {
		return nil, err
	}

	plan, err := s.decider.Decide(ctx, DeciderInput{
		UserInput:        in.InputContent,
		TaskInstances:    task,
		CapabilityInfo:   capabilityInfo(capability),
		NarrativeSummary: in.NarrativeSummary,
		HistoryMarkdown:  in.HistoryMarkdown,
		Awareness:        in.Awareness,
		CurrentUserID:    in.UserID,
		JobInfo:          jobInfo,
	})
	if err != nil {
		return nil, err
	}

	synced, err := s.sync.Process(ctx, in.AgentID, in.UserID, in.NarrativeID, plan.ActiveInstances, socialInstanceID)
	if err != nil {
		return nil, err
	}

	active := assembleActive(in.AgentID, capability, task, synced)

	return &LoadResult{
		ActiveInstances:   active,
		ExecutionType:     plan.ExecutionPath,
		DirectTrigger:     plan.DirectTrigger,
		RelationshipGraph: plan.RelationshipGraph,
		Changes:           plan.ChangesExplanation,
		KeyToID:           synced.KeyToID,
		Raw:               synced.Raw,
	}, nil
}

// assembleActive unions capability instances, surviving task instances, and
// the plan's new ones, then applies the fallbacks: a synthetic JobModule
// when the plan produced none, and the always-load SkillModule.
func assembleActive(agentID string, capability, task []*models.ModuleInstance, synced *SyncResult) []*models.ModuleInstance {
	seen := map[string]bool{}
	var out []*models.ModuleInstance
	add := func(inst *models.ModuleInstance) {
		if inst == nil || seen[inst.InstanceID] {
			return
		}
		seen[inst.InstanceID] = true
		out = append(out, inst)
	}
	for _, inst := range capability {
		add(inst)
	}
	for _, inst := range synced.Instances {
		add(inst)
	}
	// Existing task instances the plan kept by id.
	keptIDs := map[string]bool{}
	for _, p := range synced.Raw {
		if p.IsExisting && p.InstanceID != "" {
			keptIDs[p.InstanceID] = true
		}
	}
	for _, inst := range task {
		if keptIDs[inst.InstanceID] {
			add(inst)
		}
	}

	hasJob := false
	for _, inst := range out {
		if inst.ModuleClass == models.ModuleClassJob {
			hasJob = true
			break
		}
	}
	if !hasJob {
		add(modules.SyntheticInstance(models.ModuleClassJob, agentID))
	}
	add(modules.SyntheticInstance(models.ModuleClassSkill, agentID))
	return out
}

func (s *ModuleService) activeJobInfo(ctx context.Context, narrativeID string) (map[string]JobSummary, error) {
	out := map[string]JobSummary{}
	if narrativeID == "" {
		return out, nil
	}
	jobs, err := s.jobs.ListForNarrative(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		out[job.InstanceID] = JobSummary{
			RelatedEntityID: job.RelatedEntityID,
			JobType:         string(job.JobType),
			Title:           job.Title,
		}
	}
	return out, nil
}

func capabilityInfo(capability []*models.ModuleInstance) []string {
	out := make([]string, 0, len(capability))
	for _, inst := range capability {
		out = append(out, string(inst.ModuleClass)+": "+inst.Description)
	}
	return out
}
