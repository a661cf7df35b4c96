package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// SyncResult is the outcome of materializing a plan.
type SyncResult struct {
	Instances []*models.ModuleInstance
	KeyToID   map[string]string
	Raw       []*PlanInstance
}

// InstanceSync materializes decider plans: ids, dependency edges, cycle
// checks, duplicate suppression, and transactional persistence.
type InstanceSync struct {
	store     *database.Store
	instances *repo.InstanceRepo
	jobs      *repo.JobRepo
	links     *repo.LinkRepo
	social    *repo.SocialRepo
	narr      *repo.NarrativeRepo
	provider  llm.Provider
	syncCfg   config.SyncConfig
	logger    *slog.Logger
}

// NewInstanceSync creates an InstanceSync.
func NewInstanceSync(
	store *database.Store,
	instances *repo.InstanceRepo,
	jobs *repo.JobRepo,
	links *repo.LinkRepo,
	social *repo.SocialRepo,
	narr *repo.NarrativeRepo,
	provider llm.Provider,
	syncCfg config.SyncConfig,
) *InstanceSync {
	return &InstanceSync{
		store:     store,
		instances: instances,
		jobs:      jobs,
		links:     links,
		social:    social,
		narr:      narr,
		provider:  provider,
		syncCfg:   syncCfg,
		logger:    slog.Default(),
	}
}

// Process runs the full materialization for one plan batch. Duplicate
// suppression rewires keyToID before dependencies resolve, so every edge
// points at the instance id that actually gets persisted.
func (s *InstanceSync) Process(ctx context.Context, agentID, userID, narrativeID string, planned []*PlanInstance, socialInstanceID string) (*SyncResult, error) {
	keyToID := buildKeyToID(planned)

	existingTitles, err := s.activeJobTitles(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	if err := s.suppressDuplicates(ctx, planned, existingTitles, keyToID); err != nil {
		return nil, err
	}

	resolveDependencies(planned, keyToID, s.logger)

	if cycle := detectCycle(planned); cycle != nil {
		return nil, fmt.Errorf("plan contains a dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	assignInitialStatus(planned)

	result := &SyncResult{KeyToID: keyToID, Raw: planned}
	for _, p := range planned {
		inst, err := s.materialize(ctx, agentID, userID, narrativeID, p, keyToID, socialInstanceID)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			result.Instances = append(result.Instances, inst)
		}
	}
	return result, nil
}

// suppressDuplicates rewires new job plans whose title matches a live job,
// or an earlier sibling in the same batch, onto the surviving instance.
func (s *InstanceSync) suppressDuplicates(ctx context.Context, planned []*PlanInstance, existingTitles map[string]string, keyToID map[string]string) error {
	batch := map[string]string{}
	for _, p := range planned {
		if p.InstanceID != "" || p.ModuleClass != models.ModuleClassJob || p.JobConfig == nil {
			continue
		}
		title := p.JobConfig.Title
		if existingID, hit := FindSimilarTitle(title, existingTitles, s.syncCfg.TitleSimilarityThreshold); hit {
			existing, err := s.jobs.Get(ctx, existingID)
			if err != nil {
				return err
			}
			s.logger.Info("Suppressing duplicate job",
				"title", title, "existing_job_id", existingID)
			s.logEmbeddingSimilarity(ctx, p, existing)
			p.IsExisting = true
			p.SimilarMatch = true
			p.InstanceID = existing.InstanceID
			keyToID[p.TaskKey] = existing.InstanceID
			continue
		}
		if siblingKey, hit := FindSimilarTitle(title, batch, s.syncCfg.TitleSimilarityThreshold); hit {
			s.logger.Info("Suppressing duplicate job within batch",
				"title", title, "surviving_task_key", siblingKey)
			p.IsExisting = true
			p.SimilarMatch = true
			p.InstanceID = keyToID[siblingKey]
			keyToID[p.TaskKey] = keyToID[siblingKey]
			continue
		}
		batch[p.TaskKey] = title
	}
	return nil
}

// logEmbeddingSimilarity records the semantic distance between a suppressed
// plan and its surviving job. Advisory only, the title heuristic decides.
func (s *InstanceSync) logEmbeddingSimilarity(ctx context.Context, p *PlanInstance, existing *models.Job) {
	if len(existing.Embedding) == 0 {
		return
	}
	jc := p.JobConfig
	embedding := s.embedJob(ctx, jc.Title, p.Description, jc.Payload)
	if len(embedding) == 0 {
		return
	}
	similar, scores, err := s.jobs.SimilarJobs(ctx, existing.AgentID, embedding, 5, 0)
	if err != nil {
		s.logger.Debug("Embedding similarity lookup failed", "error", err)
		return
	}
	for i, job := range similar {
		if job.JobID == existing.JobID {
			s.logger.Info("Duplicate job embedding similarity",
				"job_id", existing.JobID, "similarity", scores[i])
			return
		}
	}
}

// buildKeyToID keeps well-formed ids from the plan and allocates the rest.
// Model-invented labels in id positions are never persisted.
func buildKeyToID(planned []*PlanInstance) map[string]string {
	out := make(map[string]string, len(planned))
	for _, p := range planned {
		if p.InstanceID != "" && models.IsWellFormedID(p.InstanceID) {
			out[p.TaskKey] = p.InstanceID
			continue
		}
		p.InstanceID = ""
		out[p.TaskKey] = models.NewID(models.InstancePrefix(p.ModuleClass))
	}
	return out
}

// resolveDependencies turns task keys into instance ids. Unresolved keys are
// dropped with a warning; they never fail the plan.
func resolveDependencies(planned []*PlanInstance, keyToID map[string]string, logger *slog.Logger) {
	for _, p := range planned {
		p.Dependencies = p.Dependencies[:0]
		for _, key := range p.DependsOn {
			id, ok := keyToID[key]
			if !ok {
				logger.Warn("Dropping unresolved dependency", "task_key", p.TaskKey, "depends_on", key)
				continue
			}
			p.Dependencies = append(p.Dependencies, id)
		}
	}
}

// detectCycle runs DFS with a recursion stack over task-key edges and
// returns the cycle path when one exists.
func detectCycle(planned []*PlanInstance) []string {
	byKey := map[string]*PlanInstance{}
	for _, p := range planned {
		byKey[p.TaskKey] = p
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string

	var visit func(key string) []string
	visit = func(key string) []string {
		color[key] = grey
		stack = append(stack, key)
		p := byKey[key]
		if p != nil {
			for _, dep := range p.DependsOn {
				switch color[dep] {
				case grey:
					for i, k := range stack {
						if k == dep {
							return append(append([]string{}, stack[i:]...), dep)
						}
					}
				case white:
					if cycle := visit(dep); cycle != nil {
						return cycle
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[key] = black
		return nil
	}

	for _, p := range planned {
		if color[p.TaskKey] == white {
			if cycle := visit(p.TaskKey); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// assignInitialStatus forces capability modules to active with no deps, and
// blocks jobs that wait on a sibling in this batch.
func assignInitialStatus(planned []*PlanInstance) {
	inBatch := map[string]bool{}
	for _, p := range planned {
		inBatch[p.TaskKey] = true
	}
	for _, p := range planned {
		if p.ModuleClass != models.ModuleClassJob {
			p.DependsOn = nil
			p.Dependencies = nil
			p.Status = models.InstanceStatusActive
			continue
		}
		blocked := false
		for _, dep := range p.DependsOn {
			if inBatch[dep] {
				blocked = true
				break
			}
		}
		if blocked {
			p.Status = models.InstanceStatusBlocked
		} else {
			p.Status = models.InstanceStatusActive
		}
	}
}

// activeJobTitles maps job id to title for the narrative's live jobs.
func (s *InstanceSync) activeJobTitles(ctx context.Context, narrativeID string) (map[string]string, error) {
	if narrativeID == "" {
		return map[string]string{}, nil
	}
	jobs, err := s.jobs.ListForNarrative(ctx, narrativeID)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, job := range jobs {
		if job.Status.IsClaimable() || job.Status == models.JobStatusRunning {
			out[job.JobID] = job.Title
		}
	}
	return out, nil
}

// materialize persists one planned instance under its pre-assigned id, so
// sibling dependency edges resolved earlier stay valid. Returns nil for a
// plan entry that reuses an existing instance untouched.
func (s *InstanceSync) materialize(ctx context.Context, agentID, userID, narrativeID string, p *PlanInstance, keyToID map[string]string, socialInstanceID string) (*models.ModuleInstance, error) {
	if p.InstanceID != "" {
		// Reusing an existing instance; nothing to create.
		p.IsExisting = true
		return nil, nil
	}

	if p.ModuleClass != models.ModuleClassJob {
		inst := &models.ModuleInstance{
			InstanceID:  keyToID[p.TaskKey],
			ModuleClass: p.ModuleClass,
			AgentID:     agentID,
			UserID:      &userID,
			Status:      models.InstanceStatusActive,
			Description: p.Description,
		}
		if err := s.instances.Create(ctx, inst); err != nil {
			return nil, err
		}
		if narrativeID != "" {
			if err := s.links.Link(ctx, inst.InstanceID, narrativeID, models.LinkTypeActive); err != nil {
				return nil, err
			}
		}
		return inst, nil
	}

	job, inst, err := s.buildJob(ctx, agentID, userID, narrativeID, p, keyToID[p.TaskKey])
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx *database.Store) error {
		if err := s.instances.CreateTx(ctx, tx, inst); err != nil {
			return err
		}
		job.InstanceID = inst.InstanceID
		if err := s.jobs.CreateTx(ctx, tx, job); err != nil {
			return err
		}
		if narrativeID != "" {
			return s.links.LinkTx(ctx, tx, inst.InstanceID, narrativeID, models.LinkTypeActive)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.applySocialSideEffects(ctx, job, userID, narrativeID, socialInstanceID); err != nil {
		s.logger.Warn("Social side effects failed", "job_id", job.JobID, "error", err)
	}
	return inst, nil
}

// buildJob derives type, schedule, and embeddings for one planned job. The
// instance keeps the id dependency resolution already handed out.
func (s *InstanceSync) buildJob(ctx context.Context, agentID, userID, narrativeID string, p *PlanInstance, instanceID string) (*models.Job, *models.ModuleInstance, error) {
	jc := p.JobConfig
	trigger := models.TriggerConfig{
		RunAt:           jc.ScheduledTime(),
		Cron:            jc.Cron,
		IntervalSeconds: jc.IntervalSeconds,
		EndCondition:    jc.EndCondition,
		MaxIterations:   jc.MaxIterations,
	}
	jobType := trigger.DeriveType()

	now := time.Now().UTC()
	hasDeps := len(p.Dependencies) > 0
	var nextRun *time.Time
	switch jobType {
	case models.JobTypeOneOff:
		if trigger.RunAt == nil {
			runAt := now
			trigger.RunAt = &runAt
		}
		if hasDeps {
			nextRun = nil // set by the dependency resolver on unblock
		} else {
			nextRun = trigger.RunAt
		}
	case models.JobTypeScheduled:
		ts, err := NextScheduledRun(trigger, now)
		if err != nil {
			return nil, nil, repo.NewValidationError("trigger_config", err.Error())
		}
		nextRun = &ts
	case models.JobTypeOngoing:
		nextRun = &now
	}

	embedding := s.embedJob(ctx, jc.Title, p.Description, jc.Payload)

	inst := &models.ModuleInstance{
		InstanceID:       instanceID,
		ModuleClass:      models.ModuleClassJob,
		AgentID:          agentID,
		UserID:           &userID,
		Status:           p.Status,
		Description:      p.Description,
		Dependencies:     p.Dependencies,
		RoutingEmbedding: embedding,
		TopicHint:        jc.Title,
	}
	job := &models.Job{
		JobID:           models.NewID(models.PrefixJob),
		AgentID:         agentID,
		UserID:          userID,
		JobType:         jobType,
		Title:           jc.Title,
		Description:     p.Description,
		Payload:         jc.Payload,
		Trigger:         trigger,
		Status:          models.JobStatusPending,
		NextRunTime:     nextRun,
		RelatedEntityID: jc.RelatedEntityID,
		NarrativeID:     narrativeID,
		Embedding:       embedding,
	}
	return job, inst, nil
}

// embedJob generates the routing embedding, best-effort.
func (s *InstanceSync) embedJob(ctx context.Context, title, description, payload string) []float32 {
	if s.provider == nil {
		return nil
	}
	text := strings.TrimSpace(title + "\n" + description + "\n" + payload)
	vecs, err := s.provider.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		s.logger.Warn("Job embedding failed", "error", err)
		return nil
	}
	return vecs[0]
}

// applySocialSideEffects links the job to its target entity and injects the
// entity as a narrative participant.
func (s *InstanceSync) applySocialSideEffects(ctx context.Context, job *models.Job, userID, narrativeID, socialInstanceID string) error {
	if job.RelatedEntityID == "" || socialInstanceID == "" {
		return nil
	}
	if _, err := s.social.EnsureEntity(ctx, socialInstanceID, job.RelatedEntityID, job.RelatedEntityID); err != nil {
		return err
	}
	if err := s.social.AppendRelatedJob(ctx, socialInstanceID, job.RelatedEntityID, job.JobID); err != nil {
		return err
	}
	if job.RelatedEntityID != userID && narrativeID != "" {
		return s.narr.AddParticipant(ctx, narrativeID, job.RelatedEntityID, models.ActorTypeParticipant)
	}
	return nil
}
