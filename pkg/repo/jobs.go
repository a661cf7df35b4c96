package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/protagolabs/agentcore/pkg/database"
	"github.com/protagolabs/agentcore/pkg/models"
)

// JobRepo manages background job rows. Claiming is a single conditional
// UPDATE so that concurrent workers never double-run a job.
type JobRepo struct {
	store *database.Store
}

// NewJobRepo creates a JobRepo.
func NewJobRepo(store *database.Store) *JobRepo {
	return &JobRepo{store: store}
}

// RunResult carries the outcome of one job execution back into the row.
type RunResult struct {
	Status      models.JobStatus
	NextRunTime *time.Time
	LastError   string
	ProcessNote string
	Iterated    bool
}

// Create persists a job. The job type is derived from the trigger config
// when unset, then validated against it.
func (r *JobRepo) Create(ctx context.Context, job *models.Job) error {
	return r.CreateTx(ctx, r.store, job)
}

// CreateTx is Create against an explicit store scope.
func (r *JobRepo) CreateTx(ctx context.Context, tx *database.Store, job *models.Job) error {
	if job.Title == "" {
		return NewValidationError("title", "required")
	}
	if job.InstanceID == "" {
		return NewValidationError("instance_id", "required")
	}
	if job.AgentID == "" || job.UserID == "" {
		return NewValidationError("agent_id", "agent_id and user_id required")
	}
	if job.JobType == "" {
		job.JobType = job.Trigger.DeriveType()
	}
	if err := job.Trigger.ValidateFor(job.JobType); err != nil {
		return NewValidationError("trigger_config", err.Error())
	}
	if job.JobID == "" {
		job.JobID = models.NewID(models.PrefixJob)
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.NotificationMethod == "" {
		job.NotificationMethod = models.NotificationMethodInbox
	}
	data := map[string]any{
		"job_id":              job.JobID,
		"instance_id":         job.InstanceID,
		"agent_id":            job.AgentID,
		"user_id":             job.UserID,
		"job_type":            string(job.JobType),
		"title":               job.Title,
		"description":         job.Description,
		"payload":             job.Payload,
		"trigger_config":      mustJSON(job.Trigger),
		"status":              string(job.Status),
		"process":             mustJSON(orEmptyList(job.Process)),
		"related_entity_id":   job.RelatedEntityID,
		"narrative_id":        job.NarrativeID,
		"monitored_job_ids":   mustJSON(orEmptyList(job.MonitoredJobIDs)),
		"notification_method": string(job.NotificationMethod),
	}
	if job.NextRunTime != nil {
		data["next_run_time"] = *job.NextRunTime
	}
	if len(job.Embedding) > 0 {
		data["embedding"] = database.EncodeVector(job.Embedding)
	}
	return tx.Insert(ctx, "instance_jobs", data)
}

// Get loads one job.
func (r *JobRepo) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row, err := r.store.GetOne(ctx, "instance_jobs", map[string]any{"job_id": jobID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return jobFromRow(row), nil
}

// GetByInstance loads the job bound to an instance.
func (r *JobRepo) GetByInstance(ctx context.Context, instanceID string) (*models.Job, error) {
	row, err := r.store.GetOne(ctx, "instance_jobs", map[string]any{"instance_id": instanceID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("job for instance %s: %w", instanceID, ErrNotFound)
	}
	return jobFromRow(row), nil
}

// GetMany loads jobs by id, order-preserving, nil for missing.
func (r *JobRepo) GetMany(ctx context.Context, jobIDs []string) ([]*models.Job, error) {
	rows, err := r.store.GetByIDs(ctx, "instance_jobs", "job_id", jobIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Job, len(rows))
	for i, row := range rows {
		if row != nil {
			out[i] = jobFromRow(row)
		}
	}
	return out, nil
}

// ListForAgentUser returns jobs the user created on the agent, newest first.
func (r *JobRepo) ListForAgentUser(ctx context.Context, agentID, userID string, statuses []models.JobStatus) ([]*models.Job, error) {
	filters := map[string]any{"agent_id": agentID, "user_id": userID}
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, s := range statuses {
			vals[i] = string(s)
		}
		filters["status"] = vals
	}
	rows, err := r.store.Get(ctx, "instance_jobs", filters,
		&database.QueryOpts{OrderBy: "created_at", Desc: true})
	if err != nil {
		return nil, err
	}
	return jobsFromRows(rows), nil
}

// ListForNarrative returns the jobs materialized from a narrative's plans.
func (r *JobRepo) ListForNarrative(ctx context.Context, narrativeID string) ([]*models.Job, error) {
	rows, err := r.store.Get(ctx, "instance_jobs",
		map[string]any{"narrative_id": narrativeID},
		&database.QueryOpts{OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	return jobsFromRows(rows), nil
}

// Due returns claimable jobs whose next_run_time has passed, soonest first.
func (r *JobRepo) Due(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	rows, err := r.store.Get(ctx, "instance_jobs",
		map[string]any{
			"status":        []string{string(models.JobStatusPending), string(models.JobStatusActive)},
			"next_run_time": database.LTE(now),
		},
		&database.QueryOpts{OrderBy: "next_run_time", Limit: limit})
	if err != nil {
		return nil, err
	}
	return jobsFromRows(rows), nil
}

// Claim atomically moves a claimable job to running. Exactly one concurrent
// caller wins; the rest get ErrNotClaimable.
func (r *JobRepo) Claim(ctx context.Context, jobID string) error {
	n, err := r.store.Exec(ctx, `
		UPDATE instance_jobs
		SET status = 'running', last_run_time = now(), updated_at = now()
		WHERE job_id = $1 AND status IN ('pending', 'active')`,
		jobID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotClaimable)
	}
	return nil
}

// FinishRun writes one execution's outcome: status, schedule, error text,
// a process-log entry, and the iteration counter.
func (r *JobRepo) FinishRun(ctx context.Context, jobID string, res RunResult) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	data := map[string]any{
		"status":        string(res.Status),
		"last_error":    res.LastError,
		"next_run_time": res.NextRunTime,
	}
	if res.ProcessNote != "" {
		process := append(job.Process, res.ProcessNote)
		data["process"] = mustJSON(process)
	}
	if res.Iterated {
		data["iteration_count"] = job.IterationCount + 1
	}
	_, err = r.store.Update(ctx, "instance_jobs", map[string]any{"job_id": jobID}, data)
	return err
}

// SetNextRunNow makes a claimable job due immediately. Used by the run-now
// API path; execution still flows through the engine.
func (r *JobRepo) SetNextRunNow(ctx context.Context, jobID, userID string) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.CanModify(userID) {
		return fmt.Errorf("job %s: %w", jobID, ErrNotAuthorized)
	}
	if !job.Status.IsClaimable() {
		return NewValidationError("status", fmt.Sprintf("job in status %q cannot be triggered", job.Status))
	}
	_, err = r.store.Update(ctx, "instance_jobs",
		map[string]any{"job_id": jobID},
		map[string]any{"next_run_time": time.Now().UTC()})
	return err
}

// SetStatus transitions a job with creator authority checks. Pause and
// resume only apply to claimable/paused jobs; cancel applies to any
// non-terminal job.
func (r *JobRepo) SetStatus(ctx context.Context, jobID, userID string, status models.JobStatus) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.CanModify(userID) {
		return fmt.Errorf("job %s: %w", jobID, ErrNotAuthorized)
	}
	switch status {
	case models.JobStatusPaused:
		if !job.Status.IsClaimable() {
			return NewValidationError("status", fmt.Sprintf("cannot pause job in status %q", job.Status))
		}
	case models.JobStatusActive:
		if job.Status != models.JobStatusPaused {
			return NewValidationError("status", fmt.Sprintf("cannot resume job in status %q", job.Status))
		}
	case models.JobStatusCancelled:
		if job.Status.IsTerminal() {
			return NewValidationError("status", fmt.Sprintf("job already in terminal status %q", job.Status))
		}
	default:
		return NewValidationError("status", fmt.Sprintf("transition to %q is engine-internal", status))
	}
	_, err = r.store.Update(ctx, "instance_jobs",
		map[string]any{"job_id": jobID},
		map[string]any{"status": string(status)})
	return err
}

// UpdateDefinition edits title/description/payload/trigger_config with
// creator authority. Trigger edits re-derive and re-validate the job type.
func (r *JobRepo) UpdateDefinition(ctx context.Context, jobID, userID string, data map[string]any) (*models.Job, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.CanModify(userID) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotAuthorized)
	}
	if job.Status.IsTerminal() {
		return nil, NewValidationError("status", fmt.Sprintf("cannot edit job in terminal status %q", job.Status))
	}
	update := map[string]any{}
	for _, field := range []string{"title", "description", "payload"} {
		if v, ok := data[field].(string); ok {
			update[field] = v
		}
	}
	if tc, ok := data["trigger_config"].(models.TriggerConfig); ok {
		jt := tc.DeriveType()
		if err := tc.ValidateFor(jt); err != nil {
			return nil, NewValidationError("trigger_config", err.Error())
		}
		update["trigger_config"] = mustJSON(tc)
		update["job_type"] = string(jt)
		job.Trigger = tc
		job.JobType = jt
	}
	if len(update) == 0 {
		return nil, NewValidationError("data", "no updatable fields")
	}
	if _, err := r.store.Update(ctx, "instance_jobs", map[string]any{"job_id": jobID}, update); err != nil {
		return nil, err
	}
	return r.Get(ctx, jobID)
}

// ResetOrphans re-opens running jobs whose last run started before the
// cutoff. Crashed workers leave rows in running; without this they would
// never be claimable again.
func (r *JobRepo) ResetOrphans(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.Exec(ctx, `
		UPDATE instance_jobs
		SET status = 'active', last_error = 'run abandoned, rescheduled', updated_at = now()
		WHERE status = 'running' AND last_run_time < $1`,
		cutoff)
}

// RecoverStartup re-opens every running job. Called once before workers
// start; nothing can legitimately be running at that point.
func (r *JobRepo) RecoverStartup(ctx context.Context) (int64, error) {
	return r.store.Exec(ctx, `
		UPDATE instance_jobs
		SET status = 'active', last_error = 'recovered at startup', updated_at = now()
		WHERE status = 'running'`)
}

// SimilarJobs returns the agent's jobs nearest to the query embedding.
// Feeds duplicate-title suppression during plan materialization.
func (r *JobRepo) SimilarJobs(ctx context.Context, agentID string, embedding []float32, limit int, minSimilarity float64) ([]*models.Job, []float64, error) {
	scored, err := r.store.SemanticSearch(ctx, "instance_jobs", "embedding", embedding,
		map[string]any{"agent_id": agentID}, limit, minSimilarity)
	if err != nil {
		return nil, nil, err
	}
	jobs := make([]*models.Job, 0, len(scored))
	scores := make([]float64, 0, len(scored))
	for _, s := range scored {
		jobs = append(jobs, jobFromRow(s.Row))
		scores = append(scores, s.Score)
	}
	return jobs, scores, nil
}

func jobsFromRows(rows []database.Row) []*models.Job {
	out := make([]*models.Job, 0, len(rows))
	for _, row := range rows {
		out = append(out, jobFromRow(row))
	}
	return out
}

func jobFromRow(row database.Row) *models.Job {
	job := &models.Job{
		JobID:              rowString(row, "job_id"),
		InstanceID:         rowString(row, "instance_id"),
		AgentID:            rowString(row, "agent_id"),
		UserID:             rowString(row, "user_id"),
		JobType:            models.JobType(rowString(row, "job_type")),
		Title:              rowString(row, "title"),
		Description:        rowString(row, "description"),
		Payload:            rowString(row, "payload"),
		Status:             models.JobStatus(rowString(row, "status")),
		Process:            rowStringList(row, "process"),
		LastRunTime:        rowTimePtr(row, "last_run_time"),
		NextRunTime:        rowTimePtr(row, "next_run_time"),
		LastError:          rowString(row, "last_error"),
		IterationCount:     rowInt(row, "iteration_count"),
		RelatedEntityID:    rowString(row, "related_entity_id"),
		NarrativeID:        rowString(row, "narrative_id"),
		MonitoredJobIDs:    rowStringList(row, "monitored_job_ids"),
		NotificationMethod: models.NotificationMethod(rowString(row, "notification_method")),
		Embedding:          rowVector(row, "embedding"),
		CreatedAt:          rowTime(row, "created_at"),
		UpdatedAt:          rowTime(row, "updated_at"),
	}
	decodeJSON(row, "trigger_config", &job.Trigger)
	return job
}
