package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
)

// RunInterpretation is the LLM post-hook's reading of one job execution.
type RunInterpretation struct {
	Status              models.JobStatus `json:"status"`
	NextRunTime         *time.Time       `json:"next_run_time,omitempty"`
	ProcessNote         string           `json:"process_note"`
	LastError           string           `json:"last_error,omitempty"`
	ShouldNotify        bool             `json:"should_notify"`
	NotificationSummary string           `json:"notification_summary,omitempty"`
}

// JobModule owns background work: it surfaces the turn's job information,
// interprets job runs, and probes end conditions during chat turns.
type JobModule struct {
	deps   Deps
	logger *slog.Logger
}

// NewJobModule creates the job module.
func NewJobModule(deps Deps) *JobModule {
	return &JobModule{deps: deps, logger: slog.Default()}
}

func (m *JobModule) Class() models.ModuleClass { return models.ModuleClassJob }
func (m *JobModule) Key() string               { return "job" }

func (m *JobModule) Instructions(inst *models.ModuleInstance) string {
	return "You can manage background jobs for the user. Jobs run on schedules or once; " +
		"report their status when asked and incorporate prerequisite results."
}

// GatherData surfaces the instance's job row into the context.
func (m *JobModule) GatherData(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, data ContextData) (ContextData, error) {
	job, err := m.deps.Jobs.GetByInstance(ctx, inst.InstanceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return data, nil // synthetic fallback instance, no job row
		}
		return data, err
	}
	data.JobsInformation = append(data.JobsInformation, JobInfo{
		JobID:       job.JobID,
		InstanceID:  inst.InstanceID,
		Title:       job.Title,
		JobType:     string(job.JobType),
		Status:      string(job.Status),
		Description: job.Description,
	})
	return data, nil
}

// AfterEvent probes end conditions on chat turns: when an active ongoing
// job of this instance targets the current user, the model judges whether
// the interaction satisfied its end condition.
func (m *JobModule) AfterEvent(ctx context.Context, turn *TurnContext, inst *models.ModuleInstance, params PostHookParams) (*HookCallbackResult, error) {
	if turn.WorkingSource != models.WorkingSourceChat {
		// Job-source runs are interpreted by the engine via InterpretRun.
		return nil, nil
	}
	job, err := m.deps.Jobs.GetByInstance(ctx, inst.InstanceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if job.JobType != models.JobTypeOngoing || job.Trigger.EndCondition == "" {
		return nil, nil
	}
	if !job.Status.IsClaimable() || job.EffectiveUserID() != turn.User.UserID {
		return nil, nil
	}

	met, err := m.probeEndCondition(ctx, job, turn.Input, params.FinalOutput)
	if err != nil {
		m.logger.Warn("End-condition probe failed", "job_id", job.JobID, "error", err)
		return nil, nil
	}
	if !met {
		return nil, nil
	}

	m.logger.Info("End condition met during chat, completing job", "job_id", job.JobID)
	err = m.deps.Jobs.FinishRun(ctx, job.JobID, repo.RunResult{
		Status:      models.JobStatusCompleted,
		ProcessNote: "end condition satisfied during conversation",
		Iterated:    true,
	})
	if err != nil {
		return nil, err
	}
	return &HookCallbackResult{
		InstanceID:      inst.InstanceID,
		TriggerCallback: true,
		InstanceStatus:  models.InstanceStatusCompleted,
		OutputData:      map[string]any{"job_id": job.JobID, "reason": "end_condition"},
	}, nil
}

func (m *JobModule) probeEndCondition(ctx context.Context, job *models.Job, input, output string) (bool, error) {
	prompt := fmt.Sprintf(
		"A background task has the end condition: %q\n\n"+
			"The user just said:\n%s\n\nThe agent replied:\n%s\n\n"+
			"Does this interaction satisfy the end condition? "+
			"Answer with JSON: {\"satisfied\": true|false}",
		job.Trigger.EndCondition, input, output)

	callCtx, cancel := context.WithTimeout(ctx, m.deps.LLMConfig.CallTimeout)
	defer cancel()

	resp, err := m.deps.LLM.Complete(callCtx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		JSONMode: true,
	})
	if err != nil {
		return false, err
	}
	var verdict struct {
		Satisfied bool `json:"satisfied"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		return false, fmt.Errorf("unparseable verdict %q: %w", resp.Content, err)
	}
	return verdict.Satisfied, nil
}

// InterpretRun reads one finished execution and decides status and schedule.
// The model's next_run_time is authoritative when set; mechanical defaults
// apply otherwise. Called by the job engine after the agent turn.
func (m *JobModule) InterpretRun(ctx context.Context, job *models.Job, trace, finalOutput string) (*RunInterpretation, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.deps.LLMConfig.CallTimeout)
	defer cancel()

	resp, err := m.deps.LLM.Complete(callCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: interpreterSystemPrompt},
			{Role: llm.RoleUser, Content: interpreterUserPrompt(job, trace, finalOutput)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Status              string `json:"status"`
		NextRunTime         string `json:"next_run_time"`
		ProcessNote         string `json:"process_note"`
		LastError           string `json:"last_error"`
		ShouldNotify        bool   `json:"should_notify"`
		NotificationSummary string `json:"notification_summary"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		return nil, fmt.Errorf("unparseable interpretation %q: %w", resp.Content, err)
	}

	interp := &RunInterpretation{
		ProcessNote:         raw.ProcessNote,
		LastError:           raw.LastError,
		ShouldNotify:        raw.ShouldNotify,
		NotificationSummary: raw.NotificationSummary,
	}
	switch models.JobStatus(raw.Status) {
	case models.JobStatusActive, models.JobStatusCompleted, models.JobStatusFailed:
		interp.Status = models.JobStatus(raw.Status)
	default:
		return nil, fmt.Errorf("interpretation returned invalid status %q", raw.Status)
	}
	if raw.NextRunTime != "" {
		ts, err := time.Parse(time.RFC3339, raw.NextRunTime)
		if err != nil {
			m.logger.Warn("Ignoring unparseable next_run_time from interpretation",
				"job_id", job.JobID, "value", raw.NextRunTime)
		} else {
			interp.NextRunTime = &ts
		}
	}
	return interp, nil
}

const interpreterSystemPrompt = `You judge the outcome of one background job execution.
Respond with JSON:
{
  "status": "active" | "completed" | "failed",
  "next_run_time": "<RFC3339 timestamp or empty>",
  "process_note": "<one-line summary of what happened>",
  "last_error": "<error text or empty>",
  "should_notify": true | false,
  "notification_summary": "<short user-facing summary or empty>"
}
Rules:
- one_off jobs: "completed" on success, "failed" on error; next_run_time empty.
- scheduled jobs: "active" on success; set next_run_time only to accelerate or defer the next run, otherwise leave it empty.
- ongoing jobs: "active" with a next_run_time while the end condition is unmet; "completed" once it is met or the iteration budget is exhausted.`

func interpreterUserPrompt(job *models.Job, trace, finalOutput string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job type: %s\nTitle: %s\nIteration count: %d\n", job.JobType, job.Title, job.IterationCount)
	if job.Trigger.EndCondition != "" {
		fmt.Fprintf(&b, "End condition: %s\n", job.Trigger.EndCondition)
	}
	if job.Trigger.MaxIterations > 0 {
		fmt.Fprintf(&b, "Max iterations: %d\n", job.Trigger.MaxIterations)
	}
	if job.Trigger.IntervalSeconds > 0 {
		fmt.Fprintf(&b, "Interval: %ds\n", job.Trigger.IntervalSeconds)
	}
	if job.Trigger.Cron != "" {
		fmt.Fprintf(&b, "Cron: %s\n", job.Trigger.Cron)
	}
	if tail := processTail(job.Process, 5); len(tail) > 0 {
		fmt.Fprintf(&b, "Recent process notes:\n- %s\n", strings.Join(tail, "\n- "))
	}
	fmt.Fprintf(&b, "\nExecution trace:\n%s\n\nFinal output:\n%s\n", trace, finalOutput)
	return b.String()
}

func processTail(process []string, n int) []string {
	if len(process) <= n {
		return process
	}
	return process[len(process)-n:]
}
