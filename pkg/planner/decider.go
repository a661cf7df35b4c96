package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/llm"
	"github.com/protagolabs/agentcore/pkg/models"
)

// JobConfig is the decider's job description for a planned JobModule
// instance.
type JobConfig struct {
	Title           string `json:"title"`
	Payload         string `json:"payload"`
	Cron            string `json:"cron,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	ScheduledAt     string `json:"scheduled_at,omitempty"` // RFC3339
	EndCondition    string `json:"end_condition,omitempty"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
	RelatedEntityID string `json:"related_entity_id,omitempty"`
}

// ScheduledTime parses ScheduledAt, nil when absent or unparseable.
func (jc *JobConfig) ScheduledTime() *time.Time {
	if jc == nil || jc.ScheduledAt == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.Parse(layout, jc.ScheduledAt); err == nil {
			return &ts
		}
	}
	return nil
}

// PlanInstance is one planned instance, keyed by a model-chosen task key.
type PlanInstance struct {
	TaskKey     string                `json:"task_key"`
	InstanceID  string                `json:"instance_id,omitempty"`
	ModuleClass models.ModuleClass    `json:"module_class"`
	Description string                `json:"description"`
	Status      models.InstanceStatus `json:"status"`
	DependsOn   []string              `json:"depends_on"`
	JobConfig   *JobConfig            `json:"job_config,omitempty"`

	// Filled during sync.
	Dependencies []string `json:"dependencies,omitempty"`
	IsExisting   bool     `json:"-"`
	SimilarMatch bool     `json:"-"`
}

// DirectTrigger is the decider's shortcut past the agent loop.
type DirectTrigger struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Plan is the decider's structured output.
type Plan struct {
	ExecutionPath      models.ExecutionPath `json:"execution_path"`
	ActiveInstances    []*PlanInstance      `json:"active_instances"`
	DirectTrigger      *DirectTrigger       `json:"direct_trigger,omitempty"`
	Reasoning          string               `json:"reasoning"`
	ChangesExplanation string               `json:"changes_explanation"`
	RelationshipGraph  string               `json:"relationship_graph"`
}

// DeciderInput bundles everything the decider sees.
type DeciderInput struct {
	UserInput        string
	TaskInstances    []*models.ModuleInstance
	CapabilityInfo   []string
	NarrativeSummary string
	HistoryMarkdown  string
	Awareness        string
	CurrentUserID    string

	// JobInfo maps instance_id to the summary of its active job.
	JobInfo map[string]JobSummary
}

// JobSummary is the per-instance job digest shown to the decider.
type JobSummary struct {
	RelatedEntityID string `json:"related_entity_id,omitempty"`
	JobType         string `json:"job_type"`
	Title           string `json:"title"`
}

// InstanceDecider asks the model for an instance plan and validates it.
type InstanceDecider struct {
	provider llm.Provider
	cfg      config.LLMConfig
	logger   *slog.Logger
}

// NewInstanceDecider creates an InstanceDecider.
func NewInstanceDecider(provider llm.Provider, cfg config.LLMConfig) *InstanceDecider {
	return &InstanceDecider{provider: provider, cfg: cfg, logger: slog.Default()}
}

// Decide runs one planning call and validates the structured result.
func (d *InstanceDecider) Decide(ctx context.Context, in DeciderInput) (*Plan, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.TurnTimeout)
	defer cancel()

	resp, err := d.provider.Complete(callCtx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: deciderSystemPrompt},
			{Role: llm.RoleUser, Content: buildDeciderPrompt(in)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("decider call: %w", err)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(resp.Content), &plan); err != nil {
		return nil, fmt.Errorf("decider returned unparseable plan: %w", err)
	}
	if err := ValidatePlan(&plan); err != nil {
		return nil, err
	}
	d.logger.Info("Instance plan decided",
		"execution_path", plan.ExecutionPath,
		"instances", len(plan.ActiveInstances))
	return &plan, nil
}

// ValidatePlan enforces the structural invariants of a decider plan.
func ValidatePlan(plan *Plan) error {
	switch plan.ExecutionPath {
	case models.ExecutionPathAgentLoop:
	case models.ExecutionPathDirectTrigger:
		if plan.DirectTrigger == nil || plan.DirectTrigger.ToolName == "" {
			return fmt.Errorf("direct_trigger path without a direct_trigger payload")
		}
	default:
		return fmt.Errorf("unknown execution_path %q", plan.ExecutionPath)
	}

	keys := map[string]bool{}
	for _, inst := range plan.ActiveInstances {
		if inst.TaskKey == "" {
			return fmt.Errorf("plan instance missing task_key")
		}
		if keys[inst.TaskKey] {
			return fmt.Errorf("duplicate task_key %q in plan", inst.TaskKey)
		}
		keys[inst.TaskKey] = true
		if !inst.ModuleClass.IsValid() {
			return fmt.Errorf("task %q has unknown module_class %q", inst.TaskKey, inst.ModuleClass)
		}
		if inst.ModuleClass == models.ModuleClassJob && inst.JobConfig == nil {
			return fmt.Errorf("task %q is a job without job_config", inst.TaskKey)
		}
		if jc := inst.JobConfig; jc != nil && jc.EndCondition != "" && jc.IntervalSeconds <= 0 {
			return fmt.Errorf("task %q declares end_condition without interval_seconds", inst.TaskKey)
		}
	}
	for _, inst := range plan.ActiveInstances {
		for _, dep := range inst.DependsOn {
			if !keys[dep] {
				return fmt.Errorf("task %q depends on unknown task_key %q", inst.TaskKey, dep)
			}
		}
	}
	return nil
}

const deciderSystemPrompt = `You plan how an agent should handle the user's message.
Respond with JSON:
{
  "execution_path": "agent_loop" | "direct_trigger",
  "active_instances": [{
    "task_key": "<unique semantic label>",
    "instance_id": "<existing id, only when reusing>",
    "module_class": "ChatModule" | "JobModule",
    "description": "<what this instance does>",
    "status": "active",
    "depends_on": ["<task_key of a prerequisite>"],
    "job_config": {
      "title": "...", "payload": "...",
      "cron": "", "interval_seconds": 0, "scheduled_at": "",
      "end_condition": "", "max_iterations": 0,
      "related_entity_id": ""
    }
  }],
  "direct_trigger": {"tool_name": "...", "arguments": {}},
  "reasoning": "...",
  "changes_explanation": "{}",
  "relationship_graph": "..."
}
Rules:
- Reuse existing instances by id when the request continues an existing task.
- job_config is required for every JobModule instance and forbidden otherwise.
- depends_on entries must reference sibling task_keys in this plan.
- Use direct_trigger only for trivial single-tool requests.`

func buildDeciderPrompt(in DeciderInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current user: %s\n\nUser message:\n%s\n", in.CurrentUserID, in.UserInput)

	if in.NarrativeSummary != "" {
		fmt.Fprintf(&b, "\nConversation summary:\n%s\n", in.NarrativeSummary)
	}
	if in.Awareness != "" {
		fmt.Fprintf(&b, "\nAgent self-description:\n%s\n", in.Awareness)
	}
	if in.HistoryMarkdown != "" {
		fmt.Fprintf(&b, "\nRecent history:\n%s\n", in.HistoryMarkdown)
	}
	if len(in.TaskInstances) > 0 {
		b.WriteString("\nExisting task instances:\n")
		for _, inst := range in.TaskInstances {
			fmt.Fprintf(&b, "- %s (%s, status=%s): %s\n",
				inst.InstanceID, inst.ModuleClass, inst.Status, inst.Description)
			if job, ok := in.JobInfo[inst.InstanceID]; ok {
				fmt.Fprintf(&b, "  job: %q type=%s target=%s\n", job.Title, job.JobType, job.RelatedEntityID)
			}
		}
	}
	if len(in.CapabilityInfo) > 0 {
		fmt.Fprintf(&b, "\nAvailable capabilities:\n%s\n", strings.Join(in.CapabilityInfo, "\n"))
	}
	return b.String()
}
