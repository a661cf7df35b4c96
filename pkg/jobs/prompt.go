package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/protagolabs/agentcore/pkg/models"
)

// composePrompt builds the execution prompt for one job run. Every section
// is optional except the task itself; times render in the effective user's
// timezone.
func (e *Engine) composePrompt(ctx context.Context, job *models.Job, inst *models.ModuleInstance, user *models.User) string {
	var b strings.Builder

	b.WriteString("[Task information]\n")
	fmt.Fprintf(&b, "Title: %s\nType: %s\n", job.Title, job.JobType)
	if job.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", job.Description)
	}
	fmt.Fprintf(&b, "Task: %s\n", job.Payload)
	if job.Trigger.EndCondition != "" {
		fmt.Fprintf(&b, "End condition: %s\n", job.Trigger.EndCondition)
	}
	if job.Trigger.MaxIterations > 0 {
		fmt.Fprintf(&b, "Iteration: %d of %d\n", job.IterationCount+1, job.Trigger.MaxIterations)
	}

	if section := e.relatedEntitySection(ctx, job); section != "" {
		b.WriteString("\n[Related entities]\n" + section)
	}

	if len(job.Process) > 0 {
		b.WriteString("\n[Current progress]\n")
		for _, note := range tail(job.Process, 5) {
			b.WriteString("- " + note + "\n")
		}
	}

	if section := e.prerequisiteSection(ctx, inst); section != "" {
		b.WriteString("\n[Prerequisite task results]\n" + section)
	}

	b.WriteString("\n[Execution instruction]\n")
	b.WriteString("Execute this task now. Work autonomously with the available tools, then report the outcome. " +
		"Send the user-facing result with send_message_to_user_directly.\n")

	fmt.Fprintf(&b, "\nCurrent time: %s (%s)\n", user.FormatTime(time.Now()), user.Timezone)
	return b.String()
}

// relatedEntitySection surfaces the target entity's social profile when the
// job addresses someone other than its creator.
func (e *Engine) relatedEntitySection(ctx context.Context, job *models.Job) string {
	if job.RelatedEntityID == "" {
		return ""
	}
	socialID := e.socialInstanceID(ctx, job.AgentID)
	if socialID == "" {
		return ""
	}
	ent, err := e.social.Get(ctx, socialID, job.RelatedEntityID)
	if err != nil || ent == nil {
		return fmt.Sprintf("Target: %s\n", job.RelatedEntityID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s (%s)\n", ent.EntityName, ent.EntityID)
	if ent.EntityDescription != "" {
		fmt.Fprintf(&b, "About: %s\n", ent.EntityDescription)
	}
	if ent.Persona != "" {
		fmt.Fprintf(&b, "Persona: %s\n", ent.Persona)
	}
	return b.String()
}

// prerequisiteSection collects the latest outputs of the instances this job
// depended on. Missing or outputless dependencies are skipped.
func (e *Engine) prerequisiteSection(ctx context.Context, inst *models.ModuleInstance) string {
	if inst == nil || len(inst.Dependencies) == 0 {
		return ""
	}
	deps, err := e.instances.GetMany(ctx, inst.Dependencies)
	if err != nil {
		e.logger.Warn("Loading prerequisite instances failed",
			"instance_id", inst.InstanceID, "error", err)
		return ""
	}
	var b strings.Builder
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		output, _ := dep.State["last_final_output"].(string)
		if output == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", dep.Description, dep.Status, output)
	}
	return b.String()
}

// socialInstanceID resolves the agent's social-network instance, cached per
// engine since agent-level instances never churn.
func (e *Engine) socialInstanceID(ctx context.Context, agentID string) string {
	e.mu.Lock()
	if id, ok := e.socialIDs[agentID]; ok {
		e.mu.Unlock()
		return id
	}
	e.mu.Unlock()

	found, err := e.instances.ListForAgent(ctx, agentID, models.ModuleClassSocialNetwork, nil)
	if err != nil || len(found) == 0 {
		return ""
	}
	e.mu.Lock()
	e.socialIDs[agentID] = found[0].InstanceID
	e.mu.Unlock()
	return found[0].InstanceID
}

func tail(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
