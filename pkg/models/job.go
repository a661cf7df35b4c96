package models

import (
	"fmt"
	"time"
)

// TriggerConfig carries the scheduling parameters of a job. Which fields are
// meaningful depends on the job type:
//
//	one_off   → RunAt
//	scheduled → exactly one of Cron, IntervalSeconds
//	ongoing   → IntervalSeconds plus at least one of EndCondition, MaxIterations
type TriggerConfig struct {
	RunAt           *time.Time `json:"run_at,omitempty"`
	Cron            string     `json:"cron,omitempty"`
	IntervalSeconds int        `json:"interval_seconds,omitempty"`
	EndCondition    string     `json:"end_condition,omitempty"`
	MaxIterations   int        `json:"max_iterations,omitempty"`
}

// DeriveType infers the job type from which trigger fields are populated.
// EndCondition or MaxIterations with an interval means ongoing; a recurrence
// alone means scheduled; everything else is one_off.
func (tc TriggerConfig) DeriveType() JobType {
	if tc.IntervalSeconds > 0 && (tc.EndCondition != "" || tc.MaxIterations > 0) {
		return JobTypeOngoing
	}
	if tc.Cron != "" || tc.IntervalSeconds > 0 {
		return JobTypeScheduled
	}
	return JobTypeOneOff
}

// ValidateFor checks trigger-config completeness for the given job type.
func (tc TriggerConfig) ValidateFor(jt JobType) error {
	switch jt {
	case JobTypeOneOff:
		if tc.RunAt == nil {
			return fmt.Errorf("one_off job requires trigger_config.run_at")
		}
	case JobTypeScheduled:
		if tc.Cron == "" && tc.IntervalSeconds <= 0 {
			return fmt.Errorf("scheduled job requires cron or interval_seconds")
		}
		if tc.Cron != "" && tc.IntervalSeconds > 0 {
			return fmt.Errorf("scheduled job must set exactly one of cron, interval_seconds")
		}
	case JobTypeOngoing:
		if tc.IntervalSeconds <= 0 {
			return fmt.Errorf("ongoing job requires interval_seconds")
		}
		if tc.EndCondition == "" && tc.MaxIterations <= 0 {
			return fmt.Errorf("ongoing job requires end_condition or max_iterations")
		}
	default:
		return fmt.Errorf("unknown job type %q", jt)
	}
	return nil
}

// Interval returns the configured interval as a duration.
func (tc TriggerConfig) Interval() time.Duration {
	return time.Duration(tc.IntervalSeconds) * time.Second
}

// Job is a background task record bound 1:1 to a JobModule instance.
type Job struct {
	JobID      string `json:"job_id"`
	InstanceID string `json:"instance_id"`
	AgentID    string `json:"agent_id"`
	UserID     string `json:"user_id"`

	JobType     JobType       `json:"job_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Payload     string        `json:"payload"`
	Trigger     TriggerConfig `json:"trigger_config"`

	Status  JobStatus `json:"status"`
	Process []string  `json:"process"`

	LastRunTime    *time.Time `json:"last_run_time,omitempty"`
	NextRunTime    *time.Time `json:"next_run_time,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	IterationCount int        `json:"iteration_count"`

	// RelatedEntityID is the target user: it becomes the effective user_id at
	// execution time but grants no authority over the job.
	RelatedEntityID string `json:"related_entity_id,omitempty"`

	NarrativeID        string             `json:"narrative_id,omitempty"`
	MonitoredJobIDs    []string           `json:"monitored_job_ids"`
	NotificationMethod NotificationMethod `json:"notification_method"`
	Embedding          []float32          `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveUserID is the identity the job executes as.
func (j *Job) EffectiveUserID() string {
	if j.RelatedEntityID != "" {
		return j.RelatedEntityID
	}
	return j.UserID
}

// CanModify reports whether the user may edit or pause/cancel the job.
// Only the creator holds authority; related_entity_id grants execution
// identity, never authority.
func (j *Job) CanModify(userID string) bool {
	return j.UserID == userID
}
