package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerConfigDeriveType(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		tc       TriggerConfig
		expected JobType
	}{
		{"run_at only", TriggerConfig{RunAt: &now}, JobTypeOneOff},
		{"empty", TriggerConfig{}, JobTypeOneOff},
		{"cron", TriggerConfig{Cron: "0 9 * * 1"}, JobTypeScheduled},
		{"interval", TriggerConfig{IntervalSeconds: 600}, JobTypeScheduled},
		{"interval with end condition", TriggerConfig{IntervalSeconds: 600, EndCondition: "price above 100"}, JobTypeOngoing},
		{"interval with max iterations", TriggerConfig{IntervalSeconds: 600, MaxIterations: 5}, JobTypeOngoing},
		{"end condition without interval stays one_off", TriggerConfig{EndCondition: "done"}, JobTypeOneOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tc.DeriveType())
		})
	}
}

func TestTriggerConfigValidateFor(t *testing.T) {
	now := time.Now()

	assert.NoError(t, TriggerConfig{RunAt: &now}.ValidateFor(JobTypeOneOff))
	assert.Error(t, TriggerConfig{}.ValidateFor(JobTypeOneOff))

	assert.NoError(t, TriggerConfig{Cron: "@daily"}.ValidateFor(JobTypeScheduled))
	assert.NoError(t, TriggerConfig{IntervalSeconds: 60}.ValidateFor(JobTypeScheduled))
	assert.Error(t, TriggerConfig{}.ValidateFor(JobTypeScheduled))
	// Exactly one recurrence source.
	assert.Error(t, TriggerConfig{Cron: "@daily", IntervalSeconds: 60}.ValidateFor(JobTypeScheduled))

	assert.NoError(t, TriggerConfig{IntervalSeconds: 60, MaxIterations: 3}.ValidateFor(JobTypeOngoing))
	assert.NoError(t, TriggerConfig{IntervalSeconds: 60, EndCondition: "done"}.ValidateFor(JobTypeOngoing))
	assert.Error(t, TriggerConfig{IntervalSeconds: 60}.ValidateFor(JobTypeOngoing))
	assert.Error(t, TriggerConfig{EndCondition: "done"}.ValidateFor(JobTypeOngoing))

	assert.Error(t, TriggerConfig{}.ValidateFor(JobType("weird")))
}

func TestJobEffectiveUserID(t *testing.T) {
	job := &Job{UserID: "user_0a1b2c3d"}
	assert.Equal(t, "user_0a1b2c3d", job.EffectiveUserID())

	job.RelatedEntityID = "colleague@example.com"
	assert.Equal(t, "colleague@example.com", job.EffectiveUserID())
}

func TestJobCanModify(t *testing.T) {
	job := &Job{UserID: "creator", RelatedEntityID: "target"}

	assert.True(t, job.CanModify("creator"))
	// Execution identity grants no authority.
	assert.False(t, job.CanModify("target"))
	assert.False(t, job.CanModify("stranger"))
}

func TestJobStatusPredicates(t *testing.T) {
	assert.True(t, JobStatusPending.IsClaimable())
	assert.True(t, JobStatusActive.IsClaimable())
	assert.False(t, JobStatusRunning.IsClaimable())
	assert.False(t, JobStatusPaused.IsClaimable())
	assert.False(t, JobStatusCompleted.IsClaimable())

	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusPaused.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
}
