package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/models"
)

func TestJobConfigScheduledTime(t *testing.T) {
	t.Run("rfc3339", func(t *testing.T) {
		jc := &JobConfig{ScheduledAt: "2026-04-01T09:00:00Z"}
		ts := jc.ScheduledTime()
		require.NotNil(t, ts)
		assert.Equal(t, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), ts.UTC())
	})

	t.Run("space separated", func(t *testing.T) {
		jc := &JobConfig{ScheduledAt: "2026-04-01 09:00"}
		require.NotNil(t, jc.ScheduledTime())
	})

	t.Run("absent", func(t *testing.T) {
		assert.Nil(t, (&JobConfig{}).ScheduledTime())
		assert.Nil(t, (*JobConfig)(nil).ScheduledTime())
	})

	t.Run("unparseable", func(t *testing.T) {
		assert.Nil(t, (&JobConfig{ScheduledAt: "tomorrow"}).ScheduledTime())
	})
}

func TestValidatePlan(t *testing.T) {
	job := func(key string, deps ...string) *PlanInstance {
		return &PlanInstance{
			TaskKey:     key,
			ModuleClass: models.ModuleClassJob,
			DependsOn:   deps,
			JobConfig:   &JobConfig{Title: key, Payload: "do " + key},
		}
	}

	tests := []struct {
		name    string
		plan    *Plan
		wantErr string
	}{
		{
			name: "valid agent loop plan",
			plan: &Plan{
				ExecutionPath:   models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{job("fetch"), job("report", "fetch")},
			},
		},
		{
			name: "valid direct trigger",
			plan: &Plan{
				ExecutionPath: models.ExecutionPathDirectTrigger,
				DirectTrigger: &DirectTrigger{ToolName: "weather__current"},
			},
		},
		{
			name:    "direct trigger without payload",
			plan:    &Plan{ExecutionPath: models.ExecutionPathDirectTrigger},
			wantErr: "without a direct_trigger payload",
		},
		{
			name:    "unknown execution path",
			plan:    &Plan{ExecutionPath: "teleport"},
			wantErr: "unknown execution_path",
		},
		{
			name: "missing task_key",
			plan: &Plan{
				ExecutionPath:   models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{{ModuleClass: models.ModuleClassChat}},
			},
			wantErr: "missing task_key",
		},
		{
			name: "duplicate task_key",
			plan: &Plan{
				ExecutionPath:   models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{job("fetch"), job("fetch")},
			},
			wantErr: "duplicate task_key",
		},
		{
			name: "unknown module class",
			plan: &Plan{
				ExecutionPath: models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{
					{TaskKey: "x", ModuleClass: "TeleportModule"},
				},
			},
			wantErr: "unknown module_class",
		},
		{
			name: "job without job_config",
			plan: &Plan{
				ExecutionPath: models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{
					{TaskKey: "x", ModuleClass: models.ModuleClassJob},
				},
			},
			wantErr: "without job_config",
		},
		{
			name: "end_condition without interval",
			plan: &Plan{
				ExecutionPath: models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{
					{
						TaskKey:     "x",
						ModuleClass: models.ModuleClassJob,
						JobConfig:   &JobConfig{Title: "x", EndCondition: "until done"},
					},
				},
			},
			wantErr: "end_condition without interval_seconds",
		},
		{
			name: "dependency on unknown task_key",
			plan: &Plan{
				ExecutionPath:   models.ExecutionPathAgentLoop,
				ActiveInstances: []*PlanInstance{job("report", "fetch")},
			},
			wantErr: "depends on unknown task_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlan(tt.plan)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
