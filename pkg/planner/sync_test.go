package planner

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/models"
)

func TestBuildKeyToID(t *testing.T) {
	planned := []*PlanInstance{
		{TaskKey: "reuse", InstanceID: "job_0a1b2c3d", ModuleClass: models.ModuleClassJob},
		{TaskKey: "label", InstanceID: "daily-report", ModuleClass: models.ModuleClassJob},
		{TaskKey: "fresh", ModuleClass: models.ModuleClassChat},
	}

	keyToID := buildKeyToID(planned)

	assert.Equal(t, "job_0a1b2c3d", keyToID["reuse"])

	// A model-invented label is cleared and replaced with a fresh id.
	assert.Empty(t, planned[1].InstanceID)
	assert.True(t, models.IsWellFormedID(keyToID["label"]))
	assert.NotEqual(t, "daily-report", keyToID["label"])

	assert.True(t, models.IsWellFormedID(keyToID["fresh"]))
	assert.NotEqual(t, keyToID["label"], keyToID["fresh"])
}

func TestResolveDependencies(t *testing.T) {
	planned := []*PlanInstance{
		{TaskKey: "fetch"},
		{TaskKey: "report", DependsOn: []string{"fetch", "ghost"}},
	}
	keyToID := map[string]string{"fetch": "job_00000001", "report": "job_00000002"}

	resolveDependencies(planned, keyToID, slog.Default())

	// The unresolved key is dropped, not fatal.
	assert.Equal(t, []string{"job_00000001"}, planned[1].Dependencies)
	assert.Empty(t, planned[0].Dependencies)
}

func TestDetectCycle(t *testing.T) {
	t.Run("two node cycle", func(t *testing.T) {
		planned := []*PlanInstance{
			{TaskKey: "a", DependsOn: []string{"b"}},
			{TaskKey: "b", DependsOn: []string{"a"}},
		}
		cycle := detectCycle(planned)
		require.NotNil(t, cycle)
		assert.Equal(t, []string{"a", "b", "a"}, cycle)
	})

	t.Run("self cycle", func(t *testing.T) {
		cycle := detectCycle([]*PlanInstance{{TaskKey: "a", DependsOn: []string{"a"}}})
		assert.Equal(t, []string{"a", "a"}, cycle)
	})

	t.Run("acyclic diamond", func(t *testing.T) {
		planned := []*PlanInstance{
			{TaskKey: "a"},
			{TaskKey: "b", DependsOn: []string{"a"}},
			{TaskKey: "c", DependsOn: []string{"a"}},
			{TaskKey: "d", DependsOn: []string{"b", "c"}},
		}
		assert.Nil(t, detectCycle(planned))
	})

	t.Run("dependency outside the batch", func(t *testing.T) {
		planned := []*PlanInstance{{TaskKey: "a", DependsOn: []string{"elsewhere"}}}
		assert.Nil(t, detectCycle(planned))
	})
}

func TestBuildJobKeepsResolvedID(t *testing.T) {
	s := &InstanceSync{logger: slog.Default()}
	planned := []*PlanInstance{
		{TaskKey: "fetch_data", ModuleClass: models.ModuleClassJob,
			Description: "fetch the raw numbers",
			JobConfig:   &JobConfig{Title: "fetch data", Payload: "pull the raw numbers"}},
		{TaskKey: "analyse", ModuleClass: models.ModuleClassJob,
			DependsOn:   []string{"fetch_data"},
			Description: "analyse the numbers",
			JobConfig:   &JobConfig{Title: "summarize revenue trends", Payload: "summarize trends"}},
	}
	keyToID := buildKeyToID(planned)
	resolveDependencies(planned, keyToID, slog.Default())

	job, inst, err := s.buildJob(context.Background(), "agent_0a1b2c3d", "user_0a1b2c3d", "", planned[0], keyToID["fetch_data"])
	require.NoError(t, err)

	// The persisted prerequisite carries exactly the id its dependent
	// recorded, otherwise unblocking can never match.
	assert.Equal(t, keyToID["fetch_data"], inst.InstanceID)
	require.Len(t, planned[1].Dependencies, 1)
	assert.Equal(t, inst.InstanceID, planned[1].Dependencies[0])
	assert.NotEmpty(t, job.JobID)
}

func TestSuppressDuplicatesWithinBatch(t *testing.T) {
	s := &InstanceSync{
		syncCfg: config.SyncConfig{TitleSimilarityThreshold: 0.5},
		logger:  slog.Default(),
	}
	planned := []*PlanInstance{
		{TaskKey: "weather_a", ModuleClass: models.ModuleClassJob,
			JobConfig: &JobConfig{Title: "check the weather daily", Payload: "x"}},
		{TaskKey: "weather_b", ModuleClass: models.ModuleClassJob,
			JobConfig: &JobConfig{Title: "check weather", Payload: "x"}},
		{TaskKey: "invoice", ModuleClass: models.ModuleClassJob,
			DependsOn: []string{"weather_b"},
			JobConfig: &JobConfig{Title: "send quarterly invoice", Payload: "x"}},
	}
	keyToID := buildKeyToID(planned)
	require.NoError(t, s.suppressDuplicates(context.Background(), planned, map[string]string{}, keyToID))

	// The later sibling folds onto the survivor.
	assert.True(t, planned[1].SimilarMatch)
	assert.Equal(t, keyToID["weather_a"], keyToID["weather_b"])
	assert.False(t, planned[2].SimilarMatch)

	// A dependent of the folded sibling resolves to the survivor's id.
	resolveDependencies(planned, keyToID, slog.Default())
	assert.Equal(t, []string{keyToID["weather_a"]}, planned[2].Dependencies)
}

func TestAssignInitialStatus(t *testing.T) {
	planned := []*PlanInstance{
		{TaskKey: "chat", ModuleClass: models.ModuleClassChat,
			DependsOn: []string{"fetch"}, Dependencies: []string{"job_00000001"}},
		{TaskKey: "fetch", ModuleClass: models.ModuleClassJob},
		{TaskKey: "report", ModuleClass: models.ModuleClassJob, DependsOn: []string{"fetch"}},
		{TaskKey: "external", ModuleClass: models.ModuleClassJob, DependsOn: []string{"elsewhere"}},
	}

	assignInitialStatus(planned)

	// Non-job instances never carry dependency edges.
	assert.Equal(t, models.InstanceStatusActive, planned[0].Status)
	assert.Nil(t, planned[0].DependsOn)
	assert.Nil(t, planned[0].Dependencies)

	assert.Equal(t, models.InstanceStatusActive, planned[1].Status)

	// A job waiting on a sibling in this batch starts blocked.
	assert.Equal(t, models.InstanceStatusBlocked, planned[2].Status)

	// A dependency outside the batch does not block.
	assert.Equal(t, models.InstanceStatusActive, planned[3].Status)
}
