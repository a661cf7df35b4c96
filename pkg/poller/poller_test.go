package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/config"
	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/planner"
	"github.com/protagolabs/agentcore/pkg/repo"
	testdb "github.com/protagolabs/agentcore/test/database"
)

// TestProcessResolvesThenMarks pins the callback ordering: dependents are
// unblocked first, and only a successful resolution records the callback.
// A crash between the two leaves the candidate retryable on the next scan.
func TestProcessResolvesThenMarks(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := client.Store()
	ctx := context.Background()

	instances := repo.NewInstanceRepo(store)
	jobs := repo.NewJobRepo(store)
	p := New(config.PollerConfig{PollInterval: time.Second, MaxWorkers: 1, BatchLimit: 10, QueueSize: 4},
		instances, planner.NewDependencyResolver(instances, jobs))

	agentID := models.NewID("agent")
	userID := models.NewID("user")

	dep := &models.ModuleInstance{
		ModuleClass: models.ModuleClassJob,
		AgentID:     agentID,
		UserID:      &userID,
		Description: "fetch data",
	}
	require.NoError(t, instances.Create(ctx, dep))

	blocked := &models.ModuleInstance{
		ModuleClass:  models.ModuleClassJob,
		AgentID:      agentID,
		UserID:       &userID,
		Status:       models.InstanceStatusBlocked,
		Description:  "summarize data",
		Dependencies: []string{dep.InstanceID},
	}
	require.NoError(t, instances.Create(ctx, blocked))

	require.NoError(t, instances.SetStatus(ctx, dep.InstanceID, models.InstanceStatusCompleted))

	p.process(dep.InstanceID)

	got, err := instances.Get(ctx, blocked.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, got.Status)

	settled, err := instances.Get(ctx, dep.InstanceID)
	require.NoError(t, err)
	assert.True(t, settled.CallbackProcessed)

	// Reprocessing a settled candidate is a no-op.
	p.process(dep.InstanceID)
	again, err := instances.Get(ctx, blocked.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, again.Status)
}
