package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/models"
	"github.com/protagolabs/agentcore/pkg/repo"
	testdb "github.com/protagolabs/agentcore/test/database"
)

// TestJobLifecycle exercises the claim and completion flow end to end
// against a real database: create, due, atomic claim, instance settlement,
// and the poller predicate.
func TestJobLifecycle(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := client.Store()
	ctx := context.Background()

	users := repo.NewUserRepo(store)
	agents := repo.NewAgentRepo(store)
	instances := repo.NewInstanceRepo(store)
	jobs := repo.NewJobRepo(store)

	user, err := users.Create(ctx, models.NewID("user"), "human", "Ada", "UTC")
	require.NoError(t, err)
	agent, err := agents.Create(ctx, "Helper", "test agent", user.UserID, false)
	require.NoError(t, err)

	inst := &models.ModuleInstance{
		ModuleClass: models.ModuleClassJob,
		AgentID:     agent.AgentID,
		UserID:      &user.UserID,
		Description: "check the weather",
	}
	require.NoError(t, instances.Create(ctx, inst))

	runAt := time.Now().UTC().Add(-time.Minute)
	job := &models.Job{
		InstanceID: inst.InstanceID,
		AgentID:    agent.AgentID,
		UserID:     user.UserID,
		Title:      "check the weather",
		Payload:    "look up the weather in Berlin",
		Trigger:    models.TriggerConfig{RunAt: &runAt},
	}
	require.NoError(t, jobs.Create(ctx, job))
	assert.Equal(t, models.JobTypeOneOff, job.JobType)

	t.Run("due and atomic claim", func(t *testing.T) {
		due, err := jobs.Due(ctx, time.Now().UTC(), 100)
		require.NoError(t, err)
		assert.True(t, containsJob(due, job.JobID))

		require.NoError(t, jobs.Claim(ctx, job.JobID))
		// The second claim loses.
		err = jobs.Claim(ctx, job.JobID)
		assert.ErrorIs(t, err, repo.ErrNotClaimable)

		claimed, err := jobs.Get(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusRunning, claimed.Status)

		due, err = jobs.Due(ctx, time.Now().UTC(), 100)
		require.NoError(t, err)
		assert.False(t, containsJob(due, job.JobID))
	})

	t.Run("poller predicate", func(t *testing.T) {
		// The engine aligns the polled status before the run so the poller
		// stays quiet while work is active.
		require.NoError(t, instances.SetStatus(ctx, inst.InstanceID, models.InstanceStatusInProgress))
		require.NoError(t, instances.MarkPolled(ctx, inst.InstanceID, models.InstanceStatusInProgress))

		candidates, err := instances.PollCandidates(ctx, 100)
		require.NoError(t, err)
		assert.False(t, containsInstance(candidates, inst.InstanceID))

		require.NoError(t, instances.SetStatus(ctx, inst.InstanceID, models.InstanceStatusCompleted))

		candidates, err = instances.PollCandidates(ctx, 100)
		require.NoError(t, err)
		assert.True(t, containsInstance(candidates, inst.InstanceID))

		claimed, err := instances.MarkCallbackProcessed(ctx, inst.InstanceID, models.InstanceStatusCompleted)
		require.NoError(t, err)
		assert.True(t, claimed)

		// The callback fires at most once per status change.
		claimed, err = instances.MarkCallbackProcessed(ctx, inst.InstanceID, models.InstanceStatusCompleted)
		require.NoError(t, err)
		assert.False(t, claimed)

		candidates, err = instances.PollCandidates(ctx, 100)
		require.NoError(t, err)
		assert.False(t, containsInstance(candidates, inst.InstanceID))
	})

	t.Run("finish run records outcome", func(t *testing.T) {
		require.NoError(t, jobs.FinishRun(ctx, job.JobID, repo.RunResult{
			Status:      models.JobStatusCompleted,
			ProcessNote: "reported the weather",
			Iterated:    true,
		}))
		finished, err := jobs.Get(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, finished.Status)
		assert.Equal(t, 1, finished.IterationCount)
		require.NotEmpty(t, finished.Process)
		assert.Contains(t, finished.Process[len(finished.Process)-1], "reported the weather")
	})
}

func containsJob(jobs []*models.Job, id string) bool {
	for _, j := range jobs {
		if j.JobID == id {
			return true
		}
	}
	return false
}

func containsInstance(insts []*models.ModuleInstance, id string) bool {
	for _, inst := range insts {
		if inst.InstanceID == id {
			return true
		}
	}
	return false
}

func TestInstanceUnblock(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := client.Store()
	ctx := context.Background()

	instances := repo.NewInstanceRepo(store)
	userID := "user_0a1b2c3d"

	dep := &models.ModuleInstance{
		ModuleClass: models.ModuleClassJob,
		AgentID:     "agent_0a1b2c3d",
		UserID:      &userID,
		Description: "fetch data",
	}
	require.NoError(t, instances.Create(ctx, dep))

	blocked := &models.ModuleInstance{
		ModuleClass:  models.ModuleClassJob,
		AgentID:      "agent_0a1b2c3d",
		UserID:       &userID,
		Status:       models.InstanceStatusBlocked,
		Description:  "summarize data",
		Dependencies: []string{dep.InstanceID},
	}
	require.NoError(t, instances.Create(ctx, blocked))

	deps, err := instances.Dependents(ctx, "agent_0a1b2c3d", dep.InstanceID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, blocked.InstanceID, deps[0].InstanceID)

	changed, err := instances.Unblock(ctx, blocked.InstanceID)
	require.NoError(t, err)
	assert.True(t, changed)

	// Unblocking an already active instance is a no-op.
	changed, err = instances.Unblock(ctx, blocked.InstanceID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := instances.Get(ctx, blocked.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusActive, got.Status)
}

func TestAgentCascadeDelete(t *testing.T) {
	client := testdb.NewTestClient(t)
	store := client.Store()
	ctx := context.Background()

	users := repo.NewUserRepo(store)
	agents := repo.NewAgentRepo(store)
	instances := repo.NewInstanceRepo(store)
	memories := repo.NewMemoryRepo(store)

	user, err := users.Create(ctx, models.NewID("user"), "human", "Grace", "UTC")
	require.NoError(t, err)
	agent, err := agents.Create(ctx, "Cleanup", "cascade target", user.UserID, false)
	require.NoError(t, err)

	inst := &models.ModuleInstance{
		ModuleClass: models.ModuleClassChat,
		AgentID:     agent.AgentID,
		UserID:      &user.UserID,
		Description: "chat session",
	}
	require.NoError(t, instances.Create(ctx, inst))

	// Only some of the dynamic memory tables exist; the cascade must not
	// trip over the absent ones.
	require.NoError(t, memories.SaveInstanceMemory(ctx, "chat", inst.InstanceID,
		[]map[string]any{{"note": "hello"}}))

	require.NoError(t, agents.Delete(ctx, agent.AgentID, user.UserID))

	_, err = agents.Get(ctx, agent.AgentID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = instances.Get(ctx, inst.InstanceID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	entries, err := memories.GetInstanceMemory(ctx, "chat", inst.InstanceID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAgentMessageFlow(t *testing.T) {
	client := testdb.NewTestClient(t)
	inbox := repo.NewInboxRepo(client.Store())
	ctx := context.Background()

	target := models.NewID("agent")
	peer := models.NewID("agent")

	msg := &models.AgentMessage{
		AgentID:  target,
		Title:    "quarterly numbers",
		Content:  "please send the Q2 revenue figures",
		SourceID: peer,
	}
	require.NoError(t, inbox.DeliverAgentMessage(ctx, msg))
	assert.NotEmpty(t, msg.MessageID)

	pending, err := inbox.PendingAgentMessages(ctx, target, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, peer, pending[0].SourceID)
	assert.False(t, pending[0].IfResponse)

	require.NoError(t, inbox.MarkAgentMessagesResponded(ctx, target, []string{msg.MessageID}))

	pending, err = inbox.PendingAgentMessages(ctx, target, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInstanceValidation(t *testing.T) {
	client := testdb.NewTestClient(t)
	instances := repo.NewInstanceRepo(client.Store())
	ctx := context.Background()
	userID := "user_0a1b2c3d"

	var validErr *repo.ValidationError

	err := instances.Create(ctx, &models.ModuleInstance{
		ModuleClass: "TeleportModule", AgentID: "agent_0a1b2c3d", UserID: &userID,
	})
	assert.ErrorAs(t, err, &validErr)

	err = instances.Create(ctx, &models.ModuleInstance{
		ModuleClass: models.ModuleClassChat, UserID: &userID,
	})
	assert.ErrorAs(t, err, &validErr)

	// Public instances are agent-level and carry no user.
	err = instances.Create(ctx, &models.ModuleInstance{
		ModuleClass: models.ModuleClassChat, AgentID: "agent_0a1b2c3d",
		IsPublic: true, UserID: &userID,
	})
	assert.ErrorAs(t, err, &validErr)

	// Blocked requires dependencies.
	err = instances.Create(ctx, &models.ModuleInstance{
		ModuleClass: models.ModuleClassJob, AgentID: "agent_0a1b2c3d",
		UserID: &userID, Status: models.InstanceStatusBlocked,
	})
	assert.ErrorAs(t, err, &validErr)
}
