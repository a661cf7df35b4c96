package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/protagolabs/agentcore/pkg/models"
)

func TestMechanicalDefault(t *testing.T) {
	oneOff := mechanicalDefault(&models.Job{JobType: models.JobTypeOneOff})
	assert.Equal(t, models.JobStatusCompleted, oneOff.Status)

	scheduled := mechanicalDefault(&models.Job{JobType: models.JobTypeScheduled})
	assert.Equal(t, models.JobStatusActive, scheduled.Status)

	ongoing := mechanicalDefault(&models.Job{JobType: models.JobTypeOngoing})
	assert.Equal(t, models.JobStatusActive, ongoing.Status)
}

func TestMirrorInstanceStatus(t *testing.T) {
	assert.Equal(t, models.InstanceStatusCompleted, mirrorInstanceStatus(models.JobStatusCompleted))
	assert.Equal(t, models.InstanceStatusFailed, mirrorInstanceStatus(models.JobStatusFailed))
	assert.Equal(t, models.InstanceStatusCancelled, mirrorInstanceStatus(models.JobStatusCancelled))

	// A non-terminal outcome keeps the instance in_progress between runs;
	// the poller only reacts to terminal transitions.
	assert.Equal(t, models.InstanceStatusInProgress, mirrorInstanceStatus(models.JobStatusActive))
	assert.Equal(t, models.InstanceStatusInProgress, mirrorInstanceStatus(models.JobStatusPending))
}

func TestJitter(t *testing.T) {
	assert.Equal(t, time.Duration(0), jitter(0))
	assert.Equal(t, time.Duration(0), jitter(-time.Second))

	for i := 0; i < 100; i++ {
		j := jitter(5 * time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 5*time.Second)
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, tail([]string{"a", "b"}, 5))
	assert.Equal(t, []string{"d", "e", "f"}, tail([]string{"a", "b", "c", "d", "e", "f"}, 3))
	assert.Empty(t, tail(nil, 3))
}

func TestMarkAndClearInFlight(t *testing.T) {
	e := &Engine{inFlight: map[string]struct{}{}}

	assert.True(t, e.markInFlight("job_00000001"))
	// A job already in flight is never enqueued twice.
	assert.False(t, e.markInFlight("job_00000001"))
	assert.True(t, e.markInFlight("job_00000002"))

	e.clearInFlight("job_00000001")
	assert.True(t, e.markInFlight("job_00000001"))
}
