package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protagolabs/agentcore/pkg/models"
)

func TestParseCron(t *testing.T) {
	_, err := ParseCron("0 9 * * 1")
	assert.NoError(t, err)

	_, err = ParseCron("@daily")
	assert.NoError(t, err)

	_, err = ParseCron("not a cron")
	assert.Error(t, err)
}

func TestNextScheduledRun(t *testing.T) {
	from := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC) // a Monday

	t.Run("cron", func(t *testing.T) {
		ts, err := NextScheduledRun(models.TriggerConfig{Cron: "0 9 * * 1"}, from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), ts)
	})

	t.Run("interval", func(t *testing.T) {
		ts, err := NextScheduledRun(models.TriggerConfig{IntervalSeconds: 3600}, from)
		require.NoError(t, err)
		assert.Equal(t, from.Add(time.Hour), ts)
	})

	t.Run("no recurrence", func(t *testing.T) {
		_, err := NextScheduledRun(models.TriggerConfig{}, from)
		assert.Error(t, err)
	})
}

func TestNextRunAfter(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)

	t.Run("cron realigns from now", func(t *testing.T) {
		// 9:00 already passed, so a drifted run lands on next Monday 9:00
		// instead of replaying the missed slot.
		next, err := NextRunAfter(models.TriggerConfig{Cron: "0 9 * * 1"}, now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), *next)
	})

	t.Run("interval counts from now", func(t *testing.T) {
		next, err := NextRunAfter(models.TriggerConfig{IntervalSeconds: 600}, now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, now.Add(10*time.Minute), *next)
	})

	t.Run("one-off has no follow-up", func(t *testing.T) {
		runAt := now.Add(-time.Hour)
		next, err := NextRunAfter(models.TriggerConfig{RunAt: &runAt}, now)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("bad cron", func(t *testing.T) {
		_, err := NextRunAfter(models.TriggerConfig{Cron: "bogus"}, now)
		assert.Error(t, err)
	})
}
