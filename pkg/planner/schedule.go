package planner

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/protagolabs/agentcore/pkg/models"
)

// cronParser accepts standard five-field cron expressions plus descriptors
// like @daily.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextScheduledRun computes the next firing time for a scheduled trigger
// from the reference time.
func NextScheduledRun(tc models.TriggerConfig, from time.Time) (time.Time, error) {
	if tc.Cron != "" {
		sched, err := ParseCron(tc.Cron)
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(from), nil
	}
	if tc.IntervalSeconds > 0 {
		return from.Add(tc.Interval()), nil
	}
	return time.Time{}, fmt.Errorf("trigger has neither cron nor interval")
}

// NextRunAfter computes the follow-up run after one execution. Missed slots
// never pile up: the next run is computed from now, so a drifted schedule
// fires once and realigns.
func NextRunAfter(tc models.TriggerConfig, now time.Time) (*time.Time, error) {
	switch {
	case tc.Cron != "":
		sched, err := ParseCron(tc.Cron)
		if err != nil {
			return nil, err
		}
		ts := sched.Next(now)
		return &ts, nil
	case tc.IntervalSeconds > 0:
		ts := now.Add(tc.Interval())
		return &ts, nil
	default:
		return nil, nil
	}
}
