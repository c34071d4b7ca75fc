package scheduler

import (
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

var cronParser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// ComputeNextRun returns the next fire instant strictly after from, or nil
// if the schedule has no future instant (an elapsed "once").
//
// cron: standard 5-field UTC expression.
// interval: schedule_expression is a positive integer count of seconds.
// once: schedule_expression is an ISO-8601 date-time; fires once then nil.
func ComputeNextRun(kind ScheduleKind, expr string, from time.Time) (*time.Time, error) {
	expr = strings.TrimSpace(expr)
	switch kind {
	case ScheduleCron:
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, validationErr("invalid cron expression %q: %v", expr, err)
		}
		next := sched.Next(from.UTC())
		if next.IsZero() {
			return nil, nil
		}
		next = next.UTC()
		return &next, nil
	case ScheduleInterval:
		seconds, err := strconv.ParseInt(expr, 10, 64)
		if err != nil || seconds <= 0 {
			return nil, validationErr("invalid interval expression %q: must be a positive integer number of seconds", expr)
		}
		next := from.UTC().Add(time.Duration(seconds) * time.Second)
		return &next, nil
	case ScheduleOnce:
		at, err := time.Parse(time.RFC3339, expr)
		if err != nil {
			return nil, validationErr("invalid once expression %q: expected ISO-8601 date-time: %v", expr, err)
		}
		at = at.UTC()
		if !at.After(from.UTC()) {
			return nil, nil
		}
		return &at, nil
	default:
		return nil, validationErr("unknown schedule kind %q", kind)
	}
}
