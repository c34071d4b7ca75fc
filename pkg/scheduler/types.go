// Package scheduler computes next-fire times for jobs and fires their
// configured actions on time. Scheduling math is adapted from the
// teacher's pkg/cron/schedule.go; the fire loop and atomic
// transition-then-dispatch shape are adapted from pkg/cron/service.go.
package scheduler

import "github.com/nicdavidson/homestead/pkg/apierr"

// ScheduleKind names the three supported trigger shapes.
type ScheduleKind string

const (
	ScheduleCron     ScheduleKind = "cron"
	ScheduleInterval ScheduleKind = "interval"
	ScheduleOnce     ScheduleKind = "once"
)

// ActionKind names the three supported job actions.
type ActionKind string

const (
	ActionOutbox  ActionKind = "outbox"
	ActionCommand ActionKind = "command"
	ActionWebhook ActionKind = "webhook"
)

// Job is a scheduled trigger bound to one action.
type Job struct {
	ID                 string
	Name               string
	Description        string
	ScheduleKind       ScheduleKind
	ScheduleExpression string
	ActionKind         ActionKind
	ActionConfig       string // JSON, typed per ActionKind; see the *ActionConfig types below
	Enabled            bool
	LastRunAt          *int64
	NextRunAt          *int64
	RunCount           int64
	CreatedAt          int64
	Tags               []string
	Source             string
}

// OutboxActionConfig is the bit-exact config for ActionOutbox.
type OutboxActionConfig struct {
	ChatID    int64  `json:"chat_id"`
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
}

// CommandActionConfig is the bit-exact config for ActionCommand.
type CommandActionConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Timeout int      `json:"timeout"` // seconds, default 60
}

// WebhookActionConfig is the bit-exact config for ActionWebhook.
type WebhookActionConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"` // default POST
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

func validScheduleKind(k ScheduleKind) bool {
	switch k {
	case ScheduleCron, ScheduleInterval, ScheduleOnce:
		return true
	}
	return false
}

func validActionKind(k ActionKind) bool {
	switch k {
	case ActionOutbox, ActionCommand, ActionWebhook:
		return true
	}
	return false
}

func validationErr(format string, args ...any) error {
	return apierr.Validation(format, args...)
}
