package scheduler

import (
	"encoding/json"
	"time"

	"github.com/nicdavidson/homestead/pkg/apierr"
)

// ValidateSchedule rejects an invalid (kind, expression) pair at the API
// boundary. It parses through ComputeNextRun, the same function the fire
// loop uses to compute next_run_at, so both apply one set of rules.
func ValidateSchedule(kind ScheduleKind, expr string) error {
	if !validScheduleKind(kind) {
		return apierr.Validation("unknown schedule_kind %q", kind)
	}
	_, err := ComputeNextRun(kind, expr, time.Now())
	return err
}

// ValidateAction rejects an invalid (kind, config) pair at the API
// boundary, checking both the JSON shape and required fields.
func ValidateAction(kind ActionKind, config string) error {
	if !validActionKind(kind) {
		return apierr.Validation("unknown action_kind %q", kind)
	}
	switch kind {
	case ActionOutbox:
		var c OutboxActionConfig
		if err := json.Unmarshal([]byte(config), &c); err != nil {
			return apierr.Validation("invalid outbox action config: %v", err)
		}
		if c.ChatID == 0 {
			return apierr.Validation("outbox action config requires chat_id")
		}
		if c.Message == "" {
			return apierr.Validation("outbox action config requires message")
		}
	case ActionCommand:
		var c CommandActionConfig
		if err := json.Unmarshal([]byte(config), &c); err != nil {
			return apierr.Validation("invalid command action config: %v", err)
		}
		if c.Command == "" {
			return apierr.Validation("command action config requires command")
		}
	case ActionWebhook:
		var c WebhookActionConfig
		if err := json.Unmarshal([]byte(config), &c); err != nil {
			return apierr.Validation("invalid webhook action config: %v", err)
		}
		if c.URL == "" {
			return apierr.Validation("webhook action config requires url")
		}
	}
	return nil
}
