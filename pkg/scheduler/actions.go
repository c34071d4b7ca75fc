package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/nicdavidson/homestead/pkg/apierr"
	"github.com/nicdavidson/homestead/pkg/shared/httputil"
)

// OutboxEnqueuer is the narrow interface the outbox action kind depends on,
// satisfied by *outbox.Store without importing it (the scheduler only
// needs to insert a message, not drain one).
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, chatID int64, agentName, body string) (int64, error)
}

const defaultActionTimeoutSecs = 60

// runAction executes job.ActionKind against job.ActionConfig under a
// bounded timeout. Returns an error describing the failure for the
// WARNING log, or nil on success.
func runAction(ctx context.Context, job Job, outbox OutboxEnqueuer) error {
	switch job.ActionKind {
	case ActionOutbox:
		return runOutboxAction(ctx, job, outbox)
	case ActionCommand:
		return runCommandAction(ctx, job)
	case ActionWebhook:
		return runWebhookAction(ctx, job)
	default:
		return apierr.Internal(nil, "unknown action kind %q", job.ActionKind)
	}
}

func runOutboxAction(ctx context.Context, job Job, outbox OutboxEnqueuer) error {
	var cfg OutboxActionConfig
	if err := json.Unmarshal([]byte(job.ActionConfig), &cfg); err != nil {
		return apierr.Validation("malformed outbox action config: %v", err)
	}
	if outbox == nil {
		return apierr.Internal(nil, "outbox not wired into scheduler")
	}
	_, err := outbox.Enqueue(ctx, cfg.ChatID, cfg.AgentName, cfg.Message)
	return err
}

func runCommandAction(ctx context.Context, job Job) error {
	var cfg CommandActionConfig
	if err := json.Unmarshal([]byte(job.ActionConfig), &cfg); err != nil {
		return apierr.Validation("malformed command action config: %v", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultActionTimeoutSecs
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.Command, cfg.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return apierr.Wrap(apierr.CodeBackend, fmt.Sprintf("command %q exited with error, stderr=%q", cfg.Command, stderr.String()), err)
	}
	return nil
}

func runWebhookAction(ctx context.Context, job Job) error {
	var cfg WebhookActionConfig
	if err := json.Unmarshal([]byte(job.ActionConfig), &cfg); err != nil {
		return apierr.Validation("malformed webhook action config: %v", err)
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	runCtx, cancel := context.WithTimeout(ctx, defaultActionTimeoutSecs*time.Second)
	defer cancel()

	_, status, err := httputil.Do(runCtx, method, cfg.URL, cfg.Headers, []byte(cfg.Body), defaultActionTimeoutSecs)
	if err != nil {
		if status >= 500 || status == 0 {
			return apierr.Wrap(apierr.CodeTransport, "webhook request failed", err)
		}
		return apierr.Wrap(apierr.CodeBackend, fmt.Sprintf("webhook returned status %d", status), err)
	}
	return nil
}
