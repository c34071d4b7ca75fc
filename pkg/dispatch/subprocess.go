package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicdavidson/homestead/pkg/aitokens"
	"github.com/nicdavidson/homestead/pkg/apierr"
)

// subprocessEvent is one line of the spawned CLI's structured streaming
// output. The reference binary emits newline-delimited JSON matching
// this shape (mirroring the teacher's codexrpc/opencode line-delimited
// event protocols): a sequence of "delta" events carrying incremental
// text, followed by exactly one "result" or "error" event.
type subprocessEvent struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	SessionHandle string `json:"session_handle"`
	Message       string `json:"message"`
}

// SubprocessBackend spawns cfg.Binary once per turn, feeds userText on
// stdin, and parses the child's streaming structured output from
// stdout. Preemption is best-effort: cancel() signals the process and
// waits a bounded grace period before force-terminating it, per
// spec.md §4.1.
type SubprocessBackend struct {
	Binary      string
	BaseArgs    []string
	ModelRef    string // passed as --model, if non-empty
	GracePeriod time.Duration
	Log         zerolog.Logger
}

const defaultKillGracePeriod = 5 * time.Second

func (b *SubprocessBackend) gracePeriod() time.Duration {
	if b.GracePeriod > 0 {
		return b.GracePeriod
	}
	return defaultKillGracePeriod
}

func (b *SubprocessBackend) StreamTurn(ctx context.Context, priorHandle, modelRef, userText string, onDelta OnDelta) (Result, error) {
	if b.Binary == "" {
		return Result{}, apierr.New(apierr.CodeConfig, "subprocess backend binary is not configured")
	}
	if modelRef == "" {
		modelRef = b.ModelRef
	}

	args := append([]string{}, b.BaseArgs...)
	if modelRef != "" {
		args = append(args, "--model", modelRef)
	}
	if priorHandle != "" {
		args = append(args, "--resume", priorHandle)
	}

	cmd := exec.Command(b.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, apierr.Wrap(apierr.CodeTransport, "open subprocess stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, apierr.Wrap(apierr.CodeTransport, "open subprocess stdout", err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{}, apierr.Wrap(apierr.CodeTransport, "spawn backend process", err)
	}

	go func() {
		_, _ = io.WriteString(stdin, userText)
		_ = stdin.Close()
	}()

	done := make(chan struct{})
	var result Result
	var streamErr error
	go func() {
		defer close(done)
		result, streamErr = b.readEvents(stdout, onDelta)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		b.terminate(cmd)
		<-done
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return Result{}, apierr.Wrap(apierr.CodeTimeout, "backend turn cancelled or timed out", ctx.Err())
	}
	if streamErr != nil {
		return Result{}, streamErr
	}
	if waitErr != nil {
		return Result{}, apierr.Wrap(apierr.CodeBackend, fmt.Sprintf("backend exited with error, stderr=%q", strings.TrimSpace(stderrBuf.String())), waitErr)
	}
	result.Usage = estimateUsage(userText, result.Text, modelRef)
	return result, nil
}

// estimateUsage fills a best-effort Usage from the turn's input and
// output text; the subprocess backend has no token count of its own to
// report, so this estimate is the only accounting available.
func estimateUsage(userText, responseText, modelRef string) Usage {
	prompt, err := aitokens.EstimateText(userText, modelRef)
	if err != nil {
		prompt = 0
	}
	completion, err := aitokens.EstimateText(responseText, modelRef)
	if err != nil {
		completion = 0
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completion}
}

func (b *SubprocessBackend) readEvents(stdout io.Reader, onDelta OnDelta) (Result, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var textBuilder strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt subprocessEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			b.Log.Warn().Err(err).Str("line", line).Msg("dispatch: failed to parse subprocess event line")
			continue
		}
		switch evt.Type {
		case "delta":
			if evt.Text == "" {
				continue
			}
			textBuilder.WriteString(evt.Text)
			onDelta(evt.Text)
		case "result":
			text := evt.Text
			if text == "" {
				text = textBuilder.String()
			}
			return Result{Text: text, NewHandle: evt.SessionHandle}, nil
		case "error":
			return Result{}, apierr.New(apierr.CodeBackend, evt.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, apierr.Wrap(apierr.CodeTransport, "read subprocess stdout", err)
	}
	// Process exited without an explicit terminal event; treat accumulated
	// text as authoritative, per the streaming contract's fallback rule.
	return Result{Text: textBuilder.String()}, nil
}

func (b *SubprocessBackend) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(b.gracePeriod())
	defer timer.Stop()
	exited := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-timer.C:
		_ = cmd.Process.Kill()
	}
}
