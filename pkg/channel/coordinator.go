// Package channel adapts the turn queue and model dispatcher to
// concrete user-facing transports (Telegram, WebSocket), per spec.md
// §4.4. Both drivers share one Coordinator: it owns session binding
// (§4.5), the fatal-timeout guard, and the SS/EL bookkeeping a
// successful or failed turn must perform.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicdavidson/homestead/pkg/apierr"
	"github.com/nicdavidson/homestead/pkg/dispatch"
	"github.com/nicdavidson/homestead/pkg/eventlog"
	"github.com/nicdavidson/homestead/pkg/session"
	"github.com/nicdavidson/homestead/pkg/turnqueue"
)

// guardSlack is how much longer the channel driver's outer guard
// timeout runs past MD's own inner timeout, per spec.md §4.4's
// "fatal-timeout upper bound".
const guardSlack = 10 * time.Second

// Coordinator wires turnqueue.Processor to the session store and
// dispatcher, and is shared by every channel driver in the process.
type Coordinator struct {
	sessions   *session.Store
	dispatcher *dispatch.Dispatcher
	events     *eventlog.Store
	log        zerolog.Logger

	turnTimeout      time.Duration
	inactivityWindow time.Duration
	defaultModel     string
}

func NewCoordinator(sessions *session.Store, dispatcher *dispatch.Dispatcher, events *eventlog.Store, log zerolog.Logger, turnTimeout, inactivityWindow time.Duration, defaultModel string) *Coordinator {
	return &Coordinator{
		sessions:         sessions,
		dispatcher:       dispatcher,
		events:           events,
		log:              log,
		turnTimeout:      turnTimeout,
		inactivityWindow: inactivityWindow,
		defaultModel:     defaultModel,
	}
}

// BindSession resolves the active session for chatID, rotating to a
// freshly-created one if none exists or the active one has gone stale,
// per spec.md §4.4's session binding rule and §4.5's staleness
// definition (checked here, in the channel layer, not the store).
func (c *Coordinator) BindSession(ctx context.Context, chatID, userID int64) (*session.Session, error) {
	active, err := c.sessions.GetActive(ctx, chatID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if active == nil {
		sess, err := c.sessions.Create(ctx, chatID, session.DefaultName, c.defaultModel, userID)
		if err != nil {
			return nil, err
		}
		return &sess, nil
	}
	if c.inactivityWindow > 0 && now.Sub(time.Unix(active.LastActiveAt, 0)) > c.inactivityWindow {
		rotatedName := fmt.Sprintf("%s-%d", session.DefaultName, now.Unix())
		sess, err := c.sessions.Create(ctx, chatID, rotatedName, active.Model, userID)
		if err != nil {
			return nil, err
		}
		return &sess, nil
	}
	return active, nil
}

// Process implements turnqueue.Processor: it resolves the freshest
// session row for the turn, drives the dispatcher under the outer
// fatal-timeout guard, and on success performs the SS touch strictly
// after terminal dispatch success (invariant 5, spec.md §8).
func (c *Coordinator) Process(ctx context.Context, turn turnqueue.Turn) error {
	sess, err := c.sessions.Get(ctx, turn.ChatID, turn.SessionName)
	if err != nil {
		c.finish(turn, "", "", err)
		return err
	}

	guardCtx, cancel := context.WithTimeout(ctx, c.turnTimeout+guardSlack)
	defer cancel()

	turnID := fmt.Sprintf("%d:%s:%d", turn.ChatID, turn.SessionName, turn.ReceivedAt.UnixNano())
	result, dispatchErr := c.dispatcher.Dispatch(guardCtx, turnID, sess.Model, sess.BackendSessionHandle, turn.UserText, turn.OnDelta)
	if dispatchErr != nil {
		level := eventlog.LevelWarning
		if apierr.CodeOf(dispatchErr) == apierr.CodeTimeout || apierr.CodeOf(dispatchErr) == apierr.CodeInternal {
			level = eventlog.LevelError
		}
		c.logEvent(level, "homestead.dispatch", dispatchErr.Error(), &turn.ChatID)
		c.log.Error().Err(dispatchErr).Int64("chat_id", turn.ChatID).Msg("channel: dispatch failed")
		c.finish(turn, "", "", dispatchErr)
		return dispatchErr
	}

	newHandle := result.NewHandle
	if newHandle == "" {
		newHandle = sess.BackendSessionHandle
	}
	if err := c.sessions.Touch(ctx, turn.ChatID, turn.SessionName, newHandle, time.Now()); err != nil {
		c.log.Error().Err(err).Int64("chat_id", turn.ChatID).Msg("channel: session touch failed")
		c.finish(turn, result.Text, result.NewHandle, err)
		return err
	}
	c.logEvent(eventlog.LevelInfo, "homestead.dispatch", "turn dispatched", &turn.ChatID)
	c.logEvent(eventlog.LevelInfo, "homestead.session", "session touched", &turn.ChatID)

	c.finish(turn, result.Text, result.NewHandle, nil)
	return nil
}

func (c *Coordinator) finish(turn turnqueue.Turn, text, sessionHandle string, err error) {
	if turn.OnDone != nil {
		turn.OnDone(text, sessionHandle, err)
	}
}

func (c *Coordinator) logEvent(level eventlog.Level, source, message string, chatID *int64) {
	if c.events == nil {
		return
	}
	if err := c.events.Append(context.Background(), eventlog.Record{
		Timestamp: time.Now().Unix(),
		Level:     level,
		Source:    source,
		Message:   message,
		ChatID:    chatID,
	}); err != nil {
		c.log.Error().Err(err).Msg("channel: failed to append event log record")
	}
}
