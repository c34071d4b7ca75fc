package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nicdavidson/homestead/pkg/allowlist"
	"github.com/nicdavidson/homestead/pkg/modeltags"
	"github.com/nicdavidson/homestead/pkg/session"
	"github.com/nicdavidson/homestead/pkg/turnqueue"
)

// editInterval bounds progressive-edit frequency to spec.md §4.4's "no
// more than one edit per ≈1.5s".
const editInterval = 1500 * time.Millisecond

// sendRateLimit keeps outbound Telegram API calls (messages, edits)
// under the bot API's per-chat rate ceiling, independent of the
// editInterval debounce above — the debounce bounds how often we want
// to edit, this bounds how fast the transport actually lets us.
const sendRateLimit = rate.Limit(1) // 1 request/second sustained
const sendBurst = 3

// Telegram is the bot channel driver: it reconnects with backoff on
// poll disconnects, enforces the allow-list on inbound messages,
// drives progressive message edits for streaming replies, and doubles
// as the outbox.Transport the drainer sends through. Grounded on the
// reconnect-loop and progressive-edit pattern in the pack's
// internal/channels/telegram.go reference file, adapted from its
// event-bus push model to this package's turnqueue.Manager pull model.
type Telegram struct {
	bot          *tgbotapi.BotAPI
	allowed      *allowlist.List
	coordinator  *Coordinator
	queue        *turnqueue.Manager
	tags         *modeltags.Registry
	defaultModel string
	log          zerolog.Logger
	sendLimiter  *rate.Limiter

	streamMu sync.Mutex
	streams  map[int64]*streamState // chat_id -> in-flight placeholder
}

type streamState struct {
	messageID int
	text      strings.Builder
	lastEdit  time.Time
}

func NewTelegram(token string, allowed *allowlist.List, coordinator *Coordinator, queue *turnqueue.Manager, tags *modeltags.Registry, defaultModel string, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Telegram{
		bot:          bot,
		allowed:      allowed,
		coordinator:  coordinator,
		queue:        queue,
		tags:         tags,
		defaultModel: defaultModel,
		log:          log,
		sendLimiter:  rate.NewLimiter(sendRateLimit, sendBurst),
		streams:      make(map[int64]*streamState),
	}, nil
}

// Send implements outbox.Transport so this driver can be wired directly
// into the outbox drainer.
func (t *Telegram) Send(ctx context.Context, chatID int64, text, parseMode string) error {
	if err := t.sendLimiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if parseMode != "" {
		msg.ParseMode = parseMode
	}
	_, err := t.bot.Send(msg)
	return err
}

// Run polls for updates until ctx is cancelled, reconnecting with
// exponential backoff on disconnect, per the reference driver's pattern.
func (t *Telegram) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		err := t.pollUpdates(ctx, updates)
		t.bot.StopReceivingUpdates()

		if err == nil {
			return nil
		}
		t.log.Warn().Err(err).Dur("backoff", backoff).Msg("telegram: poll disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (t *Telegram) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	const stallTimeout = 150 * time.Second
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message == nil {
				continue
			}
			if !t.allowed.Allowed(update.Message.From.ID) {
				t.log.Warn().Int64("user_id", update.Message.From.ID).Msg("telegram: access denied")
				continue
			}
			t.handleMessage(ctx, update.Message)
		case <-timer.C:
			return fmt.Errorf("no telegram updates for %v, assuming disconnect", stallTimeout)
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chatID := msg.Chat.ID

	if strings.HasPrefix(text, "/") {
		t.handleCommand(ctx, chatID, msg.From.ID, text)
		return
	}

	sess, err := t.coordinator.BindSession(ctx, chatID, msg.From.ID)
	if err != nil {
		t.reply(chatID, "could not resolve session: "+err.Error())
		return
	}

	turn := turnqueue.Turn{
		ChatID:      chatID,
		SessionName: sess.Name,
		UserText:    text,
		ReceivedAt:  time.Now(),
		OnDelta:     func(chunk string) { t.onDelta(chatID, chunk) },
		OnDone:      func(final, _ string, doneErr error) { t.onDone(chatID, final, doneErr) },
	}
	if result := t.queue.Enqueue(ctx, turn); result == turnqueue.ResultBackpressure {
		t.reply(chatID, "still working on your last message, try again shortly")
	}
}

// onDelta accumulates streamed chunks and progressively edits a single
// Telegram message, rate-limited to editInterval, per spec.md §4.4.
func (t *Telegram) onDelta(chatID int64, chunk string) {
	t.streamMu.Lock()
	state, exists := t.streams[chatID]
	if !exists {
		msg := tgbotapi.NewMessage(chatID, chunk)
		sent, err := t.sendRateLimited(msg)
		if err != nil {
			t.log.Warn().Err(err).Msg("telegram: failed to send stream placeholder")
			t.streamMu.Unlock()
			return
		}
		state = &streamState{messageID: sent.MessageID, lastEdit: time.Now()}
		state.text.WriteString(chunk)
		t.streams[chatID] = state
		t.streamMu.Unlock()
		return
	}
	state.text.WriteString(chunk)
	if time.Since(state.lastEdit) < editInterval {
		t.streamMu.Unlock()
		return
	}
	text := state.text.String()
	messageID := state.messageID
	state.lastEdit = time.Now()
	t.streamMu.Unlock()

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := t.sendRateLimited(edit); err != nil {
		t.log.Warn().Err(err).Msg("telegram: failed to edit stream message")
	}
}

// onDone replaces the streamed placeholder with the authoritative final
// text, or a short failure notice, per spec.md §4.4 and §7.
func (t *Telegram) onDone(chatID int64, final string, err error) {
	t.streamMu.Lock()
	state, exists := t.streams[chatID]
	delete(t.streams, chatID)
	t.streamMu.Unlock()

	if err != nil {
		notice := failureNotice(err)
		if exists {
			edit := tgbotapi.NewEditMessageText(chatID, state.messageID, notice)
			if _, sendErr := t.sendRateLimited(edit); sendErr != nil {
				t.log.Warn().Err(sendErr).Msg("telegram: failed to edit failure notice")
			}
			return
		}
		t.reply(chatID, notice)
		return
	}

	if exists {
		edit := tgbotapi.NewEditMessageText(chatID, state.messageID, final)
		if _, sendErr := t.sendRateLimited(edit); sendErr != nil {
			t.log.Warn().Err(sendErr).Msg("telegram: failed to edit final message")
		}
		return
	}
	t.reply(chatID, final)
}

func (t *Telegram) reply(chatID int64, text string) {
	if _, err := t.sendRateLimited(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.log.Error().Err(err).Msg("telegram: failed to send reply")
	}
}

// sendRateLimited funnels every outbound bot API call through the
// shared rate.Limiter so progressive edits and replies never exceed
// Telegram's per-chat send ceiling.
func (t *Telegram) sendRateLimited(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := t.sendLimiter.Wait(context.Background()); err != nil {
		return tgbotapi.Message{}, err
	}
	return t.bot.Send(c)
}

// handleCommand dispatches the bot commands spec.md §6 names, every one
// of which reduces to an SS operation (§4.5).
func (t *Telegram) handleCommand(ctx context.Context, chatID, userID int64, text string) {
	fields := strings.Fields(text)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/new":
		name := session.DefaultName
		if len(args) > 0 {
			name = args[0]
		}
		model := t.defaultModelTag()
		sess, err := t.coordinator.sessions.Create(ctx, chatID, name, model, userID)
		if err != nil {
			t.reply(chatID, "failed to create session: "+err.Error())
			return
		}
		t.reply(chatID, fmt.Sprintf("created and activated session %q (model %s)", sess.Name, sess.Model))

	case "/session":
		if len(args) == 0 {
			t.listSessions(ctx, chatID)
			return
		}
		if err := t.coordinator.sessions.Activate(ctx, chatID, args[0]); err != nil {
			t.reply(chatID, "failed to switch session: "+err.Error())
			return
		}
		t.reply(chatID, "switched to session "+args[0])

	case "/model":
		if len(args) == 0 {
			t.reply(chatID, "usage: /model <tag>; known tags: "+strings.Join(t.tags.Tags(), ", "))
			return
		}
		if _, err := t.tags.Resolve(args[0]); err != nil {
			t.reply(chatID, err.Error())
			return
		}
		active, err := t.coordinator.sessions.GetActive(ctx, chatID)
		if err != nil || active == nil {
			t.reply(chatID, "no active session")
			return
		}
		if err := t.coordinator.sessions.SetModel(ctx, chatID, active.Name, args[0]); err != nil {
			t.reply(chatID, "failed to set model: "+err.Error())
			return
		}
		t.reply(chatID, "model set to "+args[0])

	case "/reset":
		name := session.DefaultName
		model := t.defaultModelTag()
		active, err := t.coordinator.sessions.GetActive(ctx, chatID)
		if err == nil && active != nil {
			model = active.Model
		}
		sess, err := t.coordinator.sessions.Create(ctx, chatID, fmt.Sprintf("%s-%d", name, time.Now().Unix()), model, userID)
		if err != nil {
			t.reply(chatID, "failed to reset: "+err.Error())
			return
		}
		t.reply(chatID, "session reset; now on "+sess.Name)

	case "/status":
		t.listSessions(ctx, chatID)

	default:
		t.reply(chatID, "unknown command: "+cmd)
	}
}

func (t *Telegram) listSessions(ctx context.Context, chatID int64) {
	sessions, err := t.coordinator.sessions.List(ctx, chatID)
	if err != nil {
		t.reply(chatID, "failed to list sessions: "+err.Error())
		return
	}
	if len(sessions) == 0 {
		t.reply(chatID, "no sessions yet; send a message to start one")
		return
	}
	var b strings.Builder
	for _, s := range sessions {
		marker := " "
		if s.IsActive {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s (model=%s, turns=%d)\n", marker, s.Name, s.Model, s.MessageCount)
	}
	t.reply(chatID, b.String())
}

// defaultModelTag returns the configured default model tag for new
// sessions. It does not derive one from the tag registry's iteration
// order, which Go does not guarantee is stable across runs.
func (t *Telegram) defaultModelTag() string {
	return t.defaultModel
}

func failureNotice(err error) string {
	return "sorry, something went wrong: " + err.Error()
}
