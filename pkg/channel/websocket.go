package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/nicdavidson/homestead/pkg/allowlist"
	"github.com/nicdavidson/homestead/pkg/turnqueue"
)

// frameKind is the `type` discriminator of the WebSocket streaming
// protocol in spec.md §6.
type frameKind string

const (
	frameDelta  frameKind = "delta"
	frameResult frameKind = "result"
	frameError  frameKind = "error"
)

// clientFrame is the single inbound shape: {session_name, chat_id, message}.
type clientFrame struct {
	SessionName string `json:"session_name"`
	ChatID      int64  `json:"chat_id"`
	Message     string `json:"message"`
}

// serverFrame is the outbound streaming frame: a sequence of deltas
// followed by exactly one result or error.
type serverFrame struct {
	Type          frameKind `json:"type"`
	Text          string    `json:"text,omitempty"`
	SessionHandle string    `json:"session_handle,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// WebSocket is the web channel driver: it forwards every delta verbatim
// over a bidirectional text stream, per spec.md §4.4, rather than the
// Telegram driver's progressive-edit coalescing.
type WebSocket struct {
	allowed *allowlist.List
	queue   *turnqueue.Manager
	log     zerolog.Logger
}

func NewWebSocket(allowed *allowlist.List, queue *turnqueue.Manager, log zerolog.Logger) *WebSocket {
	return &WebSocket{allowed: allowed, queue: queue, log: log}
}

// Handler returns the net/http handler that upgrades and serves one
// connection at a time, per the pack's github.com/coder/websocket usage
// (grounded on codeready-toolchain-tarsy/pkg/api/handler_ws.go and
// pkg/events/manager.go's Read/Write/Close shape).
func (w *WebSocket) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(rw, r, nil)
		if err != nil {
			w.log.Warn().Err(err).Msg("websocket: accept failed")
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		w.serve(r.Context(), conn)
	}
}

func (w *WebSocket) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			w.writeFrame(ctx, conn, serverFrame{Type: frameError, Message: "malformed request"})
			continue
		}
		if !w.allowed.Allowed(frame.ChatID) {
			w.writeFrame(ctx, conn, serverFrame{Type: frameError, Message: "chat is not allow-listed"})
			continue
		}
		w.handleFrame(ctx, conn, frame)
	}
}

func (w *WebSocket) handleFrame(ctx context.Context, conn *websocket.Conn, frame clientFrame) {
	done := make(chan struct{})
	turn := turnqueue.Turn{
		ChatID:      frame.ChatID,
		SessionName: frame.SessionName,
		UserText:    frame.Message,
		ReceivedAt:  time.Now(),
		OnDelta: func(chunk string) {
			w.writeFrame(ctx, conn, serverFrame{Type: frameDelta, Text: chunk})
		},
		OnDone: func(final, sessionHandle string, err error) {
			defer close(done)
			if err != nil {
				w.writeFrame(ctx, conn, serverFrame{Type: frameError, Message: err.Error()})
				return
			}
			w.writeFrame(ctx, conn, serverFrame{Type: frameResult, Text: final, SessionHandle: sessionHandle})
		},
	}
	if result := w.queue.Enqueue(ctx, turn); result == turnqueue.ResultBackpressure {
		w.writeFrame(ctx, conn, serverFrame{Type: frameError, Message: "backpressure: this chat's turn queue is full"})
		return
	}
	<-done
}

func (w *WebSocket) writeFrame(ctx context.Context, conn *websocket.Conn, frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		w.log.Error().Err(err).Msg("websocket: failed to marshal frame")
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		w.log.Warn().Err(err).Msg("websocket: failed to write frame")
	}
}
