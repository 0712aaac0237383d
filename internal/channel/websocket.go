package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/helpibot/helpi/internal/bot"
	"github.com/helpibot/helpi/internal/domain"
	"github.com/helpibot/helpi/internal/identity"
)

// inboundFrame is the wire shape of user-to-bot messages.
type inboundFrame struct {
	Type       string                 `json:"type"`
	Text       string                 `json:"text,omitempty"`
	Submission *domain.CardSubmission `json:"submission,omitempty"`
}

// WebSocketHandler upgrades chat connections and feeds their frames to the
// orchestrator. Frames of one connection are dispatched sequentially from the
// read loop, which keeps turns of a conversation in arrival order.
type WebSocketHandler struct {
	orch          *bot.Orchestrator
	sm            *SessionManager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(orch *bot.Orchestrator, sm *SessionManager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		orch:          orch,
		sm:            sm,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conv := bot.Conversation{
		ID:       identity.ConversationIDFromContext(r.Context()),
		UserID:   identity.UserIDFromContext(r.Context()),
		Username: identity.UsernameFromContext(r.Context()),
	}
	slog.Info("Chat connection request", "conversation_id", conv.ID, "user_id", conv.UserID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "conversation_id", conv.ID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "conversation_id", conv.ID)
		}
	}()

	h.sm.Register(conv.ID, ws)
	defer h.sm.Unregister(conv.ID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sender := newConnSender(ws)

	if err := h.orch.OnEvent(ctx, conv, sender, bot.Event{Type: bot.EventMembersAdded}); err != nil {
		slog.Warn("Failed to greet conversation", "error", err, "conversation_id", conv.ID)
	}

	h.readLoop(ctx, ws, sender, conv)
	slog.Info("Chat session ended", "conversation_id", conv.ID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sender *connSender, conv bot.Conversation) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "conversation_id", conv.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "conversation_id", conv.ID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Debug("Discarding malformed frame", "error", err, "conversation_id", conv.ID)
			continue
		}

		switch frame.Type {
		case "message":
			if err := h.orch.OnEvent(ctx, conv, sender, bot.Event{Type: bot.EventMessage, Text: frame.Text}); err != nil {
				slog.Error("Failed to process message", "error", err, "conversation_id", conv.ID)
			}
		case "card_submit":
			if frame.Submission == nil {
				slog.Debug("Discarding card submit without payload", "conversation_id", conv.ID)
				continue
			}
			if err := h.orch.OnEvent(ctx, conv, sender, bot.Event{Type: bot.EventCardSubmit, Submission: frame.Submission}); err != nil {
				slog.Error("Failed to process card submit", "error", err, "conversation_id", conv.ID)
			}
		case "ping":
			if err := sender.writeFrame(ctx, outboundFrame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err, "conversation_id", conv.ID)
			}
		default:
			slog.Debug("Ignoring unknown frame type", "type", frame.Type, "conversation_id", conv.ID)
		}
	}
}
