package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/helpibot/helpi/internal/bot"
	"github.com/helpibot/helpi/internal/domain"
	"github.com/helpibot/helpi/internal/identity"
)

const maxActivityBytes = 64 << 10

// activity is the connector wire format for one inbound conversation turn.
// It mirrors the common chat-connector shape: a type discriminator, plain
// text, and an optional structured value carrying a card submission.
type activity struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	Value *domain.CardSubmission `json:"value,omitempty"`

	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	From struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
	MembersAdded []struct {
		ID string `json:"id"`
	} `json:"membersAdded,omitempty"`
}

// reply is one outbound message returned to the connector caller.
type reply struct {
	Type string             `json:"type"`
	Text string             `json:"text,omitempty"`
	Card *domain.SubmitCard `json:"card,omitempty"`
}

// bufferSender collects bot replies for a single synchronous request.
type bufferSender struct {
	mu      sync.Mutex
	replies []reply
}

func (s *bufferSender) SendText(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{Type: "text", Text: text})
	return nil
}

func (s *bufferSender) SendCard(_ context.Context, _ string, card domain.SubmitCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{Type: "card", Card: &card})
	return nil
}

// ConnectorHandler exposes the bot as a synchronous REST endpoint for
// channels that cannot hold a WebSocket open. Replies produced while the
// turn is processed are returned in the response body.
type ConnectorHandler struct {
	orch *bot.Orchestrator
}

// NewConnectorHandler creates a new connector handler.
func NewConnectorHandler(orch *bot.Orchestrator) *ConnectorHandler {
	return &ConnectorHandler{orch: orch}
}

// RegisterRoutes registers connector routes.
func (h *ConnectorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.Messages)
	})
}

// Messages processes one activity and returns the bot's replies.
func (h *ConnectorHandler) Messages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxActivityBytes)

	var act activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		Error(w, http.StatusBadRequest, "invalid activity payload")
		return
	}

	conv := bot.Conversation{
		ID:       act.Conversation.ID,
		UserID:   act.From.ID,
		Username: act.From.Name,
	}
	if conv.ID == "" {
		conv.ID = identity.ConversationIDFromContext(r.Context())
	}
	if conv.UserID == "" {
		conv.UserID = identity.UserIDFromContext(r.Context())
	}
	if conv.Username == "" {
		conv.Username = identity.UsernameFromContext(r.Context())
	}
	if conv.ID == "" {
		Error(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	ev, ok := eventFromActivity(act)
	if !ok {
		// Unknown activity types are acknowledged without replies so
		// connector retries do not pile up.
		JSON(w, http.StatusOK, map[string]interface{}{"replies": []reply{}})
		return
	}

	sender := &bufferSender{}
	if err := h.orch.OnEvent(r.Context(), conv, sender, ev); err != nil {
		slog.Error("Failed to process activity", "error", err, "conversation_id", conv.ID)
		Error(w, http.StatusInternalServerError, "failed to process activity")
		return
	}

	sender.mu.Lock()
	replies := sender.replies
	if replies == nil {
		replies = []reply{}
	}
	sender.mu.Unlock()

	JSON(w, http.StatusOK, map[string]interface{}{"replies": replies})
}

func eventFromActivity(act activity) (bot.Event, bool) {
	switch act.Type {
	case "conversationUpdate":
		if len(act.MembersAdded) == 0 {
			return bot.Event{}, false
		}
		return bot.Event{Type: bot.EventMembersAdded}, true
	case "message":
		if act.Value != nil {
			return bot.Event{Type: bot.EventCardSubmit, Submission: act.Value}, true
		}
		return bot.Event{Type: bot.EventMessage, Text: act.Text}, true
	default:
		return bot.Event{}, false
	}
}
