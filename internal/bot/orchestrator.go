// Package bot routes inbound conversation events to intent handlers,
// the escalation dialog, and the welcome flow.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/helpibot/helpi/internal/dialog"
	"github.com/helpibot/helpi/internal/domain"
	"github.com/helpibot/helpi/internal/intent"
	"github.com/helpibot/helpi/internal/messages"
	"github.com/helpibot/helpi/internal/store"
)

// EventType identifies the kind of inbound conversation event.
type EventType int

const (
	// EventMessage is a text turn from the user.
	EventMessage EventType = iota
	// EventCardSubmit is the submit action of a ticket card.
	EventCardSubmit
	// EventMembersAdded signals that the user joined the conversation.
	EventMembersAdded
)

// Event is one inbound conversation event.
type Event struct {
	Type       EventType
	Text       string
	Submission *domain.CardSubmission
}

// Conversation identifies the party an event belongs to.
type Conversation struct {
	ID       string
	UserID   string
	Username string
}

// Handler processes a named-intent utterance.
type Handler func(ctx context.Context, sender dialog.Sender, st *domain.ConversationState, utterance string) error

// Config holds orchestrator configuration.
type Config struct {
	// IntentThreshold is the minimum classifier confidence required to
	// route to a named-intent handler instead of the knowledge base.
	IntentThreshold float64
}

// Orchestrator serializes and routes the events of each conversation.
// Turns within one conversation are processed strictly in arrival
// order; different conversations proceed concurrently.
type Orchestrator struct {
	engine     *dialog.Engine
	classifier intent.Classifier
	repo       store.Repository
	catalog    *messages.Catalog
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an orchestrator. classifier may be nil, in which case
// every utterance takes the knowledge-base path. The Help, Cancel and
// Ticket intents come pre-registered.
func New(engine *dialog.Engine, classifier intent.Classifier, repo store.Repository, catalog *messages.Catalog, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IntentThreshold <= 0 {
		cfg.IntentThreshold = 0.7
	}
	o := &Orchestrator{
		engine:     engine,
		classifier: classifier,
		repo:       repo,
		catalog:    catalog,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		handlers:   make(map[string]Handler),
		locks:      make(map[string]*sync.Mutex),
	}

	o.Register("Help", func(ctx context.Context, sender dialog.Sender, st *domain.ConversationState, _ string) error {
		return sender.SendText(ctx, st.ConversationID, catalog.Help)
	})
	o.Register("Cancel", func(ctx context.Context, sender dialog.Sender, st *domain.ConversationState, _ string) error {
		st.ResetDialog()
		return sender.SendText(ctx, st.ConversationID, catalog.Cancel)
	})
	o.Register("Ticket", func(ctx context.Context, sender dialog.Sender, st *domain.ConversationState, utterance string) error {
		return engine.OfferTicket(ctx, sender, st, utterance)
	})

	return o
}

// Register adds (or replaces) a named-intent handler.
func (o *Orchestrator) Register(intentName string, h Handler) {
	o.handlersMu.Lock()
	defer o.handlersMu.Unlock()
	o.handlers[intentName] = h
}

func (o *Orchestrator) handlerFor(intentName string) (Handler, bool) {
	o.handlersMu.RLock()
	defer o.handlersMu.RUnlock()
	h, ok := o.handlers[intentName]
	return h, ok
}

// lockConversation acquires the per-conversation mutex, creating it on
// first use, and returns the unlock func.
func (o *Orchestrator) lockConversation(conversationID string) func() {
	o.locksMu.Lock()
	mu, ok := o.locks[conversationID]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[conversationID] = mu
	}
	o.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// OnEvent processes one inbound event for a conversation. The call does
// not return until the turn has fully completed, including any pacing
// delay inside the dialog engine, so callers get strict per-conversation
// ordering by invoking OnEvent sequentially per conversation.
func (o *Orchestrator) OnEvent(ctx context.Context, conv Conversation, sender dialog.Sender, ev Event) error {
	unlock := o.lockConversation(conv.ID)
	defer unlock()

	st, err := o.loadState(ctx, conv)
	if err != nil {
		o.logger.Error("failed to load conversation state",
			"conversation_id", conv.ID, "error", err)
		return sender.SendText(ctx, conv.ID, o.catalog.Error)
	}

	switch ev.Type {
	case EventMembersAdded:
		err = o.welcome(ctx, sender, st)
	case EventCardSubmit:
		if ev.Submission == nil {
			return fmt.Errorf("card submit event without submission")
		}
		// Card submits route to the ticket path regardless of dialog state.
		err = o.engine.HandleCardSubmit(ctx, sender, st, *ev.Submission)
	case EventMessage:
		err = o.onMessage(ctx, sender, st, ev.Text)
	default:
		return fmt.Errorf("unknown event type %d", ev.Type)
	}
	if err != nil {
		return err
	}

	if persistErr := o.repo.UpsertConversation(ctx, st); persistErr != nil {
		o.logger.Error("failed to persist conversation state",
			"conversation_id", conv.ID, "error", persistErr)
	}
	return nil
}

func (o *Orchestrator) loadState(ctx context.Context, conv Conversation) (*domain.ConversationState, error) {
	st, err := o.repo.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = domain.NewConversationState(conv.ID, conv.UserID)
	}
	if conv.Username != "" {
		st.Username = conv.Username
	}
	return st, nil
}

// welcome sends the one-time greeting when the user joins.
func (o *Orchestrator) welcome(ctx context.Context, sender dialog.Sender, st *domain.ConversationState) error {
	if st.Welcomed {
		return nil
	}
	st.Welcomed = true
	text := o.catalog.Greeting(o.now()) + "\n" + o.catalog.Welcome.Intro
	return sender.SendText(ctx, st.ConversationID, text)
}

// onMessage routes a text turn: an in-progress dialog always consumes
// the reply; otherwise a confidently classified named intent wins, and
// everything else goes to the knowledge base.
func (o *Orchestrator) onMessage(ctx context.Context, sender dialog.Sender, st *domain.ConversationState, text string) error {
	if st.State != domain.StateIdle {
		return o.engine.HandleUtterance(ctx, sender, st, text)
	}

	if o.classifier != nil {
		res, err := o.classifier.Classify(ctx, text)
		if err != nil {
			// The classifier is an optimization, not a gate: fall back
			// to the knowledge base.
			o.logger.Warn("intent classification failed", "conversation_id", st.ConversationID, "error", err)
		} else if res.Confidence >= o.cfg.IntentThreshold {
			if h, ok := o.handlerFor(res.Intent); ok {
				o.logger.Info("intent matched",
					"conversation_id", st.ConversationID, "intent", res.Intent, "confidence", res.Confidence)
				return h(ctx, sender, st, text)
			}
		}
	}

	return o.engine.StartQuery(ctx, sender, st, text)
}
