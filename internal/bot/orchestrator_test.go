package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helpibot/helpi/internal/dialog"
	"github.com/helpibot/helpi/internal/domain"
	"github.com/helpibot/helpi/internal/intent"
	"github.com/helpibot/helpi/internal/mail"
	"github.com/helpibot/helpi/internal/messages"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	cards []domain.SubmitCard
}

func (s *fakeSender) SendText(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSender) SendCard(_ context.Context, _ string, card domain.SubmitCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, card)
	return nil
}

type fakeKB struct {
	mu      sync.Mutex
	queries []string
	answers []domain.ScoredAnswer
}

func (f *fakeKB) Query(_ context.Context, q string) ([]domain.ScoredAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.answers, nil
}

type fakeMailer struct{ sent int }

func (f *fakeMailer) Send(_ context.Context, _ mail.Message) error {
	f.sent++
	return nil
}

type fakeLedger struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (f *fakeLedger) Contains(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id], nil
}

func (f *fakeLedger) Add(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[id] = true
	return nil
}

func (f *fakeLedger) Close() error { return nil }

type memRepo struct {
	mu     sync.Mutex
	states map[string]domain.ConversationState
}

func newMemRepo() *memRepo {
	return &memRepo{states: make(map[string]domain.ConversationState)}
}

func (r *memRepo) GetConversation(_ context.Context, id string) (*domain.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return nil, nil
	}
	copied := st
	return &copied, nil
}

func (r *memRepo) UpsertConversation(_ context.Context, st *domain.ConversationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[st.ConversationID] = *st
	return nil
}

func (r *memRepo) DeleteConversation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
	return nil
}

func (r *memRepo) CleanupStaleConversations(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (r *memRepo) Ping(_ context.Context) error { return nil }
func (r *memRepo) Close() error                 { return nil }

type fakeClassifier struct {
	result intent.Result
	err    error
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (intent.Result, error) {
	return f.result, f.err
}

type botHarness struct {
	orch       *Orchestrator
	sender     *fakeSender
	kb         *fakeKB
	repo       *memRepo
	classifier *fakeClassifier
	catalog    *messages.Catalog
	conv       Conversation
}

func newBotHarness(t *testing.T) *botHarness {
	t.Helper()
	catalog, err := messages.Load("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	h := &botHarness{
		sender:     &fakeSender{},
		kb:         &fakeKB{answers: []domain.ScoredAnswer{{Text: "restart it", Score: 0.8}}},
		repo:       newMemRepo(),
		classifier: &fakeClassifier{},
		catalog:    catalog,
		conv:       Conversation{ID: "conv-1", UserID: "user-1", Username: "mira"},
	}

	cfg := dialog.DefaultConfig()
	cfg.AnswerDelay = 0
	cfg.MailTo = "support@example.com"
	engine := dialog.NewEngine(h.kb, &fakeMailer{}, &fakeLedger{ids: make(map[string]bool)}, catalog, cfg, nil)

	h.orch = New(engine, h.classifier, h.repo, catalog, Config{IntentThreshold: 0.7}, nil)
	return h
}

func (h *botHarness) event(t *testing.T, ev Event) {
	t.Helper()
	if err := h.orch.OnEvent(context.Background(), h.conv, h.sender, ev); err != nil {
		t.Fatalf("OnEvent failed: %v", err)
	}
}

func TestWelcomeSentOnce(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.orch.now = func() time.Time {
		return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	}

	h.event(t, Event{Type: EventMembersAdded})
	if len(h.sender.texts) != 1 {
		t.Fatalf("expected 1 welcome message, got %v", h.sender.texts)
	}
	if !strings.HasPrefix(h.sender.texts[0], h.catalog.Welcome.Morning) {
		t.Errorf("expected morning greeting, got %q", h.sender.texts[0])
	}

	// The flag is persisted; a rejoin stays silent.
	h.event(t, Event{Type: EventMembersAdded})
	if len(h.sender.texts) != 1 {
		t.Errorf("welcome must be one-time, got %v", h.sender.texts)
	}
}

func TestNamedIntentRoutesToHandler(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.classifier.result = intent.Result{Intent: "Help", Confidence: 0.95}

	h.event(t, Event{Type: EventMessage, Text: "was kannst du?"})

	if len(h.sender.texts) != 1 || h.sender.texts[0] != h.catalog.Help {
		t.Errorf("expected help text, got %v", h.sender.texts)
	}
	if len(h.kb.queries) != 0 {
		t.Errorf("knowledge base should not be queried for a named intent, got %v", h.kb.queries)
	}
}

func TestLowConfidenceFallsThroughToKnowledgeBase(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.classifier.result = intent.Result{Intent: "Help", Confidence: 0.3}

	h.event(t, Event{Type: EventMessage, Text: "drucker kaputt"})

	if len(h.kb.queries) != 1 || h.kb.queries[0] != "drucker kaputt" {
		t.Errorf("expected knowledge-base query, got %v", h.kb.queries)
	}
}

func TestClassifierErrorFallsThroughToKnowledgeBase(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.classifier.err = errors.New("luis unreachable")

	h.event(t, Event{Type: EventMessage, Text: "drucker kaputt"})

	if len(h.kb.queries) != 1 {
		t.Errorf("expected knowledge-base fallback, got %v", h.kb.queries)
	}
}

func TestWaitingDialogConsumesReplyBeforeIntents(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	// Even a confident intent match must not steal a dialog reply.
	h.classifier.result = intent.Result{Intent: "Help", Confidence: 0.99}

	h.event(t, Event{Type: EventMessage, Text: "drucker kaputt"})
	if len(h.kb.queries) != 1 {
		t.Fatalf("expected initial query, got %v", h.kb.queries)
	}

	// The dialog now waits on the helpful prompt; "ja" is its answer.
	h.event(t, Event{Type: EventMessage, Text: "ja"})
	last := h.sender.texts[len(h.sender.texts)-1]
	if last != h.catalog.Helpful.Thanks {
		t.Errorf("expected thanks from the dialog, got %q", last)
	}
}

func TestTicketIntentOffersTicketDirectly(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.classifier.result = intent.Result{Intent: "Ticket", Confidence: 0.9}

	h.event(t, Event{Type: EventMessage, Text: "ich will ein ticket"})

	if len(h.sender.texts) != 1 || h.sender.texts[0] != h.catalog.Ticket.PromptVoluntary {
		t.Errorf("expected voluntary ticket prompt, got %v", h.sender.texts)
	}
}

func TestCardSubmitRoutesRegardlessOfState(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.event(t, Event{Type: EventMessage, Text: "drucker kaputt"})

	// Dialog is mid-flow; a card submit still goes to the ticket path.
	h.event(t, Event{
		Type:       EventCardSubmit,
		Submission: &domain.CardSubmission{ID: "card-1", Name: "Mira", Office: "12", Message: "hilfe"},
	})

	last := h.sender.texts[len(h.sender.texts)-1]
	if last != h.catalog.Ticket.ThankYou {
		t.Errorf("expected thank-you after submit, got %q", last)
	}
}

func TestRetryCounterPersistsAcrossEvents(t *testing.T) {
	t.Parallel()

	h := newBotHarness(t)
	h.kb.answers = []domain.ScoredAnswer{{Text: "x", Score: 0.1}}

	h.event(t, Event{Type: EventMessage, Text: "unbekannt"})

	st, err := h.repo.GetConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if st == nil {
		t.Fatal("conversation state should be persisted")
	}
	if st.Retries != 1 {
		t.Errorf("persisted retries = %d, want 1", st.Retries)
	}
	if st.State != domain.StateRetry {
		t.Errorf("persisted state = %v, want retry", st.State)
	}
}
