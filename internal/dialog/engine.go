// Package dialog implements the multi-turn escalation dialog: knowledge
// base lookup, disambiguation, helpful/retry prompting, and the
// deduplicated ticket submission flow.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helpibot/helpi/internal/domain"
	"github.com/helpibot/helpi/internal/kb"
	"github.com/helpibot/helpi/internal/ledger"
	"github.com/helpibot/helpi/internal/mail"
	"github.com/helpibot/helpi/internal/messages"
)

// Sender delivers outbound messages to a conversation.
type Sender interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendCard(ctx context.Context, conversationID string, card domain.SubmitCard) error
}

// Config holds dialog engine configuration.
type Config struct {
	// MaxRetries bounds the reformulate loop; reaching it forces the
	// ticket offer without further prompting.
	MaxRetries int
	// MaxInvalidAnswers bounds ambiguous re-prompt loops in the
	// Helpful and CreateTicket states.
	MaxInvalidAnswers int
	// AnswerDelay is the pacing pause between stating an answer and
	// asking whether it helped.
	AnswerDelay time.Duration
	// MailFrom and MailTo address the escalation mail.
	MailFrom string
	MailTo   string
}

// DefaultConfig returns default dialog configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		MaxInvalidAnswers: 3,
		AnswerDelay:       time.Second,
	}
}

// Engine drives the escalation dialog state machine. It mutates the
// passed ConversationState; callers persist it after each turn and must
// not process two turns of one conversation concurrently.
type Engine struct {
	kb      kb.Client
	bands   kb.Thresholds
	mailer  mail.Mailer
	ledger  ledger.Ledger
	catalog *messages.Catalog
	yesno   *YesNoInterpreter
	cfg     Config
	logger  *slog.Logger

	// Guards the ledger check-then-send-then-add critical section so
	// two near-simultaneous resubmissions of one card cannot both pass
	// the duplicate check.
	submitMu sync.Mutex
}

// NewEngine creates a dialog engine.
func NewEngine(kbClient kb.Client, mailer mail.Mailer, led ledger.Ledger, catalog *messages.Catalog, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxInvalidAnswers <= 0 {
		cfg.MaxInvalidAnswers = 3
	}
	return &Engine{
		kb:      kbClient,
		bands:   kb.DefaultThresholds(),
		mailer:  mailer,
		ledger:  led,
		catalog: catalog,
		yesno:   NewYesNoInterpreter(catalog.YesNo.YesMarkers, catalog.YesNo.NoMarkers),
		cfg:     cfg,
		logger:  logger,
	}
}

// HandleUtterance processes one text turn for a conversation, routing
// it to whichever prompt the dialog is waiting on, or starting a fresh
// knowledge-base query when no dialog is in progress.
func (e *Engine) HandleUtterance(ctx context.Context, sender Sender, st *domain.ConversationState, text string) error {
	switch st.State {
	case domain.StateHelpful:
		return e.handleHelpfulReply(ctx, sender, st, text)
	case domain.StateRetry:
		return e.handleRetryReply(ctx, sender, st, text)
	case domain.StateCreateTicket:
		return e.handleCreateTicketReply(ctx, sender, st, text)
	default:
		return e.StartQuery(ctx, sender, st, text)
	}
}

// StartQuery runs a top-level knowledge-base query for an utterance.
// Entering here resets the retry counter.
func (e *Engine) StartQuery(ctx context.Context, sender Sender, st *domain.ConversationState, question string) error {
	st.ResetForQuery(question)

	answers, err := e.kb.Query(ctx, question)
	if err != nil {
		// Technical failure, not "nothing found": tell the user and
		// terminate the dialog instead of looping.
		e.logger.Warn("knowledge base query failed",
			"conversation_id", st.ConversationID, "error", err)
		return sender.SendText(ctx, st.ConversationID, e.catalog.Error)
	}

	decision := kb.Band(answers, e.bands)
	switch decision.Kind {
	case kb.DecisionDirect:
		if err := sender.SendText(ctx, st.ConversationID, e.renderAnswer(decision.Candidates[0])); err != nil {
			return err
		}
		return e.promptHelpful(ctx, sender, st)

	case kb.DecisionDisambiguate:
		if err := sender.SendText(ctx, st.ConversationID, e.renderCandidates(decision.Candidates)); err != nil {
			return err
		}
		return e.promptHelpful(ctx, sender, st)

	default: // NoMatch
		return e.enterRetry(ctx, sender, st, true)
	}
}

// OfferTicket starts the voluntary ticket dialog directly, used when
// the user explicitly asks for a ticket.
func (e *Engine) OfferTicket(ctx context.Context, sender Sender, st *domain.ConversationState, question string) error {
	st.ResetForQuery(question)
	return e.enterCreateTicket(ctx, sender, st, false)
}

func (e *Engine) renderAnswer(a domain.ScoredAnswer) string {
	return fmt.Sprintf("%s\n\n%s (%d%%)", e.catalog.QnA.Result, a.Text, a.Percent())
}

func (e *Engine) renderCandidates(candidates []domain.ScoredAnswer) string {
	if len(candidates) == 1 {
		return e.renderAnswer(candidates[0])
	}
	var b strings.Builder
	b.WriteString(e.catalog.QnA.NotSure)
	b.WriteString("\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n\n%d. %s\n- %s (%d%%)", i+1, e.catalog.QnA.Solution, c.Text, c.Percent())
	}
	return b.String()
}

// promptHelpful pauses briefly (UX pacing, not correctness), then asks
// whether the answer helped. The pause blocks only this conversation
// and is abandoned without a state change if the context ends first.
func (e *Engine) promptHelpful(ctx context.Context, sender Sender, st *domain.ConversationState) error {
	if e.cfg.AnswerDelay > 0 {
		timer := time.NewTimer(e.cfg.AnswerDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil
		}
	}
	st.State = domain.StateHelpful
	st.InvalidAnswers = 0
	return sender.SendText(ctx, st.ConversationID, e.catalog.Helpful.Prompt)
}

func (e *Engine) handleHelpfulReply(ctx context.Context, sender Sender, st *domain.ConversationState, text string) error {
	switch e.yesno.Interpret(text) {
	case AnswerYes:
		st.ResetDialog()
		return sender.SendText(ctx, st.ConversationID, e.catalog.Helpful.Thanks)
	case AnswerNo:
		return e.enterRetry(ctx, sender, st, false)
	default:
		return e.repromptInvalid(ctx, sender, st, e.catalog.Helpful.Prompt)
	}
}

// enterRetry is the Retry state's entry action: at the retry cap it
// forces the ticket offer without prompting; otherwise it increments
// the counter and asks the user to reformulate.
func (e *Engine) enterRetry(ctx context.Context, sender Sender, st *domain.ConversationState, noAnswer bool) error {
	if st.Retries >= e.cfg.MaxRetries {
		return e.enterCreateTicket(ctx, sender, st, true)
	}
	st.Retries++
	st.State = domain.StateRetry
	st.InvalidAnswers = 0

	prompt := e.catalog.Retry.Prompt
	if noAnswer {
		prompt = e.catalog.QnA.NothingFound + "\n" + prompt
	}
	return sender.SendText(ctx, st.ConversationID, prompt)
}

func (e *Engine) handleRetryReply(ctx context.Context, sender Sender, st *domain.ConversationState, text string) error {
	switch e.yesno.Interpret(text) {
	case AnswerYes:
		// The user will re-ask; the retry counter survives until the
		// next top-level query resets it.
		st.ResetDialog()
		return sender.SendText(ctx, st.ConversationID, e.catalog.Retry.Again)
	case AnswerNo:
		return e.enterCreateTicket(ctx, sender, st, false)
	default:
		if err := sender.SendText(ctx, st.ConversationID, e.catalog.Invalid); err != nil {
			return err
		}
		// Re-entering Retry runs its entry action again, so repeated
		// ambiguous replies still march toward the forced ticket offer.
		return e.enterRetry(ctx, sender, st, false)
	}
}

func (e *Engine) enterCreateTicket(ctx context.Context, sender Sender, st *domain.ConversationState, forced bool) error {
	st.State = domain.StateCreateTicket
	st.TicketForced = forced
	st.InvalidAnswers = 0

	prompt := e.catalog.Ticket.PromptVoluntary
	if forced {
		prompt = e.catalog.Ticket.PromptForced
	}
	return sender.SendText(ctx, st.ConversationID, prompt)
}

func (e *Engine) handleCreateTicketReply(ctx context.Context, sender Sender, st *domain.ConversationState, text string) error {
	switch e.yesno.Interpret(text) {
	case AnswerYes:
		card := e.newSubmitCard(st.LastQuestion)
		st.ResetDialog()
		return sender.SendCard(ctx, st.ConversationID, card)
	case AnswerNo:
		st.ResetDialog()
		return sender.SendText(ctx, st.ConversationID, e.catalog.Ticket.Decline)
	default:
		prompt := e.catalog.Ticket.PromptVoluntary
		if st.TicketForced {
			prompt = e.catalog.Ticket.PromptForced
		}
		return e.repromptInvalid(ctx, sender, st, prompt)
	}
}

// repromptInvalid re-asks the current prompt after an ambiguous reply,
// giving up and ending the dialog once the cap is reached.
func (e *Engine) repromptInvalid(ctx context.Context, sender Sender, st *domain.ConversationState, prompt string) error {
	st.InvalidAnswers++
	if st.InvalidAnswers >= e.cfg.MaxInvalidAnswers {
		st.ResetDialog()
		return sender.SendText(ctx, st.ConversationID, e.catalog.InvalidGiveUp)
	}
	if err := sender.SendText(ctx, st.ConversationID, e.catalog.Invalid); err != nil {
		return err
	}
	return sender.SendText(ctx, st.ConversationID, prompt)
}

// newSubmitCard builds a fresh card value per send. The id is generated
// new for every card instance and never reused.
func (e *Engine) newSubmitCard(question string) domain.SubmitCard {
	return domain.SubmitCard{
		ID:           uuid.NewString(),
		Title:        e.catalog.Ticket.Card.Title,
		Text:         e.catalog.Ticket.Card.Text,
		FallbackText: fmt.Sprintf(e.catalog.Ticket.Card.Fallback, e.cfg.MailTo),
		Question:     question,
	}
}

// HandleCardSubmit processes a submitted ticket card: exactly one mail
// is attempted per ticket id, ever. The ledger check, the delivery, and
// the ledger append form one critical section.
func (e *Engine) HandleCardSubmit(ctx context.Context, sender Sender, st *domain.ConversationState, sub domain.CardSubmission) error {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	dup, err := e.ledger.Contains(ctx, sub.ID)
	if err != nil {
		// Default-safe: an unreadable ledger means we cannot rule out a
		// duplicate, so decline to send rather than risk one.
		e.logger.Error("ledger read failed, declining to send ticket",
			"conversation_id", st.ConversationID, "ticket_id", sub.ID, "error", err)
		return sender.SendText(ctx, st.ConversationID, e.catalog.Ticket.StorageError)
	}
	if dup {
		return sender.SendText(ctx, st.ConversationID, e.catalog.Ticket.AlreadySent)
	}

	ticket := sub.Ticket(st.LastQuestion)
	msg := mail.Message{
		From:    e.cfg.MailFrom,
		To:      e.cfg.MailTo,
		Subject: e.catalog.Ticket.Mail.Subject,
		Body: fmt.Sprintf(e.catalog.Ticket.Mail.Body,
			ticket.RequesterName, ticket.Office, ticket.MessageBody, ticket.OriginalQuestion),
	}

	if err := e.mailer.Send(ctx, msg); err != nil {
		// Not ledgered: a failed delivery must stay resubmittable.
		e.logger.Warn("ticket mail delivery failed",
			"conversation_id", st.ConversationID, "ticket_id", sub.ID, "error", err)
		return sender.SendText(ctx, st.ConversationID,
			fmt.Sprintf(e.catalog.Ticket.MailError, e.cfg.MailTo))
	}

	if err := e.ledger.Add(ctx, sub.ID); err != nil {
		// The mail is already out; losing the ledger write permits a
		// future duplicate, so make it loud.
		e.logger.Error("ticket delivered but ledger append failed, duplicate possible",
			"conversation_id", st.ConversationID, "ticket_id", sub.ID, "error", err)
	}

	e.logger.Info("ticket escalated",
		"conversation_id", st.ConversationID, "ticket_id", sub.ID, "recipient", e.cfg.MailTo)
	return sender.SendText(ctx, st.ConversationID, e.catalog.Ticket.ThankYou)
}
