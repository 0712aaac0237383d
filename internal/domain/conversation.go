package domain

import (
	"time"
)

// DialogState identifies which prompt the escalation dialog is waiting on
// for a conversation. StateIdle means no dialog is in progress and the
// next utterance starts a fresh knowledge-base query.
type DialogState int

const (
	// StateIdle means no dialog is in progress; the next utterance is a top-level query.
	StateIdle DialogState = iota
	// StateHelpful waits for the answer to "was this helpful?".
	StateHelpful
	// StateRetry waits for the answer to "want to reformulate?".
	StateRetry
	// StateCreateTicket waits for the answer to "create a support ticket?".
	StateCreateTicket
)

// String returns the state name for logging.
func (s DialogState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHelpful:
		return "helpful"
	case StateRetry:
		return "retry"
	case StateCreateTicket:
		return "create_ticket"
	default:
		return "unknown"
	}
}

// ConversationState is the persisted per-conversation record. It carries
// the escalation dialog position, the bounded retry counter, and the
// one-time welcome flag.
type ConversationState struct {
	ConversationID string
	UserID         string
	Username       string
	State          DialogState
	LastQuestion   string
	Retries        int
	InvalidAnswers int
	TicketForced   bool
	Welcomed       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewConversationState returns a fresh record for a conversation that
// has just been seen for the first time.
func NewConversationState(conversationID, userID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		ConversationID: conversationID,
		UserID:         userID,
		State:          StateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ResetDialog clears the dialog position without touching the welcome
// flag. The retry counter is reset only when a new top-level query
// starts, which callers do via ResetForQuery.
func (c *ConversationState) ResetDialog() {
	c.State = StateIdle
	c.TicketForced = false
	c.InvalidAnswers = 0
}

// ResetForQuery prepares the record for a brand-new top-level
// knowledge-base query: dialog position cleared and retry counter back
// to zero.
func (c *ConversationState) ResetForQuery(question string) {
	c.ResetDialog()
	c.LastQuestion = question
	c.Retries = 0
}
