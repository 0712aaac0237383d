package domain

// Ticket is a human-escalation request built from a submitted card.
// The ID is generated fresh per card instance and never reused, so the
// deduplication ledger can tell a resubmitted card from a new one.
type Ticket struct {
	ID               string
	RequesterName    string
	Office           string
	OriginalQuestion string
	MessageBody      string
}

// SubmitCard is the structured attachment presented to the user when a
// ticket is offered. A fresh value is constructed per send; the card is
// never mutated after construction.
type SubmitCard struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Text         string `json:"text"`
	FallbackText string `json:"fallback_text"`
	Question     string `json:"question"`
}

// CardSubmission is the payload delivered when the user presses the
// card's submit action. Redelivery at the transport level is possible,
// so the same ID may arrive more than once.
type CardSubmission struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Office  string `json:"office"`
	Message string `json:"message"`
}

// Ticket builds the escalation ticket for this submission.
func (s CardSubmission) Ticket(originalQuestion string) Ticket {
	return Ticket{
		ID:               s.ID,
		RequesterName:    s.Name,
		Office:           s.Office,
		OriginalQuestion: originalQuestion,
		MessageBody:      s.Message,
	}
}
