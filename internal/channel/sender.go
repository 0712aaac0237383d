package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/helpibot/helpi/internal/domain"
)

// outboundFrame is the wire shape of bot-to-user messages.
type outboundFrame struct {
	Type string             `json:"type"`
	Text string             `json:"text,omitempty"`
	Card *domain.SubmitCard `json:"card,omitempty"`
}

// connSender delivers bot replies over a single WebSocket connection.
// Writes are serialized so the pacing delay and concurrent card replies
// cannot interleave frames.
type connSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnSender(conn *websocket.Conn) *connSender {
	return &connSender{conn: conn}
}

func (s *connSender) writeFrame(ctx context.Context, frame outboundFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode outbound frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write outbound frame: %w", err)
	}
	return nil
}

// SendText delivers a plain text reply to the user.
func (s *connSender) SendText(ctx context.Context, conversationID, text string) error {
	return s.writeFrame(ctx, outboundFrame{Type: "text", Text: text})
}

// SendCard delivers a ticket submit card to the user.
func (s *connSender) SendCard(ctx context.Context, conversationID string, card domain.SubmitCard) error {
	return s.writeFrame(ctx, outboundFrame{Type: "card", Card: &card})
}
