// Package channel provides the WebSocket chat channel between users and the bot.
package channel

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the active WebSocket connection per conversation.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a conversation.
func (m *SessionManager) GetActive(conversationID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[conversationID]
}

// Register adds a new WebSocket connection for a conversation. A still-open
// previous connection for the same conversation is closed so a reconnecting
// tab always wins.
func (m *SessionManager) Register(conversationID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[conversationID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[conversationID] = conn
	slog.Info("Chat session registered", "conversation_id", conversationID)
}

// Unregister removes a WebSocket connection for a conversation.
func (m *SessionManager) Unregister(conversationID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[conversationID]; exists && current == conn {
		delete(m.active, conversationID)
		slog.Info("Chat session unregistered", "conversation_id", conversationID)
	}
}

// CloseSession forcefully terminates the active session for a conversation.
func (m *SessionManager) CloseSession(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.active[conversationID]
	if !ok {
		return
	}

	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	slog.Info("Chat session closed", "conversation_id", conversationID)
	delete(m.active, conversationID)
}
