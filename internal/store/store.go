// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/helpibot/helpi/internal/domain"
)

// Repository persists per-conversation dialog state: the retry counter,
// the welcome flag, and the dialog position.
type Repository interface {
	// GetConversation retrieves state for a conversation, or nil if the
	// conversation has never been seen.
	GetConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error)

	// UpsertConversation creates or updates a conversation record.
	UpsertConversation(ctx context.Context, state *domain.ConversationState) error

	// DeleteConversation removes a conversation record.
	DeleteConversation(ctx context.Context, conversationID string) error

	// CleanupStaleConversations removes conversations not updated within ttl.
	CleanupStaleConversations(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
