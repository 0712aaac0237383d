// Package ledger implements the ticket deduplication ledger: an
// append-only set of ticket ids that have already been escalated.
package ledger

import (
	"context"
)

// Ledger records which submitted cards have already produced a ticket.
//
// Both operations fail with an error wrapping errdefs.ErrUnavailable
// when the backing store cannot be read or written. A failed read must
// never be reported as "not a duplicate": callers decline to send
// rather than risk a duplicate escalation.
type Ledger interface {
	// Contains reports whether id has already been processed.
	Contains(ctx context.Context, id string) (bool, error)

	// Add appends id to the ledger. Adding an id twice is a no-op.
	Add(ctx context.Context, id string) error

	// Close releases the backing store.
	Close() error
}
