// Package shared provides small cross-cutting helpers for the SQLite
// layers (store and ledger).
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// IsSQLiteBusy reports whether err is a SQLITE_BUSY error, raised when
// the database is locked by another connection.
func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLocked reports whether err is a "database is locked" error.
func IsSQLiteLocked(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflict reports whether err is a SQLite concurrency error
// that warrants a retry.
func IsSQLiteConflict(err error) bool {
	return IsSQLiteBusy(err) || IsSQLiteLocked(err)
}

// RetryOnConflict runs op up to attempts times, backing off
// exponentially from baseDelay between attempts, but only while op
// fails with a SQLite concurrency error. Any other error is returned
// immediately.
func RetryOnConflict(ctx context.Context, attempts int, baseDelay time.Duration, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil || !IsSQLiteConflict(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("sqlite conflict, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
