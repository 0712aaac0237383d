package store

import (
	"context"
	"log/slog"
	"time"
)

const cleanupWorkerInterval = 10 * time.Minute

// StartCleanupWorker periodically removes conversations that have been
// idle longer than ttl. Dropping a stale record also clears its retry
// counter, so a user returning days later starts a fresh dialog.
func StartCleanupWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	ticker := time.NewTicker(cleanupWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Conversation cleanup worker started", "interval", cleanupWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupStale(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Conversation cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupStale(ctx context.Context, repo Repository, ttl time.Duration) {
	removed, err := repo.CleanupStaleConversations(ctx, ttl)
	if err != nil {
		slog.Error("Cleanup worker failed to remove stale conversations", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Cleanup worker removed stale conversations", "count", removed)
	}
}
