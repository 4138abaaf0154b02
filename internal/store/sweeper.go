package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/shared"
)

// CleanupCallback is called after a sweep removed at least one checkpoint.
type CleanupCallback func(removed int64)

// StartSweeper runs a background goroutine that periodically deletes
// checkpoints idle for longer than ttl. It stops when ctx is cancelled.
func StartSweeper(ctx context.Context, st CheckpointStore, interval, ttl time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 || ttl <= 0 {
		slog.Info("Checkpoint sweeper disabled", "interval", interval, "ttl", ttl)
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Checkpoint sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, st, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("Checkpoint sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one cleanup pass, retrying SQLite busy errors.
func Sweep(ctx context.Context, st CheckpointStore, ttl time.Duration, onCleanup CleanupCallback) int64 {
	var removed int64
	err := shared.Retry(ctx, shared.DefaultSQLiteBackoff, shared.IsSQLiteConflictError, "sweep checkpoints", func() error {
		n, err := st.CleanupExpired(ctx, ttl)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Checkpoint sweep interrupted", "error", err)
			return 0
		}
		slog.Error("Checkpoint sweep failed", "error", err)
		return 0
	}

	if removed > 0 {
		slog.Info("Checkpoint sweeper removed expired sessions", "count", removed)
		if onCleanup != nil {
			onCleanup(removed)
		}
	}
	return removed
}
