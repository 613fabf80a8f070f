package tasks

import (
	"context"
	"fmt"
	"time"
)

// imageLogRetentionDays is how long daily image generation counters are
// kept. Only the current day is ever read, so the rest is just audit trail.
const imageLogRetentionDays = 30

// newImageLogCleanupTask creates the scheduled task function that prunes old
// daily image generation counters.
func newImageLogCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "image_log_cleanup")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting image log cleanup task...")
		startTime := time.Now()

		removed, err := deps.Store.PruneImageGenLog(ctx, imageLogRetentionDays)

		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Image log cleanup task failed", "error", err, "duration", duration)

			return fmt.Errorf("image log cleanup failed: %w", err)
		}

		log.InfoContext(ctx, "Image log cleanup task completed", "rows_removed", removed, "duration", duration)
		return nil
	}
}
