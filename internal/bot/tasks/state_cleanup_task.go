package tasks

import (
	"context"
	"fmt"
)

// newStateCleanupTask removes registration conversations that were abandoned
// past their TTL. Backends that expire keys on their own report zero rows.
func newStateCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "state_cleanup")

	return func(ctx context.Context) error {
		removed, err := deps.Store.DeleteExpiredStates(ctx, deps.now())
		if err != nil {
			log.ErrorContext(ctx, "Failed to delete expired registration states", "error", err)
			return fmt.Errorf("state cleanup failed: %w", err)
		}
		if removed > 0 {
			log.InfoContext(ctx, "Deleted expired registration states", "count", removed)
		} else {
			log.DebugContext(ctx, "No expired registration states")
		}
		return nil
	}
}
