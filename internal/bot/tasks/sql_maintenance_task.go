package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// newSQLMaintenanceTask drops expired registration states and then compacts
// the state database so the freed pages are reclaimed in the same run.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		startTime := time.Now()

		var errs []error
		removed, err := deps.Store.DeleteExpiredStates(ctx, deps.now())
		if err != nil {
			log.WarnContext(ctx, "Could not prune expired registration states before compaction", "error", err)
			errs = append(errs, fmt.Errorf("prune expired states: %w", err))
		}

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "State database compaction failed", "error", err, "duration", time.Since(startTime))
			errs = append(errs, fmt.Errorf("compact state database: %w", err))
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}

		log.InfoContext(ctx, "State database compacted",
			"expired_states_removed", removed, "duration", time.Since(startTime))
		return nil
	}
}
