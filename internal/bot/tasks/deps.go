// Package tasks implements the periodic maintenance jobs run by the scheduler.
package tasks

import (
	"log/slog"
	"time"

	"github.com/pyrusbridge/tgbridge/internal/database"
)

// TaskDeps contains the dependencies of scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	// Now is the clock used to decide expiry; time.Now when nil.
	Now func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
