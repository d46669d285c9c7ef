package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/pyrusbridge/tgbridge/internal/bot/tasks"
	"github.com/pyrusbridge/tgbridge/internal/config"
)

// Scheduler runs the registered maintenance tasks on their cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler for the tasks in taskMap. Which tasks run, and
// when, comes from cfg.
func NewScheduler(logger *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

// Start schedules every enabled task and starts ticking. Tasks receive ctx, so
// cancelling it interrupts running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	scheduled := 0
	if s.cfg != nil {
		for name, taskCfg := range s.cfg.Tasks {
			if !taskCfg.Enabled {
				s.logger.Info("Skipping disabled task", "task_name", name)
				continue
			}
			taskFunc, ok := s.taskMap[name]
			if !ok {
				s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", name)
				continue
			}

			_, err := s.scheduler.NewJob(
				gocron.CronJob(taskCfg.Schedule, true),
				gocron.NewTask(s.wrap(name, taskFunc), ctx),
				gocron.WithName(name),
				gocron.WithSingletonMode(gocron.LimitModeReschedule),
			)
			if err != nil {
				return fmt.Errorf("failed to schedule task %q (%s): %w", name, taskCfg.Schedule, err)
			}
			s.logger.Info("Scheduled task", "task_name", name, "schedule", taskCfg.Schedule)
			scheduled++
		}
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduled)
	return nil
}

func (s *Scheduler) wrap(name string, fn tasks.ScheduledTaskFunc) func(ctx context.Context) {
	return func(ctx context.Context) {
		start := time.Now()
		s.logger.DebugContext(ctx, "Running scheduled task", "task_name", name)
		if err := fn(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled task failed", "task_name", name, "error", err)
		}
		s.logger.DebugContext(ctx, "Finished scheduled task", "task_name", name, "duration", time.Since(start))
	}
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
