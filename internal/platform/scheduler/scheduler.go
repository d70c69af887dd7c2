// Package scheduler runs recurring background jobs (provider polling, pending
// instance setup) on gocron.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/aradsms/smsbridge/internal/platform/logger"
)

// Scheduler wraps a started gocron scheduler that runs in UTC.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func New(log *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.Start()
	return &Scheduler{scheduler: s, logger: log.With("component", "scheduler")}, nil
}

// Every runs task at a fixed interval. A run that overlaps the next tick delays
// it instead of running concurrently. The returned function removes the job.
func (s *Scheduler) Every(name string, interval time.Duration, startNow bool, task func()) (func() error, error) {
	if name == "" {
		return nil, errors.New("empty job name")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("job %s: interval must be positive", name)
	}
	if task == nil {
		return nil, errors.New("nil job function")
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if startNow {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	job, err := s.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(task), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	logAttrs := []any{"job_name", name, "interval", interval.String()}
	if nextRun, err := job.NextRun(); err == nil {
		logAttrs = append(logAttrs, "next_run", nextRun.Format(time.RFC3339))
	}
	s.logger.Info("Job scheduled", logAttrs...)

	id := job.ID()
	return func() error {
		if err := s.scheduler.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			return fmt.Errorf("failed to remove job %s: %w", name, err)
		}
		return nil
	}, nil
}

// Stop shuts the scheduler down and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.logger.Debug("Stopping scheduler", "active_jobs", len(s.scheduler.Jobs()))
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}
