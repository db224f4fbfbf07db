package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@hourly"
	runTimeout      = time.Minute
)

// Sweeper deletes expired refresh tokens and reports how many were removed.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Job is one sweep pass.
type Job struct {
	Sweeper Sweeper
	Logger  *slog.Logger
}

func (j Job) Run(ctx context.Context) (int64, error) {
	if j.Sweeper == nil {
		return 0, errors.New("sweep: sweeper is required")
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	n, err := j.Sweeper.SweepExpired(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "refresh token sweep failed", slog.Any("error", err))
		return 0, err
	}
	logger.InfoContext(ctx, "refresh token sweep finished",
		slog.Int64("deleted", n),
		slog.Duration("took", time.Since(start)))
	return n, nil
}

// Scheduler runs a Job on a cron schedule. Overlapping runs are skipped and a
// panicking run is recovered and logged.
type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	logger *slog.Logger
}

// NewScheduler validates schedule (standard cron or descriptors such as @hourly)
// and registers job. An empty schedule means DefaultSchedule.
func NewScheduler(schedule string, job Job) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	logger := job.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	id, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		_, _ = job.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("sweep: invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, entry: id, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("refresh token sweeper started", slog.Time("next_run", s.Next()))
}

// Next reports the next scheduled run; zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop halts scheduling and waits for an in-flight run, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
