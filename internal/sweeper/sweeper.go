// Package sweeper periodically re-queues settlement for tasks whose binding
// was never settled, covering jobs lost before they were enqueued.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/genforge/backend/internal/models"
)

const (
	DefaultSchedule = "@every 10m"
	DefaultMinAge   = 10 * time.Minute
	DefaultMaxAge   = 24 * time.Hour

	batchSize = 200
)

// BindingLister returns unrefunded bindings with no terminal activity,
// created between minAge and maxAge ago.
type BindingLister interface {
	ListUnsettled(ctx context.Context, minAge, maxAge time.Duration, limit int) ([]*models.TaskCreditBinding, error)
}

// SettlementScheduler enqueues a settlement job.
type SettlementScheduler interface {
	ScheduleSettlement(ctx context.Context, b *models.TaskCreditBinding) error
}

type Config struct {
	Schedule string
	MinAge   time.Duration
	MaxAge   time.Duration
}

// Scheduler runs the sweep on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	bindings  BindingLister
	scheduler SettlementScheduler
	logger    *slog.Logger
	config    Config
}

func NewScheduler(bindings BindingLister, scheduler SettlementScheduler, logger *slog.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = DefaultMinAge
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		bindings:  bindings,
		scheduler: scheduler,
		logger:    logger,
		config:    cfg,
	}
}

// Start registers the sweep and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.Schedule, s.run); err != nil {
		s.logger.Error("failed to schedule settlement sweep", "schedule", s.config.Schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled settlement sweep", "schedule", s.config.Schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("settlement sweep failed", "error", err)
	}
}

// Sweep enqueues settlement for every stale binding and returns how many
// jobs were scheduled. A failed enqueue is logged and skipped.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	list, err := s.bindings.ListUnsettled(ctx, s.config.MinAge, s.config.MaxAge, batchSize)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, b := range list {
		if err := s.scheduler.ScheduleSettlement(ctx, b); err != nil {
			s.logger.Warn("failed to enqueue settlement", "task_id", b.TaskID, "error", err)
			continue
		}
		scheduled++
	}
	if len(list) > 0 {
		s.logger.Info("settlement sweep finished", "found", len(list), "scheduled", scheduled)
	}
	return scheduled, nil
}
