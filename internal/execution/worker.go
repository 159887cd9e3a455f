package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/polling"
	"github.com/genforge/backend/internal/providers"
	"github.com/genforge/backend/internal/services"
)

// attemptsPerRun bounds one job execution. A task still running after that
// many checks is snoozed and picked up again later.
const attemptsPerRun = 8

// SettleTaskArgs identifies a submitted task to settle server-side. Jobs are
// unique per task id.
type SettleTaskArgs struct {
	TaskID    string      `json:"task_id" river:"unique"`
	UserID    uuid.UUID   `json:"user_id"`
	MediaKind models.Kind `json:"kind"`
	ModelID   string      `json:"model_id"`
	GiveUpAt  time.Time   `json:"give_up_at"`
}

func (SettleTaskArgs) Kind() string { return "settle_generation" }

// TaskPoller is the contract the worker needs to drive a task to a terminal
// state. GenerationService implements it.
type TaskPoller interface {
	Poll(ctx context.Context, userID uuid.UUID, req services.PollRequest) (*models.PollResult, error)
}

// Swapped in tests.
var (
	pollOptions = polling.DefaultOptions
	snoozeJob   = river.JobSnooze
	cancelJob   = river.JobCancel
)

// SettleTaskWorker polls a task until it is terminal so failed generations
// are refunded even when the client stopped polling.
type SettleTaskWorker struct {
	river.WorkerDefaults[SettleTaskArgs]
	poller TaskPoller
	logger *slog.Logger
	now    func() time.Time
}

func NewSettleTaskWorker(p TaskPoller, logger *slog.Logger) *SettleTaskWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettleTaskWorker{poller: p, logger: logger, now: time.Now}
}

// Timeout covers one run of attemptsPerRun checks plus slack for the
// provider round trips.
func (w *SettleTaskWorker) Timeout(job *river.Job[SettleTaskArgs]) time.Duration {
	opts := pollOptions(job.Args.MediaKind)
	return opts.GracePeriod + time.Duration(attemptsPerRun)*opts.Interval + 2*providers.DefaultTimeout
}

func (w *SettleTaskWorker) Work(ctx context.Context, job *river.Job[SettleTaskArgs]) error {
	args := job.Args
	if !args.GiveUpAt.IsZero() && w.now().After(args.GiveUpAt) {
		w.logger.Warn("giving up on unsettled task", "task_id", args.TaskID, "user_id", args.UserID, "give_up_at", args.GiveUpAt)
		return nil
	}

	opts := pollOptions(args.MediaKind)
	if opts.MaxAttempts > attemptsPerRun {
		opts.MaxAttempts = attemptsPerRun
	}
	// Resumed runs skip the grace delay.
	if job.Attempt > 1 {
		opts.GracePeriod = 0
	}

	p := &polling.Poller[*models.PollResult]{
		Options: opts,
		Check: func(ctx context.Context) (*models.PollResult, error) {
			return w.poller.Poll(ctx, args.UserID, services.PollRequest{TaskID: args.TaskID, Kind: args.MediaKind, ModelID: args.ModelID})
		},
		// A failed task whose refund errored is complete but unsettled; keep
		// polling so the next check retries the refund.
		Done: func(r *models.PollResult) bool { return r != nil && r.IsComplete && r.Settled },
		OnProgress: func(attempt int, r *models.PollResult, err error) {
			switch {
			case err != nil:
				w.logger.Warn("settlement poll failed", "task_id", args.TaskID, "attempt", attempt, "error", err)
			case r != nil && r.IsComplete && !r.Settled:
				w.logger.Warn("terminal task not settled yet", "task_id", args.TaskID, "attempt", attempt, "status", r.Status)
			}
		},
	}

	result, err := p.Run(ctx)
	switch {
	case err == nil:
		w.logger.Info("task settled", "task_id", args.TaskID, "status", result.Status, "credits_refunded", result.CreditsRefunded)
		return nil
	case isPermanent(err):
		return cancelJob(fmt.Errorf("settle task %s: %w", args.TaskID, err))
	case ctx.Err() != nil:
		return err
	default:
		// Budget exhausted, the provider kept failing or the refund did; try
		// again later.
		return snoozeJob(opts.Interval)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, services.ErrTaskNotFound) ||
		errors.Is(err, providers.ErrUnknownModel) ||
		errors.Is(err, providers.ErrInvalidArgument)
}

// InsertFunc inserts a settlement job. main wires it to the river client.
type InsertFunc func(ctx context.Context, args SettleTaskArgs, opts *river.InsertOpts) error

// Enqueuer schedules settlement jobs for submitted tasks.
type Enqueuer struct {
	insert InsertFunc
	maxAge time.Duration
	now    func() time.Time
}

// NewEnqueuer returns an Enqueuer whose jobs give up maxAge after the task
// was created.
func NewEnqueuer(insert InsertFunc, maxAge time.Duration) *Enqueuer {
	return &Enqueuer{insert: insert, maxAge: maxAge, now: time.Now}
}

func (e *Enqueuer) ScheduleSettlement(ctx context.Context, b *models.TaskCreditBinding) error {
	created := b.CreatedAt
	if created.IsZero() {
		created = e.now()
	}
	args := SettleTaskArgs{
		TaskID:    b.TaskID,
		UserID:    b.UserID,
		MediaKind: b.Kind,
		ModelID:   b.ModelID,
		GiveUpAt:  created.Add(e.maxAge),
	}
	opts := &river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
	if err := e.insert(ctx, args, opts); err != nil {
		return fmt.Errorf("insert settlement job for %s: %w", b.TaskID, err)
	}
	return nil
}
