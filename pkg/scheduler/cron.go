package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a periodic unit of work.
type Task func(ctx context.Context) error

// Cron runs named tasks on cron expressions with panic recovery and
// overlapping-run protection.
type Cron struct {
	c       *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds a scheduler in the given location (UTC when nil). Each run is
// bounded by timeout when positive.
func New(loc *time.Location, timeout time.Duration, logger *zap.Logger) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, logger: logger, timeout: timeout, ctx: ctx, cancel: cancel}
}

// Add schedules task under the standard five-field cron spec.
func (cr *Cron) Add(name, spec string, task Task) (cron.EntryID, error) {
	id, err := cr.c.AddFunc(spec, func() {
		ctx := cr.ctx
		if cr.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cr.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := task(ctx); err != nil {
			cr.logger.Warn("scheduled task failed", zap.String("task", name), zap.Error(err))
			return
		}
		cr.logger.Info("scheduled task finished", zap.String("task", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", name, err)
	}
	return id, nil
}

// Start runs the scheduler in its own goroutine.
func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels running tasks and waits for them to return.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

// Entries lists scheduled entries.
func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
