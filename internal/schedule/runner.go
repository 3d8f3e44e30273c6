package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/talaqi/talaqi/internal/logger"
)

// parser accepts standard 5-field expressions and descriptors like "@every 24h" or "@daily"
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one unit of recurring work. A returned error is logged and recorded;
// it never stops the runner.
type Job func(ctx context.Context) error

// Runner fires a single job on its schedule until its context is cancelled.
type Runner struct {
	name     string
	spec     string
	schedule cron.Schedule
	job      Job
	clock    Clock
	history  *Store
}

type Option func(*Runner)

func WithClock(c Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithHistory persists next fire times and run outcomes so a restart resumes
// the schedule instead of starting over.
func WithHistory(s *Store) Option {
	return func(r *Runner) {
		r.history = s
	}
}

func NewRunner(name, spec string, job Job, opts ...Option) (*Runner, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	r := &Runner{
		name:     name,
		spec:     spec,
		schedule: sched,
		job:      job,
		clock:    SystemClock{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *Runner) Name() string {
	return r.name
}

// Run waits for each fire time and runs the job, forever. It returns
// ctx.Err() once the context is cancelled; a run already in progress is
// allowed to finish its current entity first.
func (r *Runner) Run(ctx context.Context) error {
	next := r.firstRun(ctx)
	logger.Info("scheduler started", "job", r.name, "schedule", r.spec, "next", next)

	for {
		wait := next.Sub(r.clock.Now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			logger.Debug("scheduler stopping", "job", r.name)
			return ctx.Err()
		case <-r.clock.After(wait):
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.RunOnce(ctx)
		next = r.schedule.Next(r.clock.Now())
	}
}

// RunOnce runs the job a single time, recovering from panics, and records
// the outcome. The returned error is the job's.
func (r *Runner) RunOnce(ctx context.Context) (err error) {
	started := r.clock.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", r.name, p)
			logger.Error("job panicked", "job", r.name, "panic", p, "stack", string(debug.Stack()))
		}

		if err != nil {
			logger.Error("job failed", "job", r.name, "error", err)
		} else {
			logger.Debug("job finished", "job", r.name, "took", r.clock.Now().Sub(started))
		}

		r.record(ctx, started, err)
	}()

	return r.job(ctx)
}

func (r *Runner) firstRun(ctx context.Context) time.Time {
	now := r.clock.Now()
	next := r.schedule.Next(now)

	if r.history == nil {
		return next
	}

	state, err := r.history.Get(ctx, r.name)
	if err != nil {
		logger.Warn("failed to load job history", "job", r.name, "error", err)
		return next
	}

	// a changed schedule starts fresh
	if state != nil && state.Schedule == r.spec && !state.NextRun.IsZero() {
		next = state.NextRun
	}

	if err := r.history.SetNextRun(ctx, r.name, r.spec, next); err != nil {
		logger.Warn("failed to save next run", "job", r.name, "error", err)
	}

	return next
}

func (r *Runner) record(ctx context.Context, ranAt time.Time, runErr error) {
	if r.history == nil {
		return
	}

	// record even when shutdown cancelled the job
	ctx = context.WithoutCancel(ctx)

	next := r.schedule.Next(r.clock.Now())
	if err := r.history.RecordRun(ctx, r.name, r.spec, ranAt, next, runErr); err != nil {
		logger.Warn("failed to record job run", "job", r.name, "error", err)
	}
}
