package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	logx "voxnote/pkg/logx"
)

// CreateRecurringTask is a convenience over CreateInterval that names the
// task and supplies default error and completion logging.
func (s *Scheduler) CreateRecurringTask(name string, period time.Duration, task func(ctx context.Context) error, opt RecurringOptions) TimerID {
	onError := opt.OnError
	if onError == nil {
		onError = func(err error) {
			s.log.Warn("recurring task failed", logx.String("task", name), logx.Err(err))
		}
	}
	return s.register(KindInterval, name, IntervalConfig{
		Period:        period,
		Immediate:     opt.Immediate,
		MaxExecutions: opt.MaxExecutions,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			return task(ctx)
		},
		OnComplete: func() {
			s.log.Info("recurring task completed", logx.String("task", name))
		},
		OnError: onError,
	}, nil)
}

// CreateDelayedTask runs task once after delay. Failures are caught and
// logged, never propagated.
func (s *Scheduler) CreateDelayedTask(name string, delay time.Duration, task func(ctx context.Context) error) TimerID {
	return s.register(KindTimeout, name, IntervalConfig{
		Period: delay,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			start := time.Now()
			if err := task(ctx); err != nil {
				s.log.Warn("delayed task failed", logx.String("task", name), logx.Err(err))
				return nil
			}
			s.log.Debug("delayed task done", logx.String("task", name), logx.Duration("took", time.Since(start)))
			return nil
		},
	}, nil)
}

// CreateRetryTask repeatedly invokes task on opt.Period until it succeeds
// (returns nil) or opt.MaxRetries attempts are exhausted. The first success
// fires OnSuccess and cancels the timer immediately through its own handle,
// without waiting for the execution-count bookkeeping; exhaustion fires
// OnFailure with the last error. At most one of the two callbacks fires.
func (s *Scheduler) CreateRetryTask(name string, task func(ctx context.Context) error, opt RetryOptions) TimerID {
	maxRetries := opt.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	// attempt/settled are only touched from the execute callback, which the
	// scheduler serializes per timer.
	attempt := 0
	settled := false

	return s.register(KindInterval, name, IntervalConfig{
		Period:    opt.Period,
		Immediate: opt.Immediate,
		// Backstop only: the callback self-cancels on both outcomes before
		// this bookkeeping can fire a completion.
		MaxExecutions: maxRetries,
		OnExecute: func(ctx context.Context, id TimerID) error {
			attempt++
			err := task(ctx)
			if err == nil {
				if !settled {
					settled = true
					s.log.Info("retry task succeeded", logx.String("task", name), logx.Int("attempt", attempt))
					if opt.OnSuccess != nil {
						opt.OnSuccess()
					}
				}
				s.ClearInterval(id)
				return nil
			}
			if attempt >= maxRetries {
				if !settled {
					settled = true
					s.log.Warn("retry task exhausted", logx.String("task", name), logx.Int("attempts", attempt), logx.Err(err))
					if opt.OnFailure != nil {
						opt.OnFailure(err)
					}
				}
				s.ClearInterval(id)
				return nil
			}
			return err
		},
		OnError: func(err error) {
			s.log.Debug("retry attempt failed", logx.String("task", name), logx.Int("attempt", attempt), logx.Err(err))
		},
	}, nil)
}

// CreateCronTask registers a recurring task driven by a cron expression
// (standard 5-field specs plus descriptors like "@daily" and "@every 1h").
// The returned handle cancels like any interval.
func (s *Scheduler) CreateCronTask(name, spec string, task func(ctx context.Context) error) (TimerID, error) {
	if spec == "" {
		return 0, errors.New("cron spec required")
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, err
	}
	id := s.register(KindInterval, name, IntervalConfig{
		// Period is unused for cron timers; the schedule decides.
		Period: time.Second,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			return task(ctx)
		},
		OnError: func(err error) {
			s.log.Warn("cron task failed", logx.String("task", name), logx.String("spec", spec), logx.Err(err))
		},
	}, sched)
	s.log.Debug("cron task registered", logx.String("task", name), logx.String("spec", spec))
	return id, nil
}
