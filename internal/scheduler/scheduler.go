package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "voxnote/pkg/logx"
)

// CreateInterval registers a repeating timer and returns its handle. The
// dispatch goroutine starts only after the timer is tracked, so the handle
// is always valid by the time the first tick runs.
func (s *Scheduler) CreateInterval(cfg IntervalConfig) TimerID {
	return s.register(KindInterval, "", cfg, nil)
}

// CreateTimeout registers a one-shot timer. After the callback runs the
// timer is deactivated and removed from tracking; no clear call is needed
// after natural completion. Callback errors are logged.
func (s *Scheduler) CreateTimeout(delay time.Duration, fn func(ctx context.Context, id TimerID) error) TimerID {
	return s.register(KindTimeout, "", IntervalConfig{Period: delay, OnExecute: fn}, nil)
}

func (s *Scheduler) register(kind TimerKind, name string, cfg IntervalConfig, sched cron.Schedule) TimerID {
	period := cfg.Period
	if period <= 0 {
		period = time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.seq++
	t := &timer{
		id:         s.seq,
		kind:       kind,
		name:       name,
		period:     period,
		immediate:  cfg.Immediate,
		maxExec:    cfg.MaxExecutions,
		cronSched:  sched,
		onExecute:  cfg.OnExecute,
		onComplete: cfg.OnComplete,
		onError:    cfg.OnError,
		created:    time.Now(),
		active:     true,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.timers[t.id] = t
	s.mu.Unlock()

	s.wg.Add(1)
	switch kind {
	case KindTimeout:
		go s.runTimeout(t)
	default:
		go s.runInterval(t)
	}
	return t.id
}

func (s *Scheduler) runInterval(t *timer) {
	defer s.wg.Done()

	if t.immediate {
		if !s.tick(t) {
			return
		}
	}

	if t.cronSched != nil {
		s.runCronLoop(t)
		return
	}

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if !s.tick(t) {
				return
			}
		}
	}
}

// runCronLoop re-arms a single timer against the cron schedule. The timer
// keeps one stable TimerID across runs, so cancellation works like any
// other interval.
func (s *Scheduler) runCronLoop(t *timer) {
	for {
		next := t.cronSched.Next(time.Now())
		if next.IsZero() {
			return
		}
		wait := time.NewTimer(time.Until(next))
		select {
		case <-t.ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
			if !s.tick(t) {
				return
			}
		}
	}
}

// tick runs one invocation of an interval timer. It reports whether the
// timer is still live afterwards.
func (s *Scheduler) tick(t *timer) bool {
	s.mu.Lock()
	// A tick may already be in flight when cancellation lands; the cleared
	// active flag makes it a no-op.
	if !t.active {
		s.mu.Unlock()
		return false
	}
	t.execCount++
	t.lastRun = time.Now()
	count := t.execCount
	s.mu.Unlock()

	err := s.invoke(t)
	if err != nil {
		s.routeError(t, err)
	}

	if t.maxExec > 0 && count >= t.maxExec {
		s.mu.Lock()
		// The callback may have cancelled its own timer (or anyone else may
		// have raced a clear in). Completion only fires if the timer is
		// still ours to finish.
		if !t.active {
			s.mu.Unlock()
			return false
		}
		t.active = false
		delete(s.timers, t.id)
		s.mu.Unlock()

		t.cancel()
		if t.onComplete != nil {
			t.onComplete()
		}
		return false
	}

	s.mu.Lock()
	live := t.active
	s.mu.Unlock()
	return live
}

func (s *Scheduler) runTimeout(t *timer) {
	defer s.wg.Done()

	wait := time.NewTimer(t.period)
	defer wait.Stop()

	select {
	case <-t.ctx.Done():
		return
	case <-wait.C:
	}

	s.mu.Lock()
	if !t.active {
		s.mu.Unlock()
		return
	}
	// Natural completion: deactivate and untrack before the callback runs,
	// so a racing ClearTimeout sees an unknown handle and returns false.
	t.active = false
	t.execCount = 1
	t.lastRun = time.Now()
	delete(s.timers, t.id)
	s.mu.Unlock()

	if err := s.invoke(t); err != nil {
		s.routeError(t, err)
	}
	t.cancel()
}

// invoke runs the callback with panic containment. A panicking callback
// must not take down unrelated timers.
func (s *Scheduler) invoke(t *timer) (err error) {
	if t.onExecute == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("timer callback panic: %v", r)
		}
	}()
	return t.onExecute(t.ctx, t.id)
}

func (s *Scheduler) routeError(t *timer, err error) {
	if t.onError != nil {
		t.onError(err)
		return
	}
	s.log.Error("timer callback failed",
		logx.Uint64("timer", uint64(t.id)),
		logx.String("kind", t.kind.String()),
		logx.Err(err),
	)
}

// ClearInterval cancels a repeating timer. It returns false when the handle
// is unknown or refers to a one-shot. Safe to call from inside the timer's
// own callback.
func (s *Scheduler) ClearInterval(id TimerID) bool {
	return s.clear(id, KindInterval)
}

// ClearTimeout cancels a pending one-shot. It returns false when the handle
// is unknown or refers to an interval.
func (s *Scheduler) ClearTimeout(id TimerID) bool {
	return s.clear(id, KindTimeout)
}

func (s *Scheduler) clear(id TimerID, kind TimerKind) bool {
	s.mu.Lock()
	t, ok := s.timers[id]
	if !ok || t.kind != kind {
		s.mu.Unlock()
		return false
	}
	t.active = false
	delete(s.timers, id)
	s.mu.Unlock()

	t.cancel()
	return true
}

// ClearAll cancels every tracked timer, interval and timeout alike.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	cleared := make([]*timer, 0, len(s.timers))
	for id, t := range s.timers {
		t.active = false
		delete(s.timers, id)
		cleared = append(cleared, t)
	}
	s.mu.Unlock()

	for _, t := range cleared {
		t.cancel()
	}
	if len(cleared) > 0 {
		s.log.Debug("cleared all timers", logx.Int("count", len(cleared)))
	}
}

// Close tears the scheduler down: cancels everything and waits for all
// dispatch goroutines to exit. In-flight callbacks run to completion.
func (s *Scheduler) Close() {
	s.ClearAll()
	s.wg.Wait()
}

// ActiveTimers returns a snapshot of all live timers.
func (s *Scheduler) ActiveTimers() []TimerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]TimerInfo, 0, len(s.timers))
	for _, t := range s.timers {
		if !t.active {
			continue
		}
		infos = append(infos, TimerInfo{
			ID:         t.id,
			Kind:       t.kind,
			Name:       t.name,
			Period:     t.period,
			Executions: t.execCount,
			LastRun:    t.lastRun,
			Created:    t.created,
		})
	}
	return infos
}

// Stats aggregates counts over the live registry.
func (s *Scheduler) Stats() TimerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st TimerStats
	var oldest time.Time
	for _, t := range s.timers {
		if !t.active {
			continue
		}
		st.Total++
		if t.kind == KindTimeout {
			st.Timeouts++
		} else {
			st.Intervals++
		}
		st.TotalExecutions += t.execCount
		if oldest.IsZero() || t.created.Before(oldest) {
			oldest = t.created
		}
	}
	if !oldest.IsZero() {
		st.OldestAge = time.Since(oldest)
	}
	return st
}
