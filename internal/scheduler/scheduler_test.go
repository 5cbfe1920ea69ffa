package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "voxnote/pkg/logx"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(logx.Nop())
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestIntervalMaxExecutions(t *testing.T) {
	s := newTestScheduler(t)

	var execs atomic.Int32
	var completes atomic.Int32
	done := make(chan struct{})

	id := s.CreateInterval(IntervalConfig{
		Period:        10 * time.Millisecond,
		MaxExecutions: 3,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			execs.Add(1)
			return nil
		},
		OnComplete: func() {
			completes.Add(1)
			close(done)
		},
	})

	waitFor(t, done, "completion")
	// Give a stray extra tick a chance to show up before asserting.
	time.Sleep(50 * time.Millisecond)

	if n := execs.Load(); n != 3 {
		t.Fatalf("expected 3 executions, got %d", n)
	}
	if n := completes.Load(); n != 1 {
		t.Fatalf("expected 1 completion, got %d", n)
	}
	for _, info := range s.ActiveTimers() {
		if info.ID == id {
			t.Fatalf("completed timer still listed as active")
		}
	}
	if s.ClearInterval(id) {
		t.Fatalf("expected ClearInterval to fail after natural completion")
	}
}

func TestClearIntervalSuppressesCompletion(t *testing.T) {
	s := newTestScheduler(t)

	ticked := make(chan struct{}, 16)
	var completes atomic.Int32

	id := s.CreateInterval(IntervalConfig{
		Period:        10 * time.Millisecond,
		MaxExecutions: 100,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return nil
		},
		OnComplete: func() { completes.Add(1) },
	})

	waitFor(t, ticked, "first tick")
	if !s.ClearInterval(id) {
		t.Fatalf("expected ClearInterval to succeed")
	}
	if s.ClearInterval(id) {
		t.Fatalf("expected second ClearInterval to fail")
	}

	time.Sleep(60 * time.Millisecond)
	if n := completes.Load(); n != 0 {
		t.Fatalf("cancelled timer fired OnComplete %d times", n)
	}
}

func TestClearWrongKind(t *testing.T) {
	s := newTestScheduler(t)

	iv := s.CreateInterval(IntervalConfig{
		Period:    time.Hour,
		OnExecute: func(ctx context.Context, _ TimerID) error { return nil },
	})
	to := s.CreateTimeout(time.Hour, func(ctx context.Context, _ TimerID) error { return nil })

	if s.ClearTimeout(iv) {
		t.Fatalf("ClearTimeout accepted an interval handle")
	}
	if s.ClearInterval(to) {
		t.Fatalf("ClearInterval accepted a timeout handle")
	}
	if s.ClearInterval(TimerID(99999)) {
		t.Fatalf("ClearInterval accepted an unknown handle")
	}
	if !s.ClearInterval(iv) || !s.ClearTimeout(to) {
		t.Fatalf("expected well-kinded clears to succeed")
	}
}

func TestTimeoutFiresOnceAndUntracks(t *testing.T) {
	s := newTestScheduler(t)

	var execs atomic.Int32
	done := make(chan struct{})

	id := s.CreateTimeout(10*time.Millisecond, func(ctx context.Context, _ TimerID) error {
		if execs.Add(1) == 1 {
			close(done)
		}
		return nil
	})

	waitFor(t, done, "timeout fire")
	time.Sleep(30 * time.Millisecond)

	if n := execs.Load(); n != 1 {
		t.Fatalf("timeout fired %d times", n)
	}
	if s.ClearTimeout(id) {
		t.Fatalf("expected ClearTimeout to fail after natural completion")
	}
	if got := len(s.ActiveTimers()); got != 0 {
		t.Fatalf("expected no active timers, got %d", got)
	}
}

func TestCancelledTimeoutNeverFires(t *testing.T) {
	s := newTestScheduler(t)

	var execs atomic.Int32
	id := s.CreateTimeout(40*time.Millisecond, func(ctx context.Context, _ TimerID) error {
		execs.Add(1)
		return nil
	})
	if !s.ClearTimeout(id) {
		t.Fatalf("expected ClearTimeout to succeed")
	}
	time.Sleep(80 * time.Millisecond)
	if n := execs.Load(); n != 0 {
		t.Fatalf("cancelled timeout fired %d times", n)
	}
}

func TestSelfCancellationFromCallback(t *testing.T) {
	s := newTestScheduler(t)

	var execs atomic.Int32
	var completes atomic.Int32
	cleared := make(chan bool, 1)

	s.CreateInterval(IntervalConfig{
		Period:        10 * time.Millisecond,
		MaxExecutions: 50,
		OnExecute: func(ctx context.Context, id TimerID) error {
			if execs.Add(1) == 2 {
				cleared <- s.ClearInterval(id)
			}
			return nil
		},
		OnComplete: func() { completes.Add(1) },
	})

	select {
	case ok := <-cleared:
		if !ok {
			t.Fatalf("self-cancellation returned false")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for self-cancellation")
	}

	time.Sleep(60 * time.Millisecond)
	if n := execs.Load(); n != 2 {
		t.Fatalf("expected 2 executions after self-cancel, got %d", n)
	}
	if n := completes.Load(); n != 0 {
		t.Fatalf("self-cancelled timer fired OnComplete %d times", n)
	}
}

func TestSameTimerTicksNeverOverlap(t *testing.T) {
	s := newTestScheduler(t)

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	var execs atomic.Int32
	done := make(chan struct{})

	s.CreateInterval(IntervalConfig{
		Period:        5 * time.Millisecond,
		MaxExecutions: 4,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			cur := inFlight.Add(1)
			for {
				seen := maxSeen.Load()
				if cur <= seen || maxSeen.CompareAndSwap(seen, cur) {
					break
				}
			}
			// Outlive the period on purpose.
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			execs.Add(1)
			return nil
		},
		OnComplete: func() { close(done) },
	})

	waitFor(t, done, "completion")
	if maxSeen.Load() != 1 {
		t.Fatalf("ticks of the same timer overlapped (max in flight %d)", maxSeen.Load())
	}
	if execs.Load() != 4 {
		t.Fatalf("expected 4 executions, got %d", execs.Load())
	}
}

func TestCallbackErrorKeepsTimerRunning(t *testing.T) {
	s := newTestScheduler(t)

	boom := errors.New("boom")
	var errs atomic.Int32
	done := make(chan struct{})

	s.CreateInterval(IntervalConfig{
		Period:        5 * time.Millisecond,
		MaxExecutions: 3,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			return boom
		},
		OnError: func(err error) {
			if !errors.Is(err, boom) {
				t.Errorf("unexpected error: %v", err)
			}
			errs.Add(1)
		},
		OnComplete: func() { close(done) },
	})

	waitFor(t, done, "completion despite errors")
	if n := errs.Load(); n != 3 {
		t.Fatalf("expected 3 routed errors, got %d", n)
	}
}

func TestCallbackPanicIsContained(t *testing.T) {
	s := newTestScheduler(t)

	errCh := make(chan error, 1)
	s.CreateInterval(IntervalConfig{
		Period:        5 * time.Millisecond,
		MaxExecutions: 1,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			panic("kaboom")
		},
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
	})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected a panic-derived error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for panic routing")
	}
}

func TestImmediateCountsTowardMax(t *testing.T) {
	s := newTestScheduler(t)

	var execs atomic.Int32
	done := make(chan struct{})

	s.CreateInterval(IntervalConfig{
		Period:        20 * time.Millisecond,
		Immediate:     true,
		MaxExecutions: 2,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			execs.Add(1)
			return nil
		},
		OnComplete: func() { close(done) },
	})

	waitFor(t, done, "completion")
	if n := execs.Load(); n != 2 {
		t.Fatalf("expected 2 executions (one immediate), got %d", n)
	}
}

func TestClearAllAndStats(t *testing.T) {
	s := newTestScheduler(t)

	ticked := make(chan struct{}, 1)
	s.CreateInterval(IntervalConfig{
		Period: 5 * time.Millisecond,
		OnExecute: func(ctx context.Context, _ TimerID) error {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return nil
		},
	})
	s.CreateInterval(IntervalConfig{
		Period:    time.Hour,
		OnExecute: func(ctx context.Context, _ TimerID) error { return nil },
	})
	s.CreateTimeout(time.Hour, func(ctx context.Context, _ TimerID) error { return nil })

	waitFor(t, ticked, "first tick")

	st := s.Stats()
	if st.Total != 3 || st.Intervals != 2 || st.Timeouts != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.TotalExecutions < 1 {
		t.Fatalf("expected at least 1 recorded execution, got %d", st.TotalExecutions)
	}
	if st.OldestAge <= 0 {
		t.Fatalf("expected positive oldest age")
	}

	s.ClearAll()
	if got := len(s.ActiveTimers()); got != 0 {
		t.Fatalf("expected no active timers after ClearAll, got %d", got)
	}
	if st := s.Stats(); st.Total != 0 {
		t.Fatalf("expected empty stats after ClearAll, got %+v", st)
	}
}

func TestHandleValidBeforeFirstImmediateTick(t *testing.T) {
	s := newTestScheduler(t)

	seen := make(chan TimerID, 1)
	id := s.CreateInterval(IntervalConfig{
		Period:        time.Hour,
		Immediate:     true,
		MaxExecutions: 1,
		OnExecute: func(ctx context.Context, own TimerID) error {
			seen <- own
			return nil
		},
	})

	select {
	case own := <-seen:
		if own != id {
			t.Fatalf("callback saw handle %d, creation returned %d", own, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for immediate tick")
	}
}
