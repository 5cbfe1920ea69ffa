package resource

import (
	"context"
	"testing"
	"time"

	"voxnote/internal/eventbus"
	"voxnote/internal/monitor"
	"voxnote/internal/scheduler"
	logx "voxnote/pkg/logx"
)

func TestStatsReflectsSchedulerAndBus(t *testing.T) {
	sched := scheduler.New(logx.Nop())
	defer sched.Close()
	bus := eventbus.New()

	c := New(sched, bus)
	if st := c.Stats(); st != (monitor.ResourceStats{}) {
		t.Fatalf("fresh counter = %+v, want zeros", st)
	}

	iv := sched.CreateInterval(scheduler.IntervalConfig{
		Period:    time.Hour,
		OnExecute: func(ctx context.Context, _ scheduler.TimerID) error { return nil },
	})
	sched.CreateTimeout(time.Hour, func(ctx context.Context, _ scheduler.TimerID) error { return nil })

	_, unsub := bus.Subscribe(1)

	st := c.Stats()
	if st.IntervalCount != 1 || st.TimeoutCount != 1 || st.ListenerCount != 1 {
		t.Fatalf("counter = %+v, want 1/1/1", st)
	}

	sched.ClearInterval(iv)
	unsub()
	st = c.Stats()
	if st.IntervalCount != 0 || st.ListenerCount != 0 {
		t.Fatalf("counter after release = %+v", st)
	}
}

func TestStatsToleratesNilSources(t *testing.T) {
	c := New(nil, nil)
	if st := c.Stats(); st != (monitor.ResourceStats{}) {
		t.Fatalf("nil-source counter = %+v, want zeros", st)
	}
}
