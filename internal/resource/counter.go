// Package resource implements the read-only resource counter the monitor
// samples. It owns no bookkeeping of its own: timer counts come from the
// scheduler registry and listener counts from the event bus.
package resource

import (
	"voxnote/internal/eventbus"
	"voxnote/internal/monitor"
	"voxnote/internal/scheduler"
)

type Counter struct {
	sched *scheduler.Scheduler
	bus   eventbus.Bus
}

func New(sched *scheduler.Scheduler, bus eventbus.Bus) *Counter {
	return &Counter{sched: sched, bus: bus}
}

func (c *Counter) Stats() monitor.ResourceStats {
	var st monitor.ResourceStats
	if c.sched != nil {
		ts := c.sched.Stats()
		st.IntervalCount = ts.Intervals
		st.TimeoutCount = ts.Timeouts
	}
	if c.bus != nil {
		st.ListenerCount = c.bus.SubscriberCount()
	}
	return st
}
