package monitor

import (
	"fmt"
	"testing"
	"time"

	"voxnote/internal/scheduler"
	logx "voxnote/pkg/logx"
)

type staticCounter struct {
	stats ResourceStats
}

func (c staticCounter) Stats() ResourceStats { return c.stats }

func newTestMonitor(t *testing.T, cfg Config, res ResourceCounter) (*Monitor, *scheduler.Scheduler) {
	t.Helper()
	if cfg.MemorySample == nil {
		cfg.MemorySample = func() (float64, error) { return 10, nil }
	}
	if res == nil {
		res = staticCounter{}
	}
	s := scheduler.New(logx.Nop())
	t.Cleanup(s.Close)
	return New(cfg, s, res, logx.Nop()), s
}

func TestCollectAppendsAndEvicts(t *testing.T) {
	var sample float64
	m, _ := newTestMonitor(t, Config{
		HistorySize:  3,
		MemorySample: func() (float64, error) { return sample, nil },
	}, nil)

	for i := 1; i <= 5; i++ {
		sample = float64(i)
		m.Collect()
	}

	got := m.Metrics()
	if len(got) != 3 {
		t.Fatalf("expected history trimmed to 3, got %d", len(got))
	}
	for i, want := range []float64{3, 4, 5} {
		if got[i].MemoryMB != want {
			t.Fatalf("snapshot %d has memory %v, want %v (oldest must be evicted first)", i, got[i].MemoryMB, want)
		}
	}

	latest, ok := m.LatestMetrics()
	if !ok || latest.MemoryMB != 5 {
		t.Fatalf("LatestMetrics = %+v/%v, want the newest snapshot", latest, ok)
	}
}

func TestCollectRaisesMemoryAlert(t *testing.T) {
	m, _ := newTestMonitor(t, Config{
		Thresholds:   Thresholds{MemoryMB: 100},
		MemorySample: func() (float64, error) { return 150, nil },
	}, nil)

	m.Collect()

	alerts := m.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Category != CategoryMemory {
		t.Fatalf("alert category = %s, want memory", a.Category)
	}
	if a.Severity != SeverityHigh {
		t.Fatalf("150 over a 100 threshold must classify high, got %s", a.Severity)
	}
	if a.Value != 150 || a.Threshold != 100 {
		t.Fatalf("alert carries %v/%v, want observed value and threshold", a.Value, a.Threshold)
	}
}

func TestCollectRaisesResourceAlerts(t *testing.T) {
	m, _ := newTestMonitor(t, Config{
		Thresholds: Thresholds{Timers: 10, Listeners: 5},
	}, staticCounter{stats: ResourceStats{IntervalCount: 8, TimeoutCount: 4, ListenerCount: 11}})

	m.Collect()

	alerts := m.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("expected timer and listener alerts, got %d", len(alerts))
	}
	// 12 timers over 10: ratio 1.2, medium. 11 listeners over 5: ratio 2.2,
	// critical. Both are resource-category, so tell them apart by value.
	for _, a := range alerts {
		if a.Category != CategoryResource {
			t.Fatalf("alert category = %s, want resource", a.Category)
		}
		switch a.Value {
		case 12:
			if a.Severity != SeverityMedium {
				t.Fatalf("timer alert severity = %s, want medium", a.Severity)
			}
		case 11:
			if a.Severity != SeverityCritical {
				t.Fatalf("listener alert severity = %s, want critical", a.Severity)
			}
		default:
			t.Fatalf("unexpected alert value %v", a.Value)
		}
	}
}

func TestCollectUnderThresholdsRaisesNothing(t *testing.T) {
	m, _ := newTestMonitor(t, Config{
		Thresholds:   Thresholds{MemoryMB: 100, Timers: 10, Listeners: 10},
		MemorySample: func() (float64, error) { return 99, nil },
	}, staticCounter{stats: ResourceStats{IntervalCount: 5, TimeoutCount: 5, ListenerCount: 10}})

	m.Collect()
	if got := m.Alerts(); len(got) != 0 {
		t.Fatalf("expected no alerts at or under thresholds, got %+v", got)
	}
}

func TestAlertHistoryBound(t *testing.T) {
	m, _ := newTestMonitor(t, Config{AlertHistorySize: 4}, nil)

	for i := 0; i < 10; i++ {
		m.AddAlert(Alert{Category: CategoryError, Severity: SeverityLow, Message: fmt.Sprintf("a%d", i)})
	}
	got := m.Alerts()
	if len(got) != 4 {
		t.Fatalf("expected alert history trimmed to 4, got %d", len(got))
	}
	if got[0].Message != "a6" || got[3].Message != "a9" {
		t.Fatalf("expected the newest four alerts, got %q..%q", got[0].Message, got[3].Message)
	}
}

func TestSurfacingThrottleNeverDropsHistory(t *testing.T) {
	m, _ := newTestMonitor(t, Config{
		AlertHistorySize: 500,
		AlertLogPerSec:   1,
	}, nil)

	// Burst far past the surfacing budget; the limiter may suppress the log
	// side-channel, never the history.
	for i := 0; i < 200; i++ {
		sev := SeverityHigh
		if i%2 == 0 {
			sev = SeverityCritical
		}
		m.AddAlert(Alert{Category: CategoryError, Severity: sev, Message: fmt.Sprintf("burst%d", i)})
	}

	got := m.Alerts()
	if len(got) != 200 {
		t.Fatalf("expected all 200 alerts recorded despite throttling, got %d", len(got))
	}
	for i, a := range got {
		if want := fmt.Sprintf("burst%d", i); a.Message != want {
			t.Fatalf("alert %d = %q, want %q (history must keep order and drop nothing)", i, a.Message, want)
		}
	}
}

func TestClearAlertsLeavesOtherHistories(t *testing.T) {
	m, _ := newTestMonitor(t, Config{}, nil)

	m.Collect()
	m.AddAlert(Alert{Category: CategoryError, Severity: SeverityLow, Message: "x"})
	_ = m.Measure(FieldStore, "op", func() error { return nil })

	m.ClearAlerts()

	if got := m.Alerts(); len(got) != 0 {
		t.Fatalf("expected empty alert history, got %d", len(got))
	}
	if got := m.Metrics(); len(got) != 1 {
		t.Fatalf("ClearAlerts touched the metric history: %d", len(got))
	}
	if got := m.Operations(); len(got) != 1 {
		t.Fatalf("ClearAlerts touched the operation history: %d", len(got))
	}
}

func TestCleanupKeepsOperationHistory(t *testing.T) {
	m, s := newTestMonitor(t, Config{SampleInterval: time.Hour}, nil)

	m.StartMonitoring()
	m.Collect()
	m.AddAlert(Alert{Category: CategoryError, Severity: SeverityLow, Message: "x"})
	_ = m.Measure(FieldStore, "op", func() error { return nil })

	m.Cleanup()

	if got := m.Metrics(); len(got) != 0 {
		t.Fatalf("Cleanup left %d metric snapshots", len(got))
	}
	if got := m.Alerts(); len(got) != 0 {
		t.Fatalf("Cleanup left %d alerts", len(got))
	}
	if got := m.Operations(); len(got) != 1 {
		t.Fatalf("Cleanup must keep the operation history, got %d records", len(got))
	}
	if got := len(s.ActiveTimers()); got != 0 {
		t.Fatalf("Cleanup left the sampling task running (%d timers)", got)
	}
}

func TestStartMonitoringIdempotent(t *testing.T) {
	m, s := newTestMonitor(t, Config{SampleInterval: time.Hour}, nil)

	m.StartMonitoring()
	m.StartMonitoring()
	if got := len(s.ActiveTimers()); got != 1 {
		t.Fatalf("expected a single sampling task, got %d timers", got)
	}

	m.StopMonitoring()
	m.StopMonitoring()
	if got := len(s.ActiveTimers()); got != 0 {
		t.Fatalf("expected no timers after stop, got %d", got)
	}

	// Restartable after a stop.
	m.StartMonitoring()
	if got := len(s.ActiveTimers()); got != 1 {
		t.Fatalf("expected sampling to restart, got %d timers", got)
	}
}

func TestApplyRestartsSamplingOnIntervalChange(t *testing.T) {
	m, s := newTestMonitor(t, Config{SampleInterval: time.Hour}, nil)

	m.StartMonitoring()
	before := s.ActiveTimers()
	if len(before) != 1 {
		t.Fatalf("expected one sampling task, got %d", len(before))
	}

	m.Apply(Config{SampleInterval: 30 * time.Minute})

	after := s.ActiveTimers()
	if len(after) != 1 {
		t.Fatalf("expected one sampling task after Apply, got %d", len(after))
	}
	if after[0].ID == before[0].ID {
		t.Fatalf("expected the sampling task to be rescheduled with the new interval")
	}
}

func TestDefensiveCopies(t *testing.T) {
	m, _ := newTestMonitor(t, Config{}, nil)

	m.Collect()
	_ = m.Measure(FieldStore, "op", func() error { return nil })
	m.AddAlert(Alert{Category: CategoryError, Severity: SeverityLow, Message: "keep"})

	snaps := m.Metrics()
	snaps[0].MemoryMB = -1
	snaps[0].Latencies["poison"] = time.Hour

	alerts := m.Alerts()
	alerts[0].Message = "mutated"

	ops := m.Operations()
	ops[0].Label = "mutated"

	fresh := m.Metrics()
	if fresh[0].MemoryMB == -1 {
		t.Fatalf("snapshot history shares memory with callers")
	}
	if _, ok := fresh[0].Latencies["poison"]; ok {
		t.Fatalf("latency map shared with callers")
	}
	if m.Alerts()[0].Message != "keep" {
		t.Fatalf("alert history shares memory with callers")
	}
	if m.Operations()[0].Label != "op" {
		t.Fatalf("operation history shares memory with callers")
	}
}
