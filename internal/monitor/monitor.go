package monitor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"voxnote/internal/scheduler"
	logx "voxnote/pkg/logx"
)

const samplingTaskName = "metrics:sample"

// Apply swaps thresholds, bounds, and the sampling interval at runtime
// (config hot reload). An interval change restarts the sampling task.
func (m *Monitor) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	m.mu.Lock()
	if cfg.MemorySample == nil {
		cfg.MemorySample = m.cfg.MemorySample
	}
	restart := m.sampling && cfg.SampleInterval != m.cfg.SampleInterval
	m.cfg = cfg
	m.mu.Unlock()

	m.limiter.SetLimit(rate.Limit(cfg.AlertLogPerSec))
	m.limiter.SetBurst(cfg.AlertLogPerSec)

	if restart {
		m.StopMonitoring()
		m.StartMonitoring()
	}
}

// config returns the current config. Threshold maps in it are replaced
// wholesale by Apply, never mutated, so the shallow copy is safe to read.
func (m *Monitor) config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// StartMonitoring schedules the periodic sampling task. It is idempotent:
// when sampling is already running this is a no-op.
func (m *Monitor) StartMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sampling {
		return
	}
	m.samplingID = m.sched.CreateRecurringTask(samplingTaskName, m.cfg.SampleInterval, func(ctx context.Context) error {
		m.Collect()
		return nil
	}, scheduler.RecurringOptions{})
	m.sampling = true
	m.log.Info("monitoring started", logx.Duration("interval", m.cfg.SampleInterval))
}

// StopMonitoring cancels the sampling task. Safe to call when not monitoring.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	id := m.samplingID
	running := m.sampling
	m.sampling = false
	m.mu.Unlock()

	if !running {
		return
	}
	m.sched.ClearInterval(id)
	m.log.Info("monitoring stopped")
}

// Collect takes one sample: builds a snapshot from ambient memory usage and
// the resource counter, appends it to the bounded history, and evaluates
// thresholds against it.
func (m *Monitor) Collect() {
	cfg := m.config()

	memMB, err := cfg.MemorySample()
	if err != nil {
		m.log.Debug("memory sample failed", logx.Err(err))
	}

	var rs ResourceStats
	if m.res != nil {
		rs = m.res.Stats()
	}

	snap := Snapshot{
		Time:          time.Now(),
		MemoryMB:      memMB,
		Latencies:     map[string]time.Duration{},
		IntervalCount: rs.IntervalCount,
		TimeoutCount:  rs.TimeoutCount,
		ListenerCount: rs.ListenerCount,
	}

	m.mu.Lock()
	m.metrics = append(m.metrics, snap)
	if len(m.metrics) > cfg.HistorySize {
		m.metrics = m.metrics[len(m.metrics)-cfg.HistorySize:]
	}
	m.mu.Unlock()

	m.checkThresholds(snap)
}

// checkThresholds compares one snapshot against the fixed thresholds and
// records an alert per breach.
func (m *Monitor) checkThresholds(snap Snapshot) {
	th := m.config().Thresholds

	if th.MemoryMB > 0 && snap.MemoryMB > th.MemoryMB {
		m.AddAlert(Alert{
			Category:  CategoryMemory,
			Severity:  Severity(snap.MemoryMB, th.MemoryMB),
			Message:   fmt.Sprintf("memory usage %.1fMB exceeds %.1fMB", snap.MemoryMB, th.MemoryMB),
			Value:     snap.MemoryMB,
			Threshold: th.MemoryMB,
			Time:      snap.Time,
		})
	}

	timers := snap.IntervalCount + snap.TimeoutCount
	if th.Timers > 0 && timers > th.Timers {
		m.AddAlert(Alert{
			Category:  CategoryResource,
			Severity:  Severity(float64(timers), float64(th.Timers)),
			Message:   fmt.Sprintf("%d active timers exceed %d", timers, th.Timers),
			Value:     float64(timers),
			Threshold: float64(th.Timers),
			Time:      snap.Time,
		})
	}

	if th.Listeners > 0 && snap.ListenerCount > th.Listeners {
		m.AddAlert(Alert{
			Category:  CategoryResource,
			Severity:  Severity(float64(snap.ListenerCount), float64(th.Listeners)),
			Message:   fmt.Sprintf("%d live listeners exceed %d", snap.ListenerCount, th.Listeners),
			Value:     float64(snap.ListenerCount),
			Threshold: float64(th.Listeners),
			Time:      snap.Time,
		})
	}
}

// AddAlert appends to the bounded alert history. High and critical alerts
// are also surfaced through the log at the moment they are added; that
// side-channel is rate-limited, the history never is.
func (m *Monitor) AddAlert(a Alert) {
	if a.Time.IsZero() {
		a.Time = time.Now()
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.cfg.AlertHistorySize {
		m.alerts = m.alerts[len(m.alerts)-m.cfg.AlertHistorySize:]
	}
	m.mu.Unlock()

	m.surface(a)
}

// surface pushes high/critical alerts through the log side-channel.
func (m *Monitor) surface(a Alert) {
	if a.Severity != SeverityHigh && a.Severity != SeverityCritical {
		return
	}
	if !m.limiter.Allow() {
		return
	}
	fields := []logx.Field{
		logx.String("category", string(a.Category)),
		logx.String("severity", string(a.Severity)),
		logx.Float64("value", a.Value),
		logx.Float64("threshold", a.Threshold),
	}
	if a.Severity == SeverityCritical {
		m.log.Error(a.Message, fields...)
	} else {
		m.log.Warn(a.Message, fields...)
	}
}

// Metrics returns a defensive copy of the snapshot history.
func (m *Monitor) Metrics() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.metrics))
	for i, s := range m.metrics {
		out[i] = copySnapshot(s)
	}
	return out
}

// LatestMetrics returns a copy of the most recent snapshot, if any.
func (m *Monitor) LatestMetrics() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.metrics) == 0 {
		return Snapshot{}, false
	}
	return copySnapshot(m.metrics[len(m.metrics)-1]), true
}

// Alerts returns a defensive copy of the alert history.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Operations returns a defensive copy of the measured-operation history.
func (m *Monitor) Operations() []OperationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OperationRecord, len(m.ops))
	copy(out, m.ops)
	return out
}

// ClearAlerts empties the alert history only.
func (m *Monitor) ClearAlerts() {
	m.mu.Lock()
	m.alerts = nil
	m.mu.Unlock()
}

// Cleanup stops monitoring and clears the metrics and alert histories. The
// operation history survives teardown on purpose (it is diagnostic data
// about calls, not about the monitoring session).
func (m *Monitor) Cleanup() {
	m.StopMonitoring()
	m.mu.Lock()
	m.metrics = nil
	m.alerts = nil
	m.mu.Unlock()
}

func copySnapshot(s Snapshot) Snapshot {
	cp := s
	cp.Latencies = make(map[string]time.Duration, len(s.Latencies))
	for k, v := range s.Latencies {
		cp.Latencies[k] = v
	}
	return cp
}

// processMemoryMB reads the process RSS, falling back to the Go heap when
// the platform probe fails.
func processMemoryMB() (float64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			return float64(mi.RSS) / (1024 * 1024), nil
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024), nil
}
