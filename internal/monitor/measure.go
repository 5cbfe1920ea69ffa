package monitor

import (
	"fmt"
	"time"
)

// Measure times a zero-argument operation and returns its error unchanged.
//
// On success the elapsed time is written into the named latency field of the
// most recent snapshot (if one exists), compared against that field's
// registered threshold (raising a latency alert on breach), and appended to
// the operation history. On failure an error-category, high-severity alert
// naming the operation is added, the record is failure-marked, and the
// original error is returned as-is — the wrapper never masks a failure and
// never imposes a deadline on the operation.
func (m *Monitor) Measure(field, label string, op func() error) error {
	start := time.Now()
	err := op()
	m.record(field, label, time.Since(start), err)
	return err
}

// MeasureValue is Measure for operations that produce a value. The value is
// returned unchanged alongside the original error.
func MeasureValue[T any](m *Monitor, field, label string, op func() (T, error)) (T, error) {
	start := time.Now()
	v, err := op()
	m.record(field, label, time.Since(start), err)
	return v, err
}

func (m *Monitor) record(field, label string, d time.Duration, opErr error) {
	if label == "" {
		label = field
	}

	rec := OperationRecord{Label: label, Duration: d, Failed: opErr != nil, Time: time.Now()}
	m.mu.Lock()
	if opErr == nil && len(m.metrics) > 0 {
		m.metrics[len(m.metrics)-1].Latencies[field] = d
	}
	m.ops = append(m.ops, rec)
	if len(m.ops) > m.cfg.OperationHistorySize {
		m.ops = m.ops[len(m.ops)-m.cfg.OperationHistorySize:]
	}
	m.mu.Unlock()

	if opErr != nil {
		m.AddAlert(Alert{
			Category: CategoryError,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("operation %s failed: %v", label, opErr),
			Value:    float64(d.Milliseconds()),
		})
		return
	}

	if th, ok := m.config().Thresholds.Latency[field]; ok && th > 0 && d > th {
		ms := float64(d) / float64(time.Millisecond)
		thMS := float64(th) / float64(time.Millisecond)
		m.AddAlert(Alert{
			Category:  CategoryLatency,
			Severity:  Severity(ms, thMS),
			Message:   fmt.Sprintf("operation %s took %.1fms (threshold %.1fms)", label, ms, thMS),
			Value:     ms,
			Threshold: thMS,
		})
	}
}
