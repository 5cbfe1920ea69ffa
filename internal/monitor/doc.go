// Package monitor implements voxnote's metrics and alerting engine.
//
// # Overview
//
// The monitor runs a periodic sampling task through the scheduler. Each pass
// snapshots process memory plus the live timer/listener counts reported by a
// ResourceCounter, appends the snapshot to a bounded history, and evaluates
// the configured thresholds. Breaches become Alerts whose severity is decided
// by a single ratio table (Severity); both metric-threshold and
// operation-latency alerts route through it.
//
// Callers time their own work with Measure/MeasureValue: the wrapper records
// elapsed time into the latest snapshot's named latency field, raises a
// latency alert when the field's threshold is exceeded, and appends an
// operation record. A failed operation additionally raises one error-category
// alert and is re-returned unchanged; the wrapper never swallows an error
// and never imposes a deadline on the operation it measures.
//
// Alerts are advisory telemetry, not control flow: nothing here aborts the
// hosting application because of a threshold breach.
package monitor
