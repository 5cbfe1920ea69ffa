package monitor

// Severity classifies a breach by the ratio of measured value to threshold.
// This is the only place severity is decided; metric-threshold and
// operation-latency alerts both route through it.
//
// The boundary table is fixed:
//
//	ratio >= 2.0 -> critical
//	ratio >= 1.5 -> high
//	ratio >= 1.2 -> medium
//	otherwise    -> low
func Severity(value, threshold float64) SeverityLevel {
	if threshold <= 0 {
		return SeverityLow
	}
	ratio := value / threshold
	switch {
	case ratio >= 2.0:
		return SeverityCritical
	case ratio >= 1.5:
		return SeverityHigh
	case ratio >= 1.2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
