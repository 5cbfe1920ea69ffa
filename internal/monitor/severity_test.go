package monitor

import "testing"

func TestSeverityRatioBands(t *testing.T) {
	cases := []struct {
		name      string
		value     float64
		threshold float64
		want      SeverityLevel
	}{
		{"at threshold", 100, 100, SeverityLow},
		{"just under medium", 119, 100, SeverityLow},
		{"medium boundary", 120, 100, SeverityMedium},
		{"just under high", 149, 100, SeverityMedium},
		{"high boundary", 150, 100, SeverityHigh},
		{"just under critical", 199, 100, SeverityHigh},
		{"critical boundary", 200, 100, SeverityCritical},
		{"far past critical", 1000, 100, SeverityCritical},
		{"below threshold", 50, 100, SeverityLow},
		{"zero threshold", 50, 0, SeverityLow},
		{"negative threshold", 50, -1, SeverityLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Severity(tc.value, tc.threshold); got != tc.want {
				t.Fatalf("Severity(%v, %v) = %s, want %s", tc.value, tc.threshold, got, tc.want)
			}
		})
	}
}
