package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField reads a duration-string config field ("500ms",
// "2m30s"). Blank reads as zero so callers can tell "unset" from an
// explicit value; negative durations are rejected outright, since no
// voxnote interval or timeout is meaningful below zero.
func ParseDurationField(key, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", key, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with unset (or zero)
// falling back to def. Malformed input still errors rather than silently
// defaulting.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(key, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
