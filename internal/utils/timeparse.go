package utils

import (
	"fmt"
	"strings"
	"time"
)

// The upstream platform persists timestamps as naive UTC wall-clock strings
// ("2006-01-02 15:04:05", no offset). Layouts are tried in order; the naive
// forms are interpreted as UTC, never as server-local time.
var serverTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseServerTime converts an upstream timestamp string into an instant.
// Empty and malformed input both yield nil: callers must treat nil as
// "insufficient data", never as epoch zero. Strings that carry an explicit
// offset or Z marker are parsed as-is; naive strings are read as UTC.
func ParseServerTime(raw string) *time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	for _, layout := range serverTimeLayouts {
		var (
			parsed time.Time
			err    error
		)
		if strings.Contains(layout, "Z07:00") {
			parsed, err = time.Parse(layout, trimmed)
		} else {
			parsed, err = time.ParseInLocation(layout, trimmed, time.UTC)
		}
		if err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}

	return nil
}

// FormatInZone renders an instant for display in a fixed target zone,
// independent of the machine locale the service happens to run in.
func FormatInZone(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

// CountdownString renders a second count as a compact human-readable
// countdown. Negative input is treated as expired so a late timer tick can
// never surface garbage to the student.
func CountdownString(seconds int64) string {
	if seconds < 0 {
		return "Expired"
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", hours, minutes, secs)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %02ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
