package sync

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is the upstream wire format for window endpoints, always
// UTC with a literal Z suffix.
const timestampLayout = "2006-01-02T15:04:05Z"

// Interval selects how the sweep slices the time axis into windows.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// ParseInterval maps operator input onto an Interval. An empty value and
// the legacy "full" selector both mean a yearly sweep.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "yearly":
		return IntervalYearly, nil
	case "monthly":
		return IntervalMonthly, nil
	case "daily":
		return IntervalDaily, nil
	}
	return "", fmt.Errorf("unknown interval %q (want daily, monthly, or yearly)", s)
}

// windowEnd returns the last inclusive second of the day, month, or year
// containing the cursor.
func windowEnd(cursor time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalDaily:
		return time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 23, 59, 59, 0, time.UTC)
	case IntervalMonthly:
		firstOfNext := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return firstOfNext.Add(-time.Second)
	default:
		return time.Date(cursor.Year(), 12, 31, 23, 59, 59, 0, time.UTC)
	}
}

// nextWindowStart returns the first instant of the period following the one
// containing the cursor.
func nextWindowStart(cursor time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalDaily:
		return time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	case IntervalMonthly:
		return time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default:
		return time.Date(cursor.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp reads a checkpoint value. Checkpoints are written in the
// canonical layout, but upstream validFromDate values occasionally carry an
// explicit offset, so RFC 3339 is accepted as a fallback.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
