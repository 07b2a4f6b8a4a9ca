package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a plain date and unix seconds.
// Returns (t, true) if any worked. Plain dates are midnight UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignFromTo rounds the range outward to whole bars of the timeframe.
func AlignFromTo(from, to time.Time, tf string) (time.Time, time.Time) {
	d := 24 * time.Hour
	if tf == "1h" {
		d = time.Hour
	}
	from = from.UTC().Truncate(d)
	if t := to.UTC().Truncate(d); !t.Equal(to.UTC()) {
		to = t.Add(d)
	} else {
		to = t
	}
	return from, to
}
