package timeparse

import (
	"fmt"
	"time"
)

// IsFuture reports whether date is strictly after reference.
func IsFuture(date, reference time.Time) bool {
	return date.After(reference)
}

// FormatRelative describes date relative to reference, e.g. "in 5 minutes",
// "tomorrow at 9:00 AM" or "on Jan 2, 2026 at 3:04 PM".
func FormatRelative(date, reference time.Time) string {
	diff := date.Sub(reference)
	if diff <= 0 {
		return "in the past"
	}
	if diff < time.Minute {
		return "in less than a minute"
	}

	minutes := int(diff / time.Minute)
	if minutes < 60 {
		return "in " + plural(minutes, "minute")
	}

	hours := int(diff / time.Hour)
	if hours < 24 {
		rest := minutes % 60
		if rest == 0 {
			return "in " + plural(hours, "hour")
		}
		return fmt.Sprintf("in %s and %s", plural(hours, "hour"), plural(rest, "minute"))
	}

	days := hours / 24
	at := date.Format(clockLayout)
	switch {
	case days == 1:
		return "tomorrow at " + at
	case days < 7:
		return fmt.Sprintf("in %d days at %s", days, at)
	default:
		return fmt.Sprintf("on %s at %s", date.Format("Jan 2, 2006"), at)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
