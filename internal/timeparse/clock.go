package timeparse

import (
	"strconv"
	"strings"
	"time"
)

// parseClock converts an hour, optional minute and optional am/pm marker
// into a 24-hour clock time.
func parseClock(hourText, minuteText, meridiem string) (hour, minute int, ok bool) {
	hour, err := strconv.Atoi(hourText)
	if err != nil {
		return 0, 0, false
	}
	if minuteText != "" {
		minute, err = strconv.Atoi(minuteText)
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, false
		}
	}

	meridiem = strings.ToLower(meridiem)
	if meridiem != "" && (hour < 1 || hour > 12) {
		return 0, 0, false
	}

	switch meridiem {
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour != 12 {
			hour += 12
		}
	}

	if hour < 0 || hour > 23 {
		return 0, 0, false
	}
	return hour, minute, true
}

// clockText renders a clock time as "9:00 AM".
func clockText(hour, minute int) string {
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format(clockLayout)
}

const clockLayout = "3:04 PM"
