package timeparse

import (
	"strconv"
	"strings"
	"time"

	"github.com/glizzus/herald/internal/schedule"
)

type cronShape int

const (
	shapeUnsupported cronShape = iota
	shapeDaily
	shapeWeekly
	shapeInterval
)

// classifyCron recognises the three cron shapes the scheduler evaluates:
//
//	M H * * *    daily
//	M H * * D    weekly
//	0 */N * * *  every N hours ("0 * * * *" is every hour)
func classifyCron(expression string) cronShape {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return shapeUnsupported
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if dom != "*" || month != "*" {
		return shapeUnsupported
	}

	if minute == "0" && dow == "*" {
		if hour == "*" {
			return shapeInterval
		}
		if step, ok := strings.CutPrefix(hour, "*/"); ok {
			if inRange(step, 1, 23) {
				return shapeInterval
			}
			return shapeUnsupported
		}
	}

	if !inRange(minute, 0, 59) || !inRange(hour, 0, 23) {
		return shapeUnsupported
	}
	if dow == "*" {
		return shapeDaily
	}
	if inRange(dow, 0, 6) {
		return shapeWeekly
	}
	return shapeUnsupported
}

func inRange(field string, lo, hi int) bool {
	n, err := strconv.Atoi(field)
	if err != nil {
		return false
	}
	return n >= lo && n <= hi
}

// NextCronExecution returns the first run of expression strictly after reference,
// evaluated in reference's location. Only daily, weekly and hourly-interval
// expressions are supported; anything else reports false.
func NextCronExecution(expression string, reference time.Time) (time.Time, bool) {
	if classifyCron(expression) == shapeUnsupported {
		return time.Time{}, false
	}
	next, err := schedule.NextAfter(strings.Join(strings.Fields(expression), " "), reference)
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}
