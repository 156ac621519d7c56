package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// NextRunTimesAfter returns the next N run times after a specific time.
// Run times are computed in the location of after.
// It returns an error if the cron expression is invalid or if count is less than 1.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}

// NextAfter returns the first run time strictly after the given time.
func NextAfter(cron string, after time.Time) (time.Time, error) {
	times, err := NextRunTimesAfter(cron, after, 1)
	if err != nil {
		return time.Time{}, err
	}
	if len(times) == 0 || times[0].IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires after %s", cron, after)
	}
	return times[0], nil
}

func ValidateCron(cron string) error {
	_, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
