package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrUnrecognized = errors.New("could not understand that time")

// ParsedTime is the result of interpreting a time expression.
// CronExpression is set only when Recurring is true.
type ParsedTime struct {
	Instant        time.Time
	Recurring      bool
	CronExpression string
	DisplayText    string
}

var (
	reEveryDay     = regexp.MustCompile(`(?i)^every\s+day\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	reEveryWeekday = regexp.MustCompile(`(?i)^every\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	reEveryHour    = regexp.MustCompile(`(?i)^every\s+hour$`)
	reEveryNHours  = regexp.MustCompile(`(?i)^every\s+(\d{1,2})\s+hours?$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parser interprets recurring phrases itself and delegates one-off
// expressions to a natural-language date parser.
type Parser struct {
	natural *when.Parser
}

func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{natural: w}
}

// Parse interprets input relative to reference. Recurring instants are
// computed in reference's location. It returns ErrUnrecognized when
// nothing matches.
func (p *Parser) Parse(input string, reference time.Time) (ParsedTime, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return ParsedTime{}, ErrUnrecognized
	}

	if parsed, ok := parseRecurring(text, reference); ok {
		return parsed, nil
	}

	instant, ok, err := p.parseNatural(text, reference)
	if err != nil {
		return ParsedTime{}, fmt.Errorf("%w: %w", ErrUnrecognized, err)
	}
	if !ok {
		return ParsedTime{}, ErrUnrecognized
	}
	return ParsedTime{
		Instant:     instant,
		DisplayText: instant.Format("Mon, Jan 2, 2006 at " + clockLayout + " MST"),
	}, nil
}

func parseRecurring(text string, reference time.Time) (ParsedTime, bool) {
	loc := reference.Location()

	if m := reEveryDay.FindStringSubmatch(text); m != nil {
		hour, minute, ok := parseClock(m[1], m[2], m[3])
		if !ok {
			return ParsedTime{}, false
		}
		next := time.Date(reference.Year(), reference.Month(), reference.Day(), hour, minute, 0, 0, loc)
		if next.Before(reference) {
			next = next.AddDate(0, 0, 1)
		}
		return ParsedTime{
			Instant:        next,
			Recurring:      true,
			CronExpression: fmt.Sprintf("%d %d * * *", minute, hour),
			DisplayText:    "every day at " + clockText(hour, minute),
		}, true
	}

	if m := reEveryWeekday.FindStringSubmatch(text); m != nil {
		weekday := weekdays[strings.ToLower(m[1])]
		hour, minute, ok := parseClock(m[2], m[3], m[4])
		if !ok {
			return ParsedTime{}, false
		}
		ahead := (int(weekday) - int(reference.Weekday()) + 7) % 7
		next := time.Date(reference.Year(), reference.Month(), reference.Day()+ahead, hour, minute, 0, 0, loc)
		if next.Before(reference) {
			next = next.AddDate(0, 0, 7)
		}
		return ParsedTime{
			Instant:        next,
			Recurring:      true,
			CronExpression: fmt.Sprintf("%d %d * * %d", minute, hour, int(weekday)),
			DisplayText:    fmt.Sprintf("every %s at %s", weekday, clockText(hour, minute)),
		}, true
	}

	if reEveryHour.MatchString(text) {
		top := time.Date(reference.Year(), reference.Month(), reference.Day(), reference.Hour(), 0, 0, 0, loc)
		return ParsedTime{
			Instant:        top.Add(time.Hour),
			Recurring:      true,
			CronExpression: "0 * * * *",
			DisplayText:    "every hour",
		}, true
	}

	if m := reEveryNHours.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 23 {
			return ParsedTime{}, false
		}
		later := reference.Add(time.Duration(n) * time.Hour)
		return ParsedTime{
			Instant:        time.Date(later.Year(), later.Month(), later.Day(), later.Hour(), 0, 0, 0, loc),
			Recurring:      true,
			CronExpression: fmt.Sprintf("0 */%d * * *", n),
			DisplayText:    "every " + plural(n, "hour"),
		}, true
	}

	return ParsedTime{}, false
}

var reBackwards = regexp.MustCompile(`(?i)\b(ago|yesterday|last)\b`)

// parseNatural resolves a one-off expression. Bare clock times that already
// passed today ("at 5pm" at 6pm) are pushed to the next day.
func (p *Parser) parseNatural(text string, reference time.Time) (time.Time, bool, error) {
	result, err := p.natural.Parse(text, reference)
	if err != nil {
		return time.Time{}, false, err
	}
	if result == nil {
		return time.Time{}, false, nil
	}

	instant := result.Time
	if !instant.After(reference) && reference.Sub(instant) < 24*time.Hour && !reBackwards.MatchString(text) {
		instant = instant.AddDate(0, 0, 1)
	}
	return instant, true, nil
}
