package scheduler

import (
	"strings"

	"github.com/glizzus/herald/internal/repository"
)

// cronSpec prefixes the schedule with its timezone so the timer fires on local wall-clock time.
func cronSpec(cronSchedule, timezone string) string {
	if timezone == "" || strings.EqualFold(timezone, "UTC") {
		return cronSchedule
	}
	return "CRON_TZ=" + timezone + " " + cronSchedule
}

// startTimer arms (or re-arms) the live timer for a recurring event.
// It reports false when the cron schedule cannot be parsed.
func (s *Service) startTimer(event repository.ScheduledEvent) bool {
	spec := cronSpec(event.CronSchedule, event.Timezone)
	eventID := event.EventID

	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if existing, ok := s.timers[eventID]; ok {
		s.cron.Remove(existing)
		delete(s.timers, eventID)
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.fire(eventID) })
	if err != nil {
		s.log.Error(
			"invalid cron schedule, event will not fire",
			"eventID", eventID,
			"cronSchedule", event.CronSchedule,
			"timezone", event.Timezone,
			"error", err,
		)
		return false
	}
	s.timers[eventID] = entryID
	return true
}

func (s *Service) stopTimer(eventID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if entryID, ok := s.timers[eventID]; ok {
		s.cron.Remove(entryID)
		delete(s.timers, eventID)
	}
}

// HasTimer reports whether a live cron timer is armed for the event.
func (s *Service) HasTimer(eventID string) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	_, ok := s.timers[eventID]
	return ok
}

// fire hands a cron firing to the execution loop. It gives up once the
// service is stopping.
func (s *Service) fire(eventID string) {
	select {
	case s.fired <- eventID:
	case <-s.stop:
	}
}
