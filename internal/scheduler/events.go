package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/timeparse"
)

// ScheduleOptions describes a new event. An empty ChannelID means delivery by DM.
type ScheduleOptions struct {
	GuildID   string
	ChannelID string
	CreatorID string

	EventType repository.EventType
	Payload   json.RawMessage

	ScheduleType  repository.ScheduleType
	ExecuteAt     *time.Time
	CronSchedule  string
	Timezone      string
	MaxExecutions *int
	Metadata      map[string]any
}

func (s *Service) checkSchedule(opts ScheduleOptions) (*time.Location, error) {
	if opts.GuildID == "" || opts.CreatorID == "" {
		return nil, &ValidationError{Message: "guild and creator are required"}
	}
	if !opts.EventType.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown event type %q", opts.EventType)}
	}
	if !opts.ScheduleType.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown schedule type %q", opts.ScheduleType)}
	}
	if opts.ScheduleType == repository.ScheduleOnce {
		if opts.ExecuteAt == nil {
			return nil, &ValidationError{Message: "a one-off event needs a time to run"}
		}
		if opts.CronSchedule != "" {
			return nil, &ValidationError{Message: "a one-off event cannot have a cron schedule"}
		}
	}
	if opts.ScheduleType.Repeats() && opts.CronSchedule == "" {
		return nil, &ValidationError{Message: "a recurring event needs a cron schedule"}
	}
	if opts.MaxExecutions != nil && *opts.MaxExecutions < 1 {
		return nil, &ValidationError{Message: "max executions must be at least 1"}
	}

	timezone := opts.Timezone
	if timezone == "" {
		timezone = s.defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown timezone %q", timezone)}
	}
	return loc, nil
}

// ScheduleEvent validates, persists and (for recurring events) arms a new event.
// Payload validation failures are returned as *ValidationError and nothing is stored.
func (s *Service) ScheduleEvent(ctx context.Context, opts ScheduleOptions) (repository.ScheduledEvent, error) {
	loc, err := s.checkSchedule(opts)
	if err != nil {
		return repository.ScheduledEvent{}, err
	}

	payload := opts.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if h, ok := s.handler(opts.EventType); ok {
		if v, ok := h.(eventhandler.Validator); ok {
			if err := v.Validate(payload); err != nil {
				return repository.ScheduledEvent{}, &ValidationError{Message: err.Error()}
			}
		}
	}

	eventID, err := s.generateEventID(ctx)
	if err != nil {
		return repository.ScheduledEvent{}, err
	}

	event := repository.ScheduledEvent{
		EventID:       eventID,
		GuildID:       opts.GuildID,
		ChannelID:     opts.ChannelID,
		CreatorID:     opts.CreatorID,
		EventType:     opts.EventType,
		Payload:       payload,
		ScheduleType:  opts.ScheduleType,
		CronSchedule:  opts.CronSchedule,
		Timezone:      loc.String(),
		Status:        repository.StatusActive,
		MaxExecutions: opts.MaxExecutions,
		Metadata:      maps.Clone(opts.Metadata),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if opts.ScheduleType == repository.ScheduleOnce {
		executeAt := opts.ExecuteAt.UTC()
		event.ExecuteAt = &executeAt
		event.NextExecuteAt = &executeAt
	} else if next, ok := timeparse.NextCronExecution(opts.CronSchedule, s.now().In(loc)); ok {
		next = next.UTC()
		event.NextExecuteAt = &next
	} else {
		s.log.Warn(
			"next execution time unavailable for cron schedule",
			"eventID", event.EventID,
			"cronSchedule", opts.CronSchedule,
		)
	}

	if err := s.store.Create(ctx, event); err != nil {
		return repository.ScheduledEvent{}, fmt.Errorf("failed to save event: %w", err)
	}

	if event.ScheduleType.Repeats() {
		s.startTimer(event)
	}

	s.log.Info(
		"Event scheduled",
		"eventID", event.EventID,
		"eventType", event.EventType,
		"guildID", event.GuildID,
		"scheduleType", event.ScheduleType,
		"nextExecuteAt", event.NextExecuteAt,
	)
	return event, nil
}

func (s *Service) generateEventID(ctx context.Context) (string, error) {
	for range maxIDAttempts {
		id, err := s.ids.Next()
		if err != nil {
			return "", fmt.Errorf("failed to generate event ID: %w", err)
		}

		_, err = s.store.FindOne(ctx, repository.EventFilter{EventID: id})
		if errors.Is(err, repository.ErrEventNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check event ID %s: %w", id, err)
		}
		s.log.Debug("Event ID collision", "eventID", id)
	}
	return "", ErrIDGenerationExhausted
}

// CancelEvent cancels an active event. When requesterID is not empty the event
// must also belong to that user. It reports whether an event was cancelled;
// store errors are logged and reported as false.
func (s *Service) CancelEvent(ctx context.Context, eventID, requesterID string) bool {
	if eventID == "" {
		return false
	}
	filter := repository.EventFilter{
		EventID:  eventID,
		Statuses: []repository.Status{repository.StatusActive},
	}
	if requesterID != "" {
		filter.CreatorID = requesterID
	}

	event, err := s.store.FindOne(ctx, filter)
	if err != nil {
		if !errors.Is(err, repository.ErrEventNotFound) {
			s.log.Error("failed to look up event to cancel", "eventID", eventID, "error", err)
		}
		return false
	}

	cancelled := repository.StatusCancelled
	n, err := s.store.Update(ctx, repository.EventPatch{Status: &cancelled}, filter)
	if err != nil {
		s.log.Error("failed to cancel event", "eventID", eventID, "error", err)
		return false
	}
	if n == 0 {
		return false
	}

	s.stopTimer(eventID)
	event.Status = cancelled
	s.archive(ctx, event)
	s.log.Info("Event cancelled", "eventID", eventID, "requesterID", requesterID)
	return true
}

func (s *Service) GetEvent(ctx context.Context, eventID string) (repository.ScheduledEvent, error) {
	if eventID == "" {
		return repository.ScheduledEvent{}, repository.ErrEventNotFound
	}
	return s.store.FindOne(ctx, repository.EventFilter{EventID: eventID})
}

// ListFilters narrow ListEvents. Status defaults to active and Limit to DefaultListLimit.
type ListFilters struct {
	EventType repository.EventType
	CreatorID string
	Status    repository.Status
	Limit     int
}

const DefaultListLimit = 25

// ListEvents returns a guild's events ordered by next execution time.
func (s *Service) ListEvents(ctx context.Context, guildID string, filters ListFilters) ([]repository.ScheduledEvent, error) {
	status := filters.Status
	if status == "" {
		status = repository.StatusActive
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	return s.store.FindAll(ctx, repository.EventFilter{
		GuildID:   guildID,
		EventType: filters.EventType,
		CreatorID: filters.CreatorID,
		Statuses:  []repository.Status{status},
	}, limit, repository.OrderNextExecuteAtAsc)
}
